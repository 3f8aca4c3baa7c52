package btree

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// KeyKind tags the union Key represents: hashed keys carry an inline
// byte string hashed for ordering, unsigned-integer keys compare
// numerically, and direct keys carry only the offset of the leaf
// record holding their real bytes, ordered by that offset rather than
// by the bytes themselves (used when keys are too large to inline and
// a class has no need to sort by content).
type KeyKind uint8

const (
	KeyHashed KeyKind = iota
	KeyUint
	KeyDirect
)

// KHInlineMax bounds how many bytes of a hashed key are carried inline
// before falling back to a 16-byte murmur/xxhash-style digest.
const KHInlineMax = 24

// Key is the tagged-union record key named in spec §3/§4.E.
type Key struct {
	Kind   KeyKind
	Inline []byte // KeyHashed, <= KHInlineMax bytes, or the digest when longer
	Uint   uint64 // KeyUint
	Direct Offset // KeyDirect: offset of the leaf holding the real bytes
}

// NewHashedKey builds a hashed key, inlining raw when it fits and
// otherwise storing a 16-byte xxhash digest (standing in for the
// original's murmur3+string-hash pair — both are non-cryptographic,
// fixed-width digests used purely for ordering within a bucket).
func NewHashedKey(raw []byte) Key {
	if len(raw) <= KHInlineMax {
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return Key{Kind: KeyHashed, Inline: cp}
	}
	sum := xxhash.Sum64(raw)
	digest := make([]byte, 16)
	binary.LittleEndian.PutUint64(digest[0:8], sum)
	binary.LittleEndian.PutUint64(digest[8:16], xxhash.Sum64String(string(raw)+"\x00"))
	return Key{Kind: KeyHashed, Inline: digest}
}

// NewUintKey builds an unsigned-integer key.
func NewUintKey(v uint64) Key { return Key{Kind: KeyUint, Uint: v} }

// NewDirectKey builds a direct key pointing at the leaf holding the
// real key bytes.
func NewDirectKey(off Offset) Key { return Key{Kind: KeyDirect, Direct: off} }

// Compare orders two keys of the same Kind. Direct keys order by their
// Direct offset: the tree never dereferences it, so this is the offset
// at which a leaf's real key bytes were allocated, not the bytes
// themselves — sufficient for tree ordering since every direct key a
// given tree holds is allocated once and never reused at a different
// offset.
func (k Key) Compare(o Key) int {
	switch k.Kind {
	case KeyUint:
		switch {
		case k.Uint < o.Uint:
			return -1
		case k.Uint > o.Uint:
			return 1
		default:
			return 0
		}
	case KeyHashed:
		return bytes.Compare(k.Inline, o.Inline)
	case KeyDirect:
		switch {
		case k.Direct < o.Direct:
			return -1
		case k.Direct > o.Direct:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// Encode serializes a key for anchor persistence.
func (k Key) Encode() []byte {
	switch k.Kind {
	case KeyUint:
		buf := make([]byte, 9)
		buf[0] = byte(KeyUint)
		binary.LittleEndian.PutUint64(buf[1:], k.Uint)
		return buf
	case KeyHashed:
		buf := make([]byte, 1+len(k.Inline))
		buf[0] = byte(KeyHashed)
		copy(buf[1:], k.Inline)
		return buf
	case KeyDirect:
		buf := make([]byte, 9)
		buf[0] = byte(KeyDirect)
		binary.LittleEndian.PutUint64(buf[1:], uint64(k.Direct))
		return buf
	default:
		return nil
	}
}

// DecodeKey is the inverse of Encode, used when reconstructing an
// anchor across a process restart.
func DecodeKey(buf []byte) Key {
	if len(buf) == 0 {
		return Key{}
	}
	switch KeyKind(buf[0]) {
	case KeyUint:
		return Key{Kind: KeyUint, Uint: binary.LittleEndian.Uint64(buf[1:9])}
	case KeyDirect:
		return Key{Kind: KeyDirect, Direct: Offset(binary.LittleEndian.Uint64(buf[1:9]))}
	default:
		cp := make([]byte, len(buf)-1)
		copy(cp, buf[1:])
		return Key{Kind: KeyHashed, Inline: cp}
	}
}
