package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/lni/vfs"
)

// ErrCorrupt signals that on-disk metadata failed a consistency check
// during open/replay.
var ErrCorrupt = errors.New("heap: corrupt on-disk metadata")

// backend wraps a vfs.File as the heap's memory-mapped region. True
// mmap is not portable across the vfs.FS abstractions the pack's
// dragonboat dependency supports (it includes an in-memory FS used by
// tests), so the backend instead keeps a full in-process copy of the
// mapped bytes and writes through to the file on every flush — giving
// the same base+offset addressing semantics the spec requires without
// depending on a real mmap syscall.
type backend struct {
	fs   vfs.FS
	path string
	file vfs.File
	mem  []byte
}

func openBackend(fs vfs.FS, path string, createSize int) (*backend, error) {
	if fs == nil {
		fs = vfs.Default
	}

	exists := true
	if _, err := fs.Stat(path); err != nil {
		exists = false
	}

	var f vfs.File
	var err error
	if exists {
		f, err = fs.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "heap: open backing file")
		}
	} else {
		f, err = fs.Create(path)
		if err != nil {
			return nil, errors.Wrap(err, "heap: create backing file")
		}
	}

	b := &backend{fs: fs, path: path, file: f}

	if exists {
		info, err := f.Stat()
		if err != nil {
			return nil, errors.Wrap(err, "heap: stat backing file")
		}
		b.mem = make([]byte, info.Size())
		if _, err := f.ReadAt(b.mem, 0); err != nil {
			return nil, errors.Wrap(err, "heap: read backing file")
		}
	} else {
		b.mem = make([]byte, createSize)
	}

	return b, nil
}

// at returns a slice of the mapped region starting at off; it is the
// only sanctioned way to turn an Offset into addressable bytes.
func (b *backend) at(off Offset, n int) []byte {
	return b.mem[off : int(off)+n]
}

func (b *backend) size() int { return len(b.mem) }

func (b *backend) grow(newSize int) {
	if newSize <= len(b.mem) {
		return
	}
	grown := make([]byte, newSize)
	copy(grown, b.mem)
	b.mem = grown
}

// flush persists the in-memory region to the backing file and fsyncs
// it, matching the WAL's PERSIST entry semantics.
func (b *backend) flush() error {
	w, err := b.fs.Create(b.path)
	if err != nil {
		return errors.Wrap(err, "heap: reopen backing file for flush")
	}
	if _, err := w.WriteAt(b.mem, 0); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "heap: write backing file")
	}
	if err := w.Sync(); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "heap: sync backing file")
	}
	return w.Close()
}

func (b *backend) close() error {
	if b.file == nil {
		return nil
	}
	return b.file.Close()
}
