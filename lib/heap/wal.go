package heap

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/lni/vfs"
)

// EntryType is the write-ahead-log record kind named in spec §6.
type EntryType uint8

const (
	EntrySet EntryType = iota
	EntrySetBits
	EntryClrBits
	EntryPersist
	EntryCommit
)

func (t EntryType) String() string {
	switch t {
	case EntrySet:
		return "set"
	case EntrySetBits:
		return "set_bits"
	case EntryClrBits:
		return "clr_bits"
	case EntryPersist:
		return "persist"
	case EntryCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// walEntry is one write-ahead-log record.
type walEntry struct {
	Type      EntryType
	TargetOff Offset
	StartBit  uint32
	RunLength uint32
	Payload   []byte // 8-byte word for Set; unused for bit ops/persist/commit
}

// encode serializes an entry with its payload snappy-compressed (the
// hot path favors snappy's low per-call latency over zstd's better
// ratio, matching the distinction drawn in the design notes between
// hot-path and cold-path compression). A CRC32 over the header and the
// uncompressed payload sits between the header and the compressed
// payload's length.
func (e walEntry) encode() []byte {
	header := make([]byte, 1+8+4+4+4)
	header[0] = byte(e.Type)
	binary.LittleEndian.PutUint64(header[1:9], uint64(e.TargetOff))
	binary.LittleEndian.PutUint32(header[9:13], e.StartBit)
	binary.LittleEndian.PutUint32(header[13:17], e.RunLength)
	binary.LittleEndian.PutUint32(header[17:21], uint32(len(e.Payload)))

	crc := crc32.ChecksumIEEE(append(append([]byte{}, header...), e.Payload...))

	compressed := snappy.Encode(nil, e.Payload)
	out := make([]byte, 0, len(header)+4+4+len(compressed))
	out = append(out, header...)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	out = append(out, crcBuf[:]...)
	var clen [4]byte
	binary.LittleEndian.PutUint32(clen[:], uint32(len(compressed)))
	out = append(out, clen[:]...)
	out = append(out, compressed...)
	return out
}

// decodeEntry reads one record from buf starting at offset off,
// returning the entry, the number of bytes consumed, and whether the
// record was well-formed (a false result means "stop replay here",
// matching the "unterminated tail is discarded" rule).
func decodeEntry(buf []byte, off int) (walEntry, int, bool) {
	const headerLen = 1 + 8 + 4 + 4 + 4
	if off+headerLen+4+4 > len(buf) {
		return walEntry{}, 0, false
	}
	h := buf[off : off+headerLen]
	e := walEntry{
		Type:      EntryType(h[0]),
		TargetOff: Offset(binary.LittleEndian.Uint64(h[1:9])),
		StartBit:  binary.LittleEndian.Uint32(h[9:13]),
		RunLength: binary.LittleEndian.Uint32(h[13:17]),
	}
	payloadLen := int(binary.LittleEndian.Uint32(h[17:21]))

	pos := off + headerLen
	wantCRC := binary.LittleEndian.Uint32(buf[pos : pos+4])
	pos += 4
	clen := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	if pos+clen > len(buf) {
		return walEntry{}, 0, false
	}

	payload, err := snappy.Decode(nil, buf[pos:pos+clen])
	if err != nil || len(payload) != payloadLen {
		return walEntry{}, 0, false
	}
	pos += clen

	check := crc32.ChecksumIEEE(append(append([]byte{}, h...), payload...))
	if check != wantCRC {
		return walEntry{}, 0, false
	}

	e.Payload = payload
	return e, pos - off, true
}

// log is the append-only redo log backing a Heap.
type log struct {
	fs   vfs.FS
	path string
	file vfs.File
}

func openLog(fs vfs.FS, path string) (*log, error) {
	if fs == nil {
		fs = vfs.Default
	}
	var f vfs.File
	var err error
	if _, statErr := fs.Stat(path); statErr == nil {
		f, err = fs.Open(path)
	} else {
		f, err = fs.Create(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "heap: open write-ahead log")
	}
	return &log{fs: fs, path: path, file: f}, nil
}

// readAll loads the entire log file into memory for replay or append.
func (l *log) readAll() ([]byte, error) {
	info, err := l.file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "heap: stat write-ahead log")
	}
	buf := make([]byte, info.Size())
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := l.file.ReadAt(buf, 0); err != nil {
		return nil, errors.Wrap(err, "heap: read write-ahead log")
	}
	return buf, nil
}

// append writes raw already-encoded batch bytes to the tail of the log
// and fsyncs, so a crash after this call leaves a durable record.
func (l *log) append(batch []byte) error {
	// the vfs.FS abstraction used across the pack opens for
	// read/write rather than pure append; reopen for read-modify-
	// write instead of relying on O_APPEND semantics.
	existing, readErr := l.readAll()
	if readErr != nil {
		return readErr
	}
	out, createErr := l.fs.Create(l.path)
	if createErr != nil {
		return errors.Wrap(createErr, "heap: reopen write-ahead log for append")
	}
	combined := append(existing, batch...)
	if _, err := out.WriteAt(combined, 0); err != nil {
		_ = out.Close()
		return errors.Wrap(err, "heap: write write-ahead log")
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return errors.Wrap(err, "heap: sync write-ahead log")
	}
	return out.Close()
}

func (l *log) close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// replayBatch groups the entries of one transaction: everything between
// a tx_begin implied by position and its terminating commit record.
type replayBatch struct {
	entries []walEntry
}

// replay parses the full log and returns every committed batch in
// order. An uncommitted tail (no terminating commit record) is
// discarded, matching the spec's crash-recovery contract.
func replay(buf []byte) []replayBatch {
	var batches []replayBatch
	var current []walEntry

	off := 0
	for off < len(buf) {
		e, n, ok := decodeEntry(buf, off)
		if !ok {
			break // unterminated/corrupt tail: stop and discard the rest
		}
		off += n

		if e.Type == EntryCommit {
			batches = append(batches, replayBatch{entries: current})
			current = nil
			continue
		}
		current = append(current, e)
	}
	// current (if non-empty) had no commit record following it and is
	// discarded per the "uncommitted entries are discarded" rule.
	return batches
}

// apply applies a committed batch's entries to the backend's mapped
// region. Application is idempotent: replaying the same batch twice
// yields the same bytes, satisfying the round-trip property in §8.
func (b *backend) apply(batch replayBatch) {
	for _, e := range batch.entries {
		switch e.Type {
		case EntrySet:
			if len(e.Payload) == 8 {
				copy(b.at(e.TargetOff, 8), e.Payload)
			}
		case EntrySetBits:
			setBitsRange(b.at(e.TargetOff, bitmapBytesFor(e.StartBit, e.RunLength)), e.StartBit, e.RunLength, true)
		case EntryClrBits:
			setBitsRange(b.at(e.TargetOff, bitmapBytesFor(e.StartBit, e.RunLength)), e.StartBit, e.RunLength, false)
		case EntryPersist:
			// no mapped-region mutation; persistence is handled by the
			// backend's own flush() call after a transaction commits.
		}
	}
}

func bitmapBytesFor(startBit, runLength uint32) int {
	return int((startBit+runLength+7)/8) + 1
}

func setBitsRange(buf []byte, startBit, runLength uint32, set bool) {
	for i := uint32(0); i < runLength; i++ {
		bit := startBit + i
		byteIdx := bit / 8
		bitIdx := bit % 8
		if int(byteIdx) >= len(buf) {
			return
		}
		if set {
			buf[byteIdx] |= 1 << bitIdx
		} else {
			buf[byteIdx] &^= 1 << bitIdx
		}
	}
}
