package heap

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/lni/vfs"
)

type zoneRuntime struct {
	headerOff      Offset
	chunkHeaderArrayOff Offset // start of the chunk-header array
	firstChunkOff  Offset
	nchunks        uint32
	tentative      map[int]bool
}

func (z *zoneRuntime) chunkHeaderOff(idx int) Offset {
	return z.chunkHeaderArrayOff + Offset(idx*chunkHeaderSize)
}

func (z *zoneRuntime) chunkBodyOff(idx int) Offset {
	return z.firstChunkOff + Offset(idx)*chunkSize
}

// Heap is a transactional zone/chunk/run allocator backed by a single
// file. All cross-structure references it hands out are Offset values;
// resolve them with Heap.At.
type Heap struct {
	backend *backend
	wal     *log

	pool PoolHeader
	head HeapHeader
	zones []*zoneRuntime

	classes  map[uint32]Class
	runIndex map[uint32][]chunkRef

	nextTokenID uint64

	freeExtents *FreeExtentTracker
}

// Create formats a new pool file with nzones zones, each sized to hold
// as many chunks as fit within the spec's ≤16GiB-per-zone bound.
func Create(fs vfs.FS, path string, nzones int) (*Heap, error) {
	if nzones <= 0 {
		return nil, ErrInvalidArgument
	}

	totalSize := poolHeaderSize + heapHeaderSize + nzones*maxZoneSize
	b, err := openBackend(fs, path, totalSize)
	if err != nil {
		return nil, err
	}

	h := &Heap{
		backend:     b,
		classes:     make(map[uint32]Class),
		runIndex:    make(map[uint32][]chunkRef),
		freeExtents: newFreeExtentTracker(),
	}

	h.pool = PoolHeader{Magic: poolMagic, Version: 1, Size: uint64(totalSize)}
	copy(b.at(0, poolHeaderSize), h.pool.encode())

	h.head = HeapHeader{Magic: heapMagic, Size: uint64(totalSize - poolHeaderSize - heapHeaderSize), NZones: uint32(nzones)}
	copy(b.at(poolHeaderSize, heapHeaderSize), h.head.encode())

	offset := Offset(poolHeaderSize + heapHeaderSize)
	for i := 0; i < nzones; i++ {
		z := &zoneRuntime{
			headerOff:      offset,
			chunkHeaderArrayOff: offset + zoneHeaderSize,
			nchunks:        maxChunksPerZone,
			tentative:      make(map[int]bool),
		}
		z.firstChunkOff = z.chunkHeaderArrayOff + Offset(z.nchunks)*chunkHeaderSize

		zh := ZoneHeader{Magic: zoneMagic, SizeIdx: z.nchunks}
		copy(b.at(z.headerOff, zoneHeaderSize), zh.encode())

		first := ChunkHeader{Type: ChunkFree, SizeIdx: z.nchunks}
		copy(b.at(z.chunkHeaderOff(0), chunkHeaderSize), encodeWord(first.encode()))

		h.zones = append(h.zones, z)
		offset += maxZoneSize
	}

	wal, err := openLog(fs, path+".wal")
	if err != nil {
		return nil, err
	}
	h.wal = wal

	if err := b.flush(); err != nil {
		return nil, err
	}
	return h, nil
}

// Open reopens an existing pool file, replaying the write-ahead log
// before handing back a usable Heap. Classes referenced by any formatted
// run chunk must be passed in classes so the in-memory run index can be
// rebuilt from on-disk RunHeader.UnitSize.
func Open(fs vfs.FS, path string, classes []Class) (*Heap, error) {
	b, err := openBackend(fs, path, 0)
	if err != nil {
		return nil, err
	}
	if b.size() < poolHeaderSize+heapHeaderSize {
		return nil, errors.Wrap(ErrCorrupt, "heap: file too small for pool/heap headers")
	}

	pool := decodePoolHeader(b.at(0, poolHeaderSize))
	if pool.Magic != poolMagic {
		return nil, errors.Wrap(ErrCorrupt, "heap: bad pool magic")
	}
	head := decodeHeapHeader(b.at(poolHeaderSize, heapHeaderSize))
	if head.Magic != heapMagic {
		return nil, errors.Wrap(ErrCorrupt, "heap: bad heap magic")
	}

	h := &Heap{
		backend:     b,
		pool:        pool,
		head:        head,
		classes:     make(map[uint32]Class),
		runIndex:    make(map[uint32][]chunkRef),
		freeExtents: newFreeExtentTracker(),
	}
	for _, c := range classes {
		h.classes[c.ID] = c
	}

	offset := Offset(poolHeaderSize + heapHeaderSize)
	for i := uint32(0); i < head.NZones; i++ {
		zh := decodeZoneHeader(b.at(offset, zoneHeaderSize))
		if zh.Magic != zoneMagic {
			return nil, errors.Wrap(ErrCorrupt, "heap: bad zone magic")
		}
		z := &zoneRuntime{
			headerOff:      offset,
			chunkHeaderArrayOff: offset + zoneHeaderSize,
			nchunks:        zh.SizeIdx,
			tentative:      make(map[int]bool),
		}
		z.firstChunkOff = z.chunkHeaderArrayOff + Offset(z.nchunks)*chunkHeaderSize
		h.zones = append(h.zones, z)
		offset += maxZoneSize
	}

	wal, err := openLog(fs, path+".wal")
	if err != nil {
		return nil, err
	}
	h.wal = wal

	raw, err := wal.readAll()
	if err != nil {
		return nil, err
	}
	for _, batch := range replay(raw) {
		b.apply(batch)
	}

	h.rebuildRunIndex()

	if err := h.verifyInvariants(); err != nil {
		return nil, err
	}

	return h, nil
}

// rebuildRunIndex scans every zone's chunk headers for run chunks and,
// by matching the embedded RunHeader's unit size back to a registered
// class, repopulates the volatile classID -> chunk-location index.
func (h *Heap) rebuildRunIndex() {
	unitToClass := make(map[uint32]uint32, len(h.classes))
	for id, c := range h.classes {
		unitToClass[c.UnitSize] = id
	}

	for zi, z := range h.zones {
		idx := 0
		for idx < int(z.nchunks) {
			hdr := h.readChunkHeader(z, idx)
			switch hdr.Type {
			case ChunkRun:
				rh := decodeRunHeader(h.backend.at(z.chunkBodyOff(idx), runHeaderSize()))
				if classID, ok := unitToClass[rh.UnitSize]; ok {
					h.runIndex[classID] = append(h.runIndex[classID], chunkRef{zoneIdx: zi, chunkIdx: idx})
				}
				idx++
			case ChunkFree:
				idx += int(maxu32(hdr.SizeIdx, 1))
			default:
				idx += int(maxu32(hdr.SizeIdx, 1))
			}
		}
	}
}

// verifyInvariants checks the huge-block footer invariant (#2 in §8)
// for every used chunk, in its own scan of each zone's chunk headers,
// failing open with ErrCorrupt on mismatch.
func (h *Heap) verifyInvariants() error {
	for _, z := range h.zones {
		idx := 0
		for idx < int(z.nchunks) {
			hdr := h.readChunkHeader(z, idx)
			if hdr.Type == ChunkUsed && hdr.SizeIdx > 1 {
				footerIdx := idx + int(hdr.SizeIdx) - 1
				footer := h.readChunkHeader(z, footerIdx)
				if footer.Type != ChunkFooter || footer.SizeIdx != hdr.SizeIdx {
					return errors.Wrap(ErrCorrupt, "heap: huge-block footer mismatch")
				}
			}
			idx += int(maxu32(hdr.SizeIdx, 1))
		}
	}
	return nil
}

// At resolves off into a slice of the mapped region. Callers must not
// retain the slice past the next mutating Heap call that may grow the
// backing buffer.
func (h *Heap) At(off Offset, n int) []byte {
	return h.backend.at(off, n)
}

// commit writes batch as a single transaction: entries, then a commit
// record, fsynced to the log; only then are the entries applied to the
// mapped region and the region flushed to the backing file.
func (h *Heap) commit(batch []walEntry) error {
	if len(batch) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, e := range batch {
		buf.Write(e.encode())
	}
	buf.Write(walEntry{Type: EntryCommit}.encode())

	if err := h.wal.append(buf.Bytes()); err != nil {
		return err
	}

	h.backend.apply(replayBatch{entries: batch})
	return h.backend.flush()
}

// Close flushes and releases the heap's backing file and log.
func (h *Heap) Close() error {
	if err := h.backend.flush(); err != nil {
		return err
	}
	if err := h.backend.close(); err != nil {
		return err
	}
	return h.wal.close()
}

// Snapshot exports the heap's current mapped region as a zstd-compressed
// byte stream, used for the engine's cold-path pool-copy/backup path
// (as distinct from the WAL's snappy-compressed hot path).
func (h *Heap) Snapshot() ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "heap: create zstd encoder")
	}
	defer enc.Close()
	return enc.EncodeAll(h.backend.mem, nil), nil
}

// RestoreSnapshot overwrites the heap's mapped region with a previously
// exported Snapshot payload. It does not go through the write-ahead
// log: it is a whole-heap replace used for offline pool restore, not an
// online transaction.
func (h *Heap) RestoreSnapshot(payload []byte) error {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return errors.Wrap(err, "heap: create zstd decoder")
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return errors.Wrap(err, "heap: decode snapshot")
	}
	h.backend.grow(len(raw))
	copy(h.backend.mem, raw)
	return h.backend.flush()
}
