package heap

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// ErrNoSpace is returned when no free chunk or run unit can satisfy a
// reservation.
var ErrNoSpace = errors.New("heap: no space available for reservation")

// ErrInvalidArgument flags a malformed reservation or class request.
var ErrInvalidArgument = errors.New("heap: invalid argument")

// Class describes an allocation class: the unit size of its runs, how
// many units a run carries, required alignment, and which header shape
// backs its allocations.
type Class struct {
	ID             uint32
	UnitSize       uint32
	NAllocsPerRun  uint32
	Alignment      uint32
	HeaderType     AllocHeaderType
	FlexBitmap     bool
}

// RegisterClass adds an allocation class. Re-registering the same ID
// overwrites the previous definition; this is only safe before any
// reservation against that class has happened.
func (h *Heap) RegisterClass(c Class) error {
	if c.UnitSize == 0 || c.NAllocsPerRun == 0 {
		return ErrInvalidArgument
	}
	h.classes[c.ID] = c
	return nil
}

type reservationKind int

const (
	reserveHuge reservationKind = iota
	reserveRun
)

type chunkRef struct {
	zoneIdx  int
	chunkIdx int
}

// ActionToken is a deferred-commit intent returned by Reserve*. Nothing
// it describes is visible in the mapped region until it is handed to
// Publish; Cancel releases it without any persistent effect.
type ActionToken struct {
	id      uint64
	kind    reservationKind
	ref     chunkRef
	sizeIdx uint32 // reserveHuge: chunks spanned
	classID uint32 // reserveRun
	unitIdx uint32 // reserveRun: bit index within the run's bitmap
	payload Offset // resolved start of the reserved payload bytes

	pending    []walEntry
	deferFrees []Offset
	done       bool
}

// Payload returns the offset of the reserved allocation's usable bytes.
func (t *ActionToken) Payload() Offset { return t.payload }

// Reserve returns a token describing a pending reservation. When
// classID names a registered class it reserves one run unit of that
// class; otherwise it selects a free chunk spanning at least size bytes
// (rounded up to whole chunks) for a "huge" single allocation. arenaID
// is accepted but not used. Callers apply constructors themselves via
// SetValue before Publish.
func (h *Heap) Reserve(size uint64, classID uint32, arenaID uint32) (*ActionToken, error) {
	if classID != 0 {
		if _, ok := h.classes[classID]; ok {
			return h.reserveRunToken(classID)
		}
	}
	nchunks := uint32((size + chunkSize - 1) / chunkSize)
	if nchunks == 0 {
		nchunks = 1
	}
	return h.reserveHugeToken(nchunks)
}

func (h *Heap) reserveHugeToken(nchunks uint32) (*ActionToken, error) {
	for zi, z := range h.zones {
		if start, ok := h.findFreeRun(z, nchunks); ok {
			h.markTentative(z, start, nchunks)
			h.nextTokenID++
			return &ActionToken{
				id:      h.nextTokenID,
				kind:    reserveHuge,
				ref:     chunkRef{zoneIdx: zi, chunkIdx: start},
				sizeIdx: nchunks,
				payload: z.chunkBodyOff(start) + Offset(HeaderLegacy.Size()),
			}, nil
		}
	}
	return nil, ErrNoSpace
}

// findFreeRun scans zone z's chunk-header array for the first free
// block (ignoring chunks marked tentative by an in-flight, unpublished
// reservation) whose size_idx is at least need; this is the allocator's
// first-fit search.
func (h *Heap) findFreeRun(z *zoneRuntime, need uint32) (int, bool) {
	idx := 0
	for idx < int(z.nchunks) {
		if z.tentative[idx] {
			idx++
			continue
		}
		hdr := h.readChunkHeader(z, idx)
		if hdr.Type == ChunkFree && hdr.SizeIdx >= need {
			return idx, true
		}
		if hdr.Type == ChunkFree {
			idx += int(hdr.SizeIdx)
		} else {
			idx++
		}
	}
	return 0, false
}

func (h *Heap) markTentative(z *zoneRuntime, start int, n uint32) {
	for i := start; i < start+int(n); i++ {
		z.tentative[i] = true
	}
}

func (h *Heap) unmarkTentative(z *zoneRuntime, start int, n uint32) {
	for i := start; i < start+int(n); i++ {
		delete(z.tentative, i)
	}
}

func (h *Heap) reserveRunToken(classID uint32) (*ActionToken, error) {
	class := h.classes[classID]

	for _, ref := range h.runIndex[classID] {
		z := h.zones[ref.zoneIdx]
		if idx, ok := h.findFreeUnit(z, ref.chunkIdx, class); ok {
			h.nextTokenID++
			return &ActionToken{
				id:      h.nextTokenID,
				kind:    reserveRun,
				ref:     ref,
				classID: classID,
				unitIdx: idx,
				payload: runUnitOffset(z, ref.chunkIdx, class, idx),
			}, nil
		}
	}

	// no existing run chunk has a free unit; carve a fresh chunk.
	tok, err := h.reserveHugeToken(1)
	if err != nil {
		return nil, err
	}
	z := h.zones[tok.ref.zoneIdx]
	tok.kind = reserveRun
	tok.classID = classID
	tok.unitIdx = 0
	tok.payload = runUnitOffset(z, tok.ref.chunkIdx, class, 0)
	tok.pending = append(tok.pending, h.runFormatEntries(z, tok.ref.chunkIdx, class)...)
	h.runIndex[classID] = append(h.runIndex[classID], tok.ref)
	return tok, nil
}

// findFreeUnit searches the run at chunkIdx for a clear (free) bit.
func (h *Heap) findFreeUnit(z *zoneRuntime, chunkIdx int, class Class) (uint32, bool) {
	bitmapOff := z.chunkBodyOff(chunkIdx) + Offset(runHeaderSize())
	nbits := class.NAllocsPerRun
	words := bitmapWordCount(class)
	buf := h.backend.at(bitmapOff, int(words)*8)
	for bit := uint32(0); bit < nbits; bit++ {
		word := bit / 64
		shift := bit % 64
		v := binary.LittleEndian.Uint64(buf[word*8 : word*8+8])
		if v&(1<<shift) == 0 {
			return bit, true
		}
	}
	return 0, false
}

func bitmapWordCount(class Class) uint32 {
	if class.FlexBitmap {
		return flexBitmapWords(class.NAllocsPerRun)
	}
	return defaultBitmapWords
}

func runUnitOffset(z *zoneRuntime, chunkIdx int, class Class, unitIdx uint32) Offset {
	bitmapOff := z.chunkBodyOff(chunkIdx) + Offset(runHeaderSize())
	dataOff := bitmapOff + Offset(bitmapWordCount(class)*8)
	return dataOff + Offset(unitIdx*class.UnitSize)
}

// runFormatEntries returns the WAL entries that initialize a freshly
// carved chunk as a run for class: the chunk header, the RunHeader, and
// a bitmap with any trailing (beyond nbits) bits pre-set to one.
func (h *Heap) runFormatEntries(z *zoneRuntime, chunkIdx int, class Class) []walEntry {
	var entries []walEntry

	hdr := ChunkHeader{Type: ChunkRun, SizeIdx: 1}
	entries = append(entries, walEntry{
		Type:      EntrySet,
		TargetOff: z.chunkHeaderOff(chunkIdx),
		Payload:   encodeWord(hdr.encode()),
	})

	words := bitmapWordCount(class)
	rh := RunHeader{UnitSize: class.UnitSize, Alignment: class.Alignment, NUnits: class.NAllocsPerRun, BitmapWords: words}
	rhBytes := rh.encode()
	for i := 0; i < len(rhBytes); i += 8 {
		end := i + 8
		if end > len(rhBytes) {
			end = len(rhBytes)
		}
		word := make([]byte, 8)
		copy(word, rhBytes[i:end])
		entries = append(entries, walEntry{Type: EntrySet, TargetOff: z.chunkBodyOff(chunkIdx) + Offset(i), Payload: word})
	}

	if class.NAllocsPerRun < words*64 {
		bitmapOff := z.chunkBodyOff(chunkIdx) + Offset(runHeaderSize())
		entries = append(entries, walEntry{
			Type:      EntrySetBits,
			TargetOff: bitmapOff,
			StartBit:  class.NAllocsPerRun,
			RunLength: words*64 - class.NAllocsPerRun,
		})
	}

	return entries
}

func encodeWord(w uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, w)
	return buf
}

// SetValue queues a write of value at byte offset off (relative to the
// pool base) inside token's pending batch; it is not visible until
// Publish.
func (h *Heap) SetValue(off Offset, value []byte, tok *ActionToken) error {
	if tok.done {
		return ErrInvalidArgument
	}
	for i := 0; i < len(value); i += 8 {
		end := i + 8
		if end > len(value) {
			end = len(value)
		}
		word := make([]byte, 8)
		copy(word, value[i:end])
		tok.pending = append(tok.pending, walEntry{Type: EntrySet, TargetOff: off + Offset(i), Payload: word})
	}
	return nil
}

// DeferFree queues off to be freed atomically when tok is published.
func (h *Heap) DeferFree(off Offset, tok *ActionToken) {
	tok.deferFrees = append(tok.deferFrees, off)
}

// Publish atomically applies every token's pending mutations (including
// the reservation itself) under a single write-ahead-log transaction.
func (h *Heap) Publish(tokens []*ActionToken) error {
	var batch []walEntry
	for _, tok := range tokens {
		if tok.done {
			continue
		}
		switch tok.kind {
		case reserveHuge:
			z := h.zones[tok.ref.zoneIdx]
			batch = append(batch, h.hugeAllocEntries(z, tok.ref.chunkIdx, tok.sizeIdx)...)
		case reserveRun:
			z := h.zones[tok.ref.zoneIdx]
			bitmapOff := z.chunkBodyOff(tok.ref.chunkIdx) + Offset(runHeaderSize())
			batch = append(batch, walEntry{Type: EntrySetBits, TargetOff: bitmapOff, StartBit: tok.unitIdx, RunLength: 1})
		}
		batch = append(batch, tok.pending...)
		for _, off := range tok.deferFrees {
			batch = append(batch, h.freeEntries(off)...)
			if z, idx, ok := h.locateChunk(off); ok {
				hdr := h.readChunkHeader(z, idx)
				h.freeExtents.Track(off, uint64(maxu32(hdr.SizeIdx, 1))*chunkSize)
			}
		}
	}

	if err := h.commit(batch); err != nil {
		return err
	}

	for _, tok := range tokens {
		if tok.kind == reserveHuge {
			z := h.zones[tok.ref.zoneIdx]
			h.unmarkTentative(z, tok.ref.chunkIdx, tok.sizeIdx)
		}
		tok.done = true
	}
	return nil
}

// Cancel releases the tokens' reservations without persisting anything.
func (h *Heap) Cancel(tokens []*ActionToken) {
	for _, tok := range tokens {
		if tok.done {
			continue
		}
		if tok.kind == reserveHuge || (tok.kind == reserveRun && tok.unitIdx == 0 && len(tok.pending) > 0) {
			// only undo the tentative chunk marking; a run reservation
			// that reused an already-formatted chunk never marked one.
		}
		z := h.zones[tok.ref.zoneIdx]
		if tok.kind == reserveHuge {
			h.unmarkTentative(z, tok.ref.chunkIdx, tok.sizeIdx)
		}
		tok.done = true
	}
}

// hugeAllocEntries marks chunk range [start, start+n) used, leaving a
// trailing free remainder header and writing the footer the huge-block
// invariant requires.
func (h *Heap) hugeAllocEntries(z *zoneRuntime, start int, n uint32) []walEntry {
	var entries []walEntry
	free := h.readChunkHeader(z, start)

	entries = append(entries, walEntry{
		Type:      EntrySet,
		TargetOff: z.chunkHeaderOff(start),
		Payload:   encodeWord(ChunkHeader{Type: ChunkUsed, SizeIdx: n}.encode()),
	})
	if n > 1 {
		entries = append(entries, walEntry{
			Type:      EntrySet,
			TargetOff: z.chunkHeaderOff(start + int(n) - 1),
			Payload:   encodeWord(ChunkHeader{Type: ChunkFooter, SizeIdx: n}.encode()),
		})
	}
	if free.SizeIdx > n {
		remainder := free.SizeIdx - n
		entries = append(entries, walEntry{
			Type:      EntrySet,
			TargetOff: z.chunkHeaderOff(start + int(n)),
			Payload:   encodeWord(ChunkHeader{Type: ChunkFree, SizeIdx: remainder}.encode()),
		})
	}
	return entries
}

// freeEntries marks the huge or run allocation rooted at off free,
// coalescing with a directly-preceding free neighbor when one exists.
// A directly-following free neighbor is not merged, and findFreeRun
// does not combine adjacent free blocks either: it checks each free
// header's size_idx on its own.
func (h *Heap) freeEntries(off Offset) []walEntry {
	z, chunkIdx, ok := h.locateChunk(off)
	if !ok {
		return nil
	}
	hdr := h.readChunkHeader(z, chunkIdx)

	start := chunkIdx
	size := hdr.SizeIdx
	if prevStart, prevSize, ok := h.precedingFreeBlock(z, chunkIdx); ok {
		start = prevStart
		size += prevSize
	}

	return []walEntry{{
		Type:      EntrySet,
		TargetOff: z.chunkHeaderOff(start),
		Payload:   encodeWord(ChunkHeader{Type: ChunkFree, SizeIdx: size}.encode()),
	}}
}

func (h *Heap) precedingFreeBlock(z *zoneRuntime, chunkIdx int) (int, uint32, bool) {
	idx := 0
	for idx < chunkIdx {
		hdr := h.readChunkHeader(z, idx)
		next := idx + int(maxu32(hdr.SizeIdx, 1))
		if next == chunkIdx && hdr.Type == ChunkFree {
			return idx, hdr.SizeIdx, true
		}
		idx = next
	}
	return 0, 0, false
}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func (h *Heap) locateChunk(off Offset) (*zoneRuntime, int, bool) {
	for _, z := range h.zones {
		if off >= z.firstChunkOff && off < z.firstChunkOff+Offset(z.nchunks)*chunkSize {
			idx := int((off - z.firstChunkOff) / chunkSize)
			return z, idx, true
		}
	}
	return nil, 0, false
}

func (h *Heap) readChunkHeader(z *zoneRuntime, idx int) ChunkHeader {
	word := binary.LittleEndian.Uint64(h.backend.at(z.chunkHeaderOff(idx), chunkHeaderSize))
	return decodeChunkHeader(word)
}
