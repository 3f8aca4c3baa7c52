package heap

import "encoding/binary"

// Offset addresses a byte within the heap's mapped region, relative to
// the pool base. Offset 0 is reserved (nil-equivalent); every real
// allocation starts at a positive offset. Cross-structure references
// (B+tree child pointers, extent-tree nodes, incarnation-log records)
// are always Offset, never a runtime pointer — the mapped region may be
// relocated between opens.
type Offset uint64

const (
	// NullOffset is the reserved zero offset meaning "no reference".
	NullOffset Offset = 0

	poolHeaderSize = 4096
	heapHeaderSize = 1024

	zoneHeaderSize  = 64
	chunkHeaderSize = 8
	chunkSize       = 256 * 1024
	// maxChunksPerZone keeps a zone at or below ~16GiB: 65528 * 256KiB
	// ≈ 15.998GiB, matching the spec's named slot count exactly.
	maxChunksPerZone = 65528
	maxZoneSize      = zoneHeaderSize + maxChunksPerZone*(chunkHeaderSize+chunkSize)

	poolMagic = 0x564f53504f4f4c31 // "VOSPOOL1" packed
	heapMagic = 0x564f534845415031 // "VOSHEAP1" packed
	zoneMagic = 0x565a4f4e45           // "VZONE"
)

// ChunkType is the allocation state of a chunk, encoded in the low byte
// of its ChunkHeader.
type ChunkType uint8

const (
	ChunkFree ChunkType = iota
	ChunkUsed
	ChunkRun
	ChunkRunData
	ChunkFooter
)

func (t ChunkType) String() string {
	switch t {
	case ChunkFree:
		return "free"
	case ChunkUsed:
		return "used"
	case ChunkRun:
		return "run"
	case ChunkRunData:
		return "run_data"
	case ChunkFooter:
		return "footer"
	default:
		return "unknown"
	}
}

// ChunkFlags are per-chunk-header bits orthogonal to ChunkType.
type ChunkFlags uint16

const (
	FlagCompactHeader ChunkFlags = 1 << iota
	FlagHeaderNone
	FlagAligned
	FlagFlexBitmap
)

// PoolHeader is the first 4KiB of the pool file.
type PoolHeader struct {
	Magic    uint64
	Version  uint32
	Size     uint64
	RootOff  Offset
	StatsOff Offset
}

func (h PoolHeader) encode() []byte {
	buf := make([]byte, poolHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint64(buf[16:24], h.Size)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.RootOff))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.StatsOff))
	return buf
}

func decodePoolHeader(buf []byte) PoolHeader {
	return PoolHeader{
		Magic:    binary.LittleEndian.Uint64(buf[0:8]),
		Version:  binary.LittleEndian.Uint32(buf[8:12]),
		Size:     binary.LittleEndian.Uint64(buf[16:24]),
		RootOff:  Offset(binary.LittleEndian.Uint64(buf[24:32])),
		StatsOff: Offset(binary.LittleEndian.Uint64(buf[32:40])),
	}
}

// HeapHeader is the 1KiB header immediately following PoolHeader.
type HeapHeader struct {
	Magic      uint64
	Size       uint64
	NZones     uint32
	ZoneLayout uint32 // reserved for future non-uniform zone sizing
}

func (h HeapHeader) encode() []byte {
	buf := make([]byte, heapHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	binary.LittleEndian.PutUint64(buf[8:16], h.Size)
	binary.LittleEndian.PutUint32(buf[16:20], h.NZones)
	binary.LittleEndian.PutUint32(buf[20:24], h.ZoneLayout)
	return buf
}

func decodeHeapHeader(buf []byte) HeapHeader {
	return HeapHeader{
		Magic:      binary.LittleEndian.Uint64(buf[0:8]),
		Size:       binary.LittleEndian.Uint64(buf[8:16]),
		NZones:     binary.LittleEndian.Uint32(buf[16:20]),
		ZoneLayout: binary.LittleEndian.Uint32(buf[20:24]),
	}
}

// ZoneHeader is the 64-byte header at the start of every zone.
type ZoneHeader struct {
	Magic   uint64
	SizeIdx uint32
	Flags   uint32
}

func (z ZoneHeader) encode() []byte {
	buf := make([]byte, zoneHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], z.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], z.SizeIdx)
	binary.LittleEndian.PutUint32(buf[12:16], z.Flags)
	return buf
}

func decodeZoneHeader(buf []byte) ZoneHeader {
	return ZoneHeader{
		Magic:   binary.LittleEndian.Uint64(buf[0:8]),
		SizeIdx: binary.LittleEndian.Uint32(buf[8:12]),
		Flags:   binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// ChunkHeader packs type(8) | flags(16) | size_idx(32) | reserved(8)
// into the 8-byte on-disk representation named in spec §6.
type ChunkHeader struct {
	Type     ChunkType
	Flags    ChunkFlags
	SizeIdx  uint32
	Reserved uint8
}

func (c ChunkHeader) encode() uint64 {
	return uint64(c.Type) |
		uint64(c.Flags)<<8 |
		uint64(c.SizeIdx)<<24 |
		uint64(c.Reserved)<<56
}

func decodeChunkHeader(word uint64) ChunkHeader {
	return ChunkHeader{
		Type:     ChunkType(word & 0xff),
		Flags:    ChunkFlags((word >> 8) & 0xffff),
		SizeIdx:  uint32((word >> 24) & 0xffffffff),
		Reserved: uint8(word >> 56),
	}
}

// RunHeader precedes a run's bitmap and unit data.
type RunHeader struct {
	UnitSize  uint32
	Alignment uint32
	NUnits    uint32
	// BitmapWords is sized so usable data starts cacheline-aligned
	// after an integer number of bitmap words (the "flex bitmap" rule
	// in spec §4.D); for the fixed/default bitmap this is the
	// constant defaultBitmapWords.
	BitmapWords uint32
}

const (
	cachelineBytes     = 64
	defaultBitmapWords = cachelineBytes / 8 // 8 words = 512 bits, tree-friendly default
)

func flexBitmapWords(nbits uint32) uint32 {
	words := (nbits + 63) / 64
	// round up so bitmap occupies an integer number of cachelines
	wordsPerLine := uint32(cachelineBytes / 8)
	if words%wordsPerLine != 0 {
		words += wordsPerLine - words%wordsPerLine
	}
	if words == 0 {
		words = wordsPerLine
	}
	return words
}

func runHeaderSize() int { return 16 }

func (r RunHeader) encode() []byte {
	buf := make([]byte, runHeaderSize())
	binary.LittleEndian.PutUint32(buf[0:4], r.UnitSize)
	binary.LittleEndian.PutUint32(buf[4:8], r.Alignment)
	binary.LittleEndian.PutUint32(buf[8:12], r.NUnits)
	binary.LittleEndian.PutUint32(buf[12:16], r.BitmapWords)
	return buf
}

func decodeRunHeader(buf []byte) RunHeader {
	return RunHeader{
		UnitSize:    binary.LittleEndian.Uint32(buf[0:4]),
		Alignment:   binary.LittleEndian.Uint32(buf[4:8]),
		NUnits:      binary.LittleEndian.Uint32(buf[8:12]),
		BitmapWords: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// AllocHeaderType selects the per-allocation-class object header.
type AllocHeaderType uint8

const (
	// HeaderLegacy is the 64-byte header: size + type + flags + a
	// 48-byte red zone used for corruption canaries in the original
	// implementation; vosdb keeps the slot for layout compatibility
	// but does not populate the red zone.
	HeaderLegacy AllocHeaderType = iota
	// HeaderCompact packs size|flags into 16 bytes plus one word of
	// caller-defined "extra".
	HeaderCompact
	// HeaderNone carries no allocator-owned header at all; the class
	// callback is trusted to know the object's size.
	HeaderNone
)

func (t AllocHeaderType) Size() int {
	switch t {
	case HeaderLegacy:
		return 64
	case HeaderCompact:
		return 16
	default:
		return 0
	}
}
