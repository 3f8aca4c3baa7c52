package dtx

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/vosdb/engine/lib/hlc"
)

// ID is a distributed-transaction identifier: a uuid minted by the
// coordinating target plus the hlc timestamp it began at (spec §3/§4.I).
type ID struct {
	UUID uuid.UUID
	HLC  hlc.Timestamp
}

// NewID mints a fresh id stamped at ts.
func NewID(ts hlc.Timestamp) ID {
	return ID{UUID: uuid.New(), HLC: ts}
}

// Encode packs an id into its 24-byte wire form: 16 bytes of uuid
// followed by the 8-byte hlc timestamp.
func (id ID) Encode() []byte {
	buf := make([]byte, 24)
	copy(buf[:16], id.UUID[:])
	binary.LittleEndian.PutUint64(buf[16:24], uint64(id.HLC))
	return buf
}

// hashKey derives the uint64 slot key lib/lru.Array addresses entries
// by, since the array is agnostic to what a caller's key represents.
func (id ID) hashKey() uint64 { return xxhash.Sum64(id.Encode()) }

func (id ID) String() string {
	return fmt.Sprintf("%s@%s", id.UUID, id.HLC)
}
