package object

import "encoding/binary"

// UnitOID addresses a logical object (spec §4.H): an object class, its
// shard within that class, and a publisher id disambiguating objects
// minted by different clients.
type UnitOID struct {
	Class uint32
	Shard uint32
	PubID uint64
}

// Encode packs an oid into its 16-byte wire/hash form, used both as
// the object directory's btree key material and as an anchor payload.
func (o UnitOID) Encode() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], o.Class)
	binary.LittleEndian.PutUint32(buf[4:8], o.Shard)
	binary.LittleEndian.PutUint64(buf[8:16], o.PubID)
	return buf
}

// DecodeUnitOID is the inverse of Encode.
func DecodeUnitOID(buf []byte) UnitOID {
	return UnitOID{
		Class: binary.LittleEndian.Uint32(buf[0:4]),
		Shard: binary.LittleEndian.Uint32(buf[4:8]),
		PubID: binary.LittleEndian.Uint64(buf[8:16]),
	}
}
