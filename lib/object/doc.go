// Package object composes the B+tree, extent tree, and incarnation log
// packages into the object/key addressing layer of spec §4.H: a pool
// holds containers, a container holds a B+tree of objects keyed by
// unit_oid, an object holds a dkey B+tree, a dkey holds an akey
// B+tree, and an akey holds either a single-value tree or an extent
// tree — never both, tracked by the key record's bitmap. A volatile,
// LRU-backed handle cache sits in front of the object directory the
// same way the teacher's sharded map sits in front of its key/value
// store.
package object
