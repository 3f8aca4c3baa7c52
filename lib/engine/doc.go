// Package engine bootstraps one engine instance (spec §9): it wires
// the persistent heap, the object/key layer, the HLC clock, the DTX
// cache and the garbage collector behind a single Init/Fini lifecycle,
// and carries the ambient stack — config, error kinds, logging,
// metrics and the cooperative-task scheduler — that every other
// package in this module composes into.
package engine
