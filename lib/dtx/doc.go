// Package dtx maintains the active distributed-transaction cache a
// single engine target holds for the object layer it sits beside
// (spec §4.I): transactions are tracked in an LRU array keyed by
// (uuid, hlc) while in flight, committed or aborted in batches, and
// resynced against participant views after a leader change.
package dtx
