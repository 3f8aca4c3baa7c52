// Package hlc implements a hybrid logical clock that stamps every epoch
// used for multi-version visibility across the engine. A timestamp packs a
// 46-bit physical component (nanoseconds since 2021-01-01, scaled by 16) and
// an 18-bit logical counter into a single monotone uint64, generated via a
// compare-and-swap loop on each Clock's own atomic state the same way
// mapleImpl maintains its write index with atomic.Uint64.CompareAndSwap.
// The package keeps no process-wide clock; every NewClock is independent.
package hlc
