// Package synch holds the synchronization primitives shared by every
// Partition in a run: one mutex guarding all simulator-client calls, one
// barrier enforcing the global tick boundary, and one condition variable
// (paired with the mutex)
// waking peers blocked in a handshake wait.
//
// A run constructs exactly one SharedSynch and hands it to every
// Partition, rather than relying on process-global state, per the design
// note in spec section 9 ("Global synchronization state").
package synch

import "sync"

// SharedSynch bundles the three primitives spec.md section 5 describes.
type SharedSynch struct {
	// Mu guards every call into any simulator client and every mutation
	// of a partition's previous-vehicles memory performed from a peer's
	// handler.
	Mu sync.Mutex
	// Cond is paired with Mu and wakes goroutines parked in
	// Partition.WaitForSynch.
	Cond *sync.Cond
	// Barrier rendezvouses all N partitions at the end of each tick.
	Barrier *Barrier
}

// New creates the shared synchronization state for a run of n partitions.
func New(n int) *SharedSynch {
	s := &SharedSynch{}
	s.Cond = sync.NewCond(&s.Mu)
	s.Barrier = NewBarrier(n)
	return s
}
