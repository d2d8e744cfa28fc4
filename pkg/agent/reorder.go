package agent

import "sync"

// reorderGapTolerance bounds how long the buffer waits for a missing batch.
// A gap wider than this drains whatever arrived rather than stalling playback.
const reorderGapTolerance = 2

// Reorderer reconstructs delivery order for sequenced audio batches arriving
// over a transport with no ordering guarantee. One instance per direction.
type Reorderer struct {
	mu            sync.Mutex
	lastProcessed int64
	pending       map[int64][]string
	process       func(items []string)
}

// NewReorderer calls process with each batch's items in sequence order.
func NewReorderer(process func(items []string)) *Reorderer {
	return &Reorderer{
		lastProcessed: -1,
		pending:       make(map[int64][]string),
		process:       process,
	}
}

// Next accepts one sequenced batch. Duplicates and stale batches are dropped.
func (r *Reorderer) Next(seq int64, items []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq <= r.lastProcessed {
		return
	}
	r.pending[seq] = items

	if seq != r.lastProcessed+1 && seq-r.lastProcessed <= reorderGapTolerance {
		return
	}
	if seq-r.lastProcessed > reorderGapTolerance {
		// give up on the missing batches and skip forward, discarding
		// anything parked behind the new position
		r.lastProcessed = seq - 1
		for parked := range r.pending {
			if parked <= r.lastProcessed {
				delete(r.pending, parked)
			}
		}
	}
	for {
		next, ok := r.pending[r.lastProcessed+1]
		if !ok {
			return
		}
		delete(r.pending, r.lastProcessed+1)
		r.lastProcessed++
		r.process(next)
	}
}
