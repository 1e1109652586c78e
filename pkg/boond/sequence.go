package boond

import (
	"fmt"
	"sync"
	"time"
)

// SequenceAllocator hands out quotation reference numbers. References are
// numbered per prefix and month; allocations must be atomic so concurrent
// batches never interleave within one allocator.
type SequenceAllocator interface {
	// Next returns the next sequence number for the given prefix and month.
	Next(prefix string, month time.Time) int
}

// RunSequence is a SequenceAllocator scoped to a single generation run.
// Each run gets its own instance, so numbering never leaks across batches.
type RunSequence struct {
	mu   sync.Mutex
	next map[string]int
}

// NewRunSequence creates an allocator starting every key at 1.
func NewRunSequence() *RunSequence {
	return &RunSequence{next: make(map[string]int)}
}

func (s *RunSequence) Next(prefix string, month time.Time) int {
	key := fmt.Sprintf("%s-%s", prefix, month.Format("200601"))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[key]++
	return s.next[key]
}

// FormatReference builds the human-readable quotation reference, e.g.
// "DEV-202608-0042".
func FormatReference(prefix string, month time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, month.Format("200601"), seq)
}
