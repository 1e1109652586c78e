package boond

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunSequence_Monotonic(t *testing.T) {
	t.Parallel()

	seq := NewRunSequence()
	month := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		assert.Equal(t, i, seq.Next("DEV", month))
	}
}

func TestRunSequence_IndependentKeys(t *testing.T) {
	t.Parallel()

	seq := NewRunSequence()
	aug := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	sep := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, seq.Next("DEV", aug))
	assert.Equal(t, 2, seq.Next("DEV", aug))

	// A new month or prefix starts its own numbering.
	assert.Equal(t, 1, seq.Next("DEV", sep))
	assert.Equal(t, 1, seq.Next("AVN", aug))
}

func TestRunSequence_FreshInstanceStartsOver(t *testing.T) {
	t.Parallel()

	month := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	first := NewRunSequence()
	first.Next("DEV", month)
	first.Next("DEV", month)

	// Numbering is scoped to the allocator, not shared process state.
	second := NewRunSequence()
	assert.Equal(t, 1, second.Next("DEV", month))
}

func TestRunSequence_ConcurrentAllocationsAreUnique(t *testing.T) {
	t.Parallel()

	seq := NewRunSequence()
	month := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	const n = 100
	results := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = seq.Next("DEV", month)
		}(i)
	}
	wg.Wait()

	sort.Ints(results)
	for i, got := range results {
		assert.Equal(t, i+1, got, "sequence must have no gaps or duplicates")
	}
}

func TestFormatReference(t *testing.T) {
	t.Parallel()

	month := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "DEV-202608-0042", FormatReference("DEV", month, 42))
	assert.Equal(t, "AVN-202601-0001", FormatReference("AVN", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), 1))
}
