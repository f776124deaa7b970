package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsPinned(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	// Repeated reads do not drift.
	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestClock_Advance(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	clock.Advance(48 * time.Hour)
	assert.Equal(t, start.Add(48*time.Hour), clock.Now())

	// Negative advances are ignored.
	clock.Advance(-time.Hour)
	assert.Equal(t, start.Add(48*time.Hour), clock.Now())
}

func TestClock_Set(t *testing.T) {
	clock := NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	target := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	clock.Set(target)
	assert.Equal(t, target, clock.Now())
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			clock.Advance(time.Minute)
		}()
		go func() {
			defer wg.Done()
			_ = clock.Now()
		}()
	}
	wg.Wait()

	want := time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)
	assert.Equal(t, want, clock.Now())
}
