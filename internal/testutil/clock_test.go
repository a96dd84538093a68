package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_DefaultsToEpoch(t *testing.T) {
	clock := NewManualClock(time.Time{})
	assert.Equal(t, Epoch, clock.Now())
}

func TestManualClock_AdvanceAndSet(t *testing.T) {
	clock := NewManualClock(Epoch)

	assert.Equal(t, Epoch.Add(time.Minute), clock.Advance(time.Minute))
	assert.Equal(t, Epoch.Add(time.Minute), clock.Now())

	later := time.Date(2027, 6, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))
	clock.Set(later)
	assert.True(t, clock.Now().Equal(later))
	assert.Equal(t, time.UTC, clock.Now().Location())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock(Epoch)
	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(goroutines*time.Second), clock.Now())
}
