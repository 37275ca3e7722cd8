package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestThrottleFourthCallWaitsForWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	th := NewThrottle(3)
	th.SetClock(clock.Now, clock.Sleep)

	stamps := make([]time.Time, 0, 4)
	for i := 0; i < 4; i++ {
		th.Wait()
		stamps = append(stamps, clock.Now())
	}

	assert.Equal(t, stamps[0], stamps[2], "first three calls pass without delay")
	assert.GreaterOrEqual(t, stamps[3].Sub(stamps[0]), time.Second)
	assert.Less(t, stamps[3].Sub(stamps[0]), time.Second+10*time.Millisecond)
}

func TestThrottleNeverExceedsRateInAnyWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	th := NewThrottle(5)
	th.SetClock(clock.Now, clock.Sleep)

	var stamps []time.Time
	for i := 0; i < 23; i++ {
		th.Wait()
		stamps = append(stamps, clock.Now())
		clock.Sleep(37 * time.Millisecond)
	}
	for i := range stamps {
		n := 0
		for j := i; j < len(stamps) && stamps[j].Sub(stamps[i]) <= time.Second; j++ {
			n++
		}
		require.LessOrEqual(t, n, 5, "window starting at call %d", i)
	}
}

func TestThrottleObserverReportsWait(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	th := NewThrottle(1)
	th.SetClock(clock.Now, clock.Sleep)
	var waits []time.Duration
	th.SetWaitObserver(func(d time.Duration) { waits = append(waits, d) })

	th.Wait()
	th.Wait()

	require.Len(t, waits, 2)
	assert.Zero(t, waits[0])
	assert.Greater(t, waits[1], time.Second)
	assert.Equal(t, 1, th.InWindow())
}

func TestThrottleSharedAcrossGoroutines(t *testing.T) {
	th := NewThrottle(4)
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th.Wait()
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestNewThrottleClampsRate(t *testing.T) {
	assert.Equal(t, 1, NewThrottle(0).Rate())
	assert.Equal(t, 7, NewThrottle(7).Rate())
}
