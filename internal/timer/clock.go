// Package timer implements the monotonic per-core tick counter, deadline
// queue, and one-shot arming decision. The real APIC
// one-shot and TSC/HPET hardware are out of scope; Clock
// models their observable contract: a tick counter, a sorted set of
// pending deadlines, and an armed/disarmed flag a scheduler can read.
package timer

import (
	"sort"
	"time"

	"github.com/hermit-os/kernel/internal/cpu"
	"github.com/hermit-os/kernel/internal/lock"
)

// Clock is one core's monotonic timer state.
type Clock struct {
	mu        lock.IRQSave
	ticks     cpu.Counter64
	freqMHz   int
	armed     bool
	deadlines []int64 // sorted ascending, tick values
}

// NewClock creates a clock calibrated to freqMHz (megahertz).
func NewClock(freqMHz int) *Clock {
	return &Clock{freqMHz: freqMHz}
}

// Tick advances the tick counter by one, as called from the timer IRQ
// handler, and returns the new value.
func (c *Clock) Tick() int64 {
	return c.ticks.Add(1) + 1
}

// Ticks implements get_clock_tick: the current tick counter value.
func (c *Clock) Ticks() int64 { return c.ticks.Read() }

// FrequencyMHz returns the calibrated CPU frequency.
func (c *Clock) FrequencyMHz() int { return c.freqMHz }

// SetTimer arms a one-shot deadline at the given absolute tick value.
func (c *Clock) SetTimer(deadlineTick int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := sort.Search(len(c.deadlines), func(i int) bool { return c.deadlines[i] >= deadlineTick })
	c.deadlines = append(c.deadlines, 0)
	copy(c.deadlines[i+1:], c.deadlines[i:])
	c.deadlines[i] = deadlineTick
	c.armed = true
}

// popExpiredLocked removes and returns every deadline <= now, in
// ascending order. Caller must hold c.mu.
func (c *Clock) popExpiredLocked(now int64) []int64 {
	i := sort.Search(len(c.deadlines), func(i int) bool { return c.deadlines[i] > now })
	expired := append([]int64(nil), c.deadlines[:i]...)
	c.deadlines = c.deadlines[i:]
	return expired
}

// Expired returns every deadline at or before the current tick value,
// removing them from the queue.
func (c *Clock) Expired() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.popExpiredLocked(c.ticks.Read())
}

// NearestDeadline reports how far in the future (as a duration, given the
// calibrated frequency) the nearest pending deadline is. ok is false if
// no deadline is pending.
func (c *Clock) NearestDeadline() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.deadlines) == 0 {
		return 0, false
	}
	deltaTicks := c.deadlines[0] - c.ticks.Read()
	if deltaTicks < 0 {
		deltaTicks = 0
	}
	return c.ticksToDurationLocked(deltaTicks), true
}

func (c *Clock) ticksToDurationLocked(ticks int64) time.Duration {
	if c.freqMHz <= 0 {
		return 0
	}
	// One tick is assumed to be one microsecond of wall-clock time at the
	// calibrated frequency's cadence; see DetectFrequencyMHz.
	return time.Duration(ticks) * time.Microsecond
}

// ArmNearest marks the timer as armed (the dyntick decision chose to keep
// the periodic/next-deadline interrupt enabled).
func (c *Clock) ArmNearest() {
	c.mu.Lock()
	c.armed = true
	c.mu.Unlock()
}

// Disarm marks the timer as disarmed: the core may halt until the next
// external IRQ (dyntick idle mode).
func (c *Clock) Disarm() {
	c.mu.Lock()
	c.armed = false
	c.mu.Unlock()
}

// Armed reports the current arm state, for tests.
func (c *Clock) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}
