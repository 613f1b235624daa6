package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickAdvancesCounter(t *testing.T) {
	c := NewClock(1000)
	assert.Equal(t, int64(0), c.Ticks())
	assert.Equal(t, int64(1), c.Tick())
	assert.Equal(t, int64(2), c.Tick())
	assert.Equal(t, int64(2), c.Ticks())
}

func TestSetTimerOrdersDeadlinesAscending(t *testing.T) {
	c := NewClock(1000)
	c.SetTimer(50)
	c.SetTimer(10)
	c.SetTimer(30)
	assert.Equal(t, []int64{10, 30, 50}, c.deadlines)
}

func TestExpiredRemovesOnlyPastDeadlines(t *testing.T) {
	c := NewClock(1000)
	c.SetTimer(1)
	c.SetTimer(2)
	c.SetTimer(100)
	c.Tick()
	c.Tick()

	expired := c.Expired()
	assert.Equal(t, []int64{1, 2}, expired)
	assert.Equal(t, []int64{100}, c.deadlines)
}

func TestNearestDeadlineReportsDuration(t *testing.T) {
	c := NewClock(1000)
	_, ok := c.NearestDeadline()
	assert.False(t, ok)

	c.SetTimer(5)
	d, ok := c.NearestDeadline()
	require.True(t, ok)
	assert.Equal(t, 5*time.Microsecond, d)
}

func TestArmDisarm(t *testing.T) {
	c := NewClock(1000)
	assert.False(t, c.Armed())
	c.ArmNearest()
	assert.True(t, c.Armed())
	c.Disarm()
	assert.False(t, c.Armed())
}
