package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrandString(t *testing.T) {
	mhz, ok := ParseBrandString("Intel(R) Xeon(R) CPU @ 2.40GHz")
	require.True(t, ok)
	assert.Equal(t, 2400, mhz)

	_, ok = ParseBrandString("unknown CPU")
	assert.False(t, ok)
}

type fakeCalibrator struct{ n int64 }

func (f *fakeCalibrator) Now() int64 {
	f.n += 2400 // simulate 2400 ticks elapsing per call
	return f.n
}

func TestCalibrateTSC(t *testing.T) {
	cal := &fakeCalibrator{}
	mhz := CalibrateTSC(cal, time.Millisecond, func(time.Duration) {})
	assert.Equal(t, 2, mhz) // 2400 ticks / 1000 microseconds = 2 ticks/us (approx MHz)
}

func TestDetectFrequencyMHzPrefersOverride(t *testing.T) {
	mhz, err := DetectFrequencyMHz(3000, "whatever", nil, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 3000, mhz)
}

func TestDetectFrequencyMHzFallsBackToBrandString(t *testing.T) {
	mhz, err := DetectFrequencyMHz(0, "CPU @ 1.80GHz", nil, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1800, mhz)
}

func TestDetectFrequencyMHzFallsBackToCalibration(t *testing.T) {
	cal := &fakeCalibrator{}
	mhz, err := DetectFrequencyMHz(0, "no match here", cal, time.Millisecond, func(time.Duration) {})
	require.NoError(t, err)
	assert.Equal(t, 2, mhz)
}

func TestDetectFrequencyMHzErrorsWithNoStrategy(t *testing.T) {
	_, err := DetectFrequencyMHz(0, "no match", nil, 0, nil)
	assert.ErrorIs(t, err, ErrNoFrequency)
}
