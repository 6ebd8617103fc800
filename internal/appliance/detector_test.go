package appliance_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/cyclewatch/internal/appliance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, time.March, 12, 8, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return base.Add(time.Duration(seconds * float64(time.Second)))
}

func testConfig() appliance.Config {
	cfg := appliance.DefaultConfig()
	cfg.StartWatts = 10
	cfg.StopWatts = 5
	cfg.DeadZoneWatts = 1
	cfg.StartDebounce = 5 * time.Second
	cfg.EndDebounce = 15 * time.Second

	return cfg
}

func TestStartCommitsWithEffectiveTimestamp(t *testing.T) {
	det := appliance.NewDetector(testConfig())

	out := det.Observe(at(0), 0)
	assert.Nil(t, out.Transition)
	assert.False(t, det.Running())

	out = det.Observe(at(1), 12)
	assert.True(t, out.PendingOpened)
	assert.Nil(t, out.Transition, "debounce window not yet elapsed")

	out = det.Observe(at(6), 12)
	require.NotNil(t, out.Transition)
	assert.Equal(t, appliance.DirectionStart, out.Transition.Direction)
	assert.Equal(t, at(1), out.Transition.Effective, "effective timestamp is the first qualifying reading")
	assert.True(t, det.Running())
}

func TestSpikeShorterThanDebounceNeverStarts(t *testing.T) {
	det := appliance.NewDetector(testConfig())

	det.Observe(at(0), 0)
	out := det.Observe(at(1), 500)
	assert.True(t, out.PendingOpened)

	out = det.Observe(at(3), 2)
	assert.True(t, out.PendingCanceled)
	assert.Nil(t, out.Transition)
	assert.False(t, det.Running())

	// Another spike, same outcome
	det.Observe(at(4), 500)
	out = det.Observe(at(8), 0)
	assert.True(t, out.PendingCanceled)
	assert.False(t, det.Running())
}

func TestStopUsesIndependentWindow(t *testing.T) {
	cfg := testConfig()
	det := appliance.RestoreDetector(cfg, true)

	out := det.Observe(at(10), 3)
	assert.True(t, out.PendingOpened)

	// The appliance draws again before the end debounce elapses
	out = det.Observe(at(20), 80)
	assert.True(t, out.PendingCanceled)
	assert.True(t, det.Running())

	det.Observe(at(30), 3)
	out = det.Observe(at(44), 3)
	assert.Nil(t, out.Transition, "one second short of the end debounce")

	out = det.Observe(at(45), 3)
	require.NotNil(t, out.Transition)
	assert.Equal(t, appliance.DirectionStop, out.Transition.Direction)
	assert.Equal(t, at(30), out.Transition.Effective)
	assert.False(t, det.Running())
}

func TestDeadZoneDominatesMisconfiguration(t *testing.T) {
	cfg := testConfig()
	cfg.DeadZoneWatts = 50 // above StartWatts on purpose
	det := appliance.NewDetector(cfg)

	for i := 0; i < 100; i++ {
		out := det.Observe(at(float64(i)), 12)
		assert.Nil(t, out.Transition)
		assert.False(t, out.PendingOpened)
	}
	assert.False(t, det.Running(), "dead-zone filtering dominates the start threshold")
}

func TestZeroDebounceCommitsImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.StartDebounce = 0
	det := appliance.NewDetector(cfg)

	out := det.Observe(at(0), 42)
	require.NotNil(t, out.Transition)
	assert.Equal(t, appliance.DirectionStart, out.Transition.Direction)
	assert.Equal(t, at(0), out.Transition.Effective)
}

func TestDeadZoneFiltersNoiseWhileIdle(t *testing.T) {
	det := appliance.NewDetector(testConfig())

	// Sub-dead-zone flicker never opens a pending start even though
	// StartWatts is configured well above it.
	for i := 0; i < 10; i++ {
		out := det.Observe(at(float64(i)), 0.8)
		assert.False(t, out.PendingOpened)
	}
	assert.False(t, det.Running())
}

func TestExpirePendingCommitsAfterQuietWindow(t *testing.T) {
	det := appliance.NewDetector(testConfig())

	det.Observe(at(1), 12)
	assert.True(t, det.PendingOpen())

	assert.Nil(t, det.ExpirePending(at(3)), "window has not elapsed")

	tr := det.ExpirePending(at(7))
	require.NotNil(t, tr)
	assert.Equal(t, appliance.DirectionStart, tr.Direction)
	assert.Equal(t, at(1), tr.Effective)
	assert.True(t, det.Running())
}

func TestMarkStaleFreezesStateAndDropsPending(t *testing.T) {
	det := appliance.RestoreDetector(testConfig(), true)

	det.Observe(at(0), 3)
	assert.True(t, det.PendingOpen())

	canceled := det.MarkStale()
	assert.True(t, canceled)
	assert.True(t, det.Stale())
	assert.True(t, det.Running(), "staleness never forces a transition")
	assert.Nil(t, det.ExpirePending(at(1000)), "nothing commits while stale")

	// Next reading resumes normal behavior
	out := det.Observe(at(2000), 80)
	assert.False(t, det.Stale())
	assert.Nil(t, out.Transition)
	assert.True(t, det.Running())
}
