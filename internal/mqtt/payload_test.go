package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"codeberg.org/mutker/cyclewatch/internal/appliance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatStateRounding(t *testing.T) {
	snap := appliance.Snapshot{
		Appliance:      "dishwasher",
		Running:        true,
		CurrentPower:   123.456,
		LastUpdate:     time.Date(2025, time.March, 12, 8, 0, 0, 0, time.UTC),
		CycleStart:     time.Date(2025, time.March, 12, 7, 30, 0, 0, time.UTC),
		CycleDuration:  30*time.Minute + 500*time.Millisecond,
		CycleEnergy:    0.123456,
		LifetimeEnergy: 1234.56789,
		ServiceStatus:  appliance.ServiceOK,
	}

	data, err := FormatState(snap)
	require.NoError(t, err)

	var p StatePayload
	require.NoError(t, json.Unmarshal(data, &p))

	assert.Equal(t, "dishwasher", p.Appliance)
	assert.True(t, p.Running)
	assert.InDelta(t, 123.5, p.PowerW, 1e-12, "power is rounded to one decimal")
	assert.InDelta(t, 0.123, p.Cycle.EnergyKWH, 1e-12, "energy is rounded to three decimals")
	assert.InDelta(t, 1234.568, p.Totals.LifetimeKWH, 1e-12)
	assert.Equal(t, int64(1800), p.Cycle.DurationS, "duration truncated to whole seconds")
	assert.Equal(t, "2025-03-12T08:00:00Z", p.LastUpdate)
	assert.Equal(t, "2025-03-12T07:30:00Z", p.Cycle.Start)
	assert.Empty(t, p.Cycle.End, "open cycle has no end timestamp")
	assert.Equal(t, "ok", p.Service.Status)
}

func TestFormatStateOmitsCostWithoutRate(t *testing.T) {
	snap := appliance.Snapshot{Appliance: "dishwasher", CycleCost: 1.5, LifetimeCost: 10}

	data, err := FormatState(snap)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "cost", "cost fields are omitted when no rate is configured")
}

func TestFormatStateIncludesCostWhenTracked(t *testing.T) {
	snap := appliance.Snapshot{
		Appliance:    "dishwasher",
		CostTracked:  true,
		CycleCost:    1.23456,
		LifetimeCost: 99.999,
	}

	data, err := FormatState(snap)
	require.NoError(t, err)

	var p StatePayload
	require.NoError(t, json.Unmarshal(data, &p))

	require.NotNil(t, p.Cycle.Cost)
	assert.InDelta(t, 1.23, *p.Cycle.Cost, 1e-12, "cost is rounded to two decimals")
	require.NotNil(t, p.Totals.LifetimeCost)
	assert.InDelta(t, 100.0, *p.Totals.LifetimeCost, 1e-12)
}

func TestFormatEvent(t *testing.T) {
	ev := appliance.TransitionEvent{
		Appliance: "dryer",
		Direction: appliance.DirectionStart,
		Effective: time.Date(2025, time.March, 12, 8, 0, 1, 0, time.UTC),
	}

	data, err := FormatEvent(ev)
	require.NoError(t, err)

	var p EventPayload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "dryer", p.Appliance)
	assert.Equal(t, "started", p.Event)
	assert.Equal(t, "2025-03-12T08:00:01Z", p.Effective)
}
