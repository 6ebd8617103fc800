package appliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalEnergyTrapezoidal(t *testing.T) {
	t0 := time.Date(2025, time.March, 12, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		iv      interval
		wantKWH float64
	}{
		{
			name:    "constant power",
			iv:      interval{t0: t0, t1: t0.Add(time.Hour), w0: 100, w1: 100},
			wantKWH: 0.1,
		},
		{
			name:    "ramp",
			iv:      interval{t0: t0, t1: t0.Add(30 * time.Minute), w0: 0, w1: 2000},
			wantKWH: 0.5,
		},
		{
			name:    "zero duration",
			iv:      interval{t0: t0, t1: t0, w0: 5000, w1: 5000},
			wantKWH: 0,
		},
		{
			name:    "inverted interval contributes nothing",
			iv:      interval{t0: t0.Add(time.Hour), t1: t0, w0: 100, w1: 100},
			wantKWH: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.wantKWH, tt.iv.energyKWH(), 1e-12)
		})
	}
}

func TestIntervalCostUsesRateAtStart(t *testing.T) {
	t0 := time.Date(2025, time.March, 12, 8, 0, 0, 0, time.UTC)

	iv := interval{t0: t0, t1: t0.Add(time.Hour), w0: 1000, w1: 1000, rate: 0.30, hasRate: true}
	assert.InDelta(t, 0.30, iv.cost(), 1e-12)

	iv.hasRate = false
	assert.Zero(t, iv.cost(), "no rate in effect means no cost")
}

func TestTotalsAccrueAllBuckets(t *testing.T) {
	var totals Totals
	at := time.Date(2025, time.March, 12, 8, 0, 0, 0, time.Local)

	totals.Accrue(0.5, 0.15, at)
	totals.Accrue(0.25, 0.075, at.Add(time.Hour))

	assert.InDelta(t, 0.75, totals.LifetimeEnergy, 1e-12)
	assert.InDelta(t, 0.75, totals.DailyEnergy, 1e-12)
	assert.InDelta(t, 0.75, totals.MonthlyEnergy, 1e-12)
	assert.InDelta(t, 0.225, totals.LifetimeCost, 1e-12)
}

func TestTotalsDailyResetAtLocalMidnight(t *testing.T) {
	var totals Totals
	evening := time.Date(2025, time.March, 12, 23, 30, 0, 0, time.Local)

	totals.Accrue(1.0, 0.30, evening)
	totals.Accrue(2.0, 0.60, evening.Add(time.Hour)) // 00:30 next day

	assert.InDelta(t, 3.0, totals.LifetimeEnergy, 1e-12, "lifetime never resets")
	assert.InDelta(t, 2.0, totals.DailyEnergy, 1e-12, "daily bucket reset at midnight")
	assert.InDelta(t, 3.0, totals.MonthlyEnergy, 1e-12, "still the same month")
}

func TestTotalsMonthlyResetOnFirstOfMonth(t *testing.T) {
	var totals Totals
	endOfMonth := time.Date(2025, time.March, 31, 23, 0, 0, 0, time.Local)

	totals.Accrue(1.0, 0, endOfMonth)
	totals.Accrue(4.0, 0, endOfMonth.Add(2*time.Hour)) // April 1st

	assert.InDelta(t, 5.0, totals.LifetimeEnergy, 1e-12)
	assert.InDelta(t, 4.0, totals.DailyEnergy, 1e-12)
	assert.InDelta(t, 4.0, totals.MonthlyEnergy, 1e-12)
}

func TestTotalsDiscardNegativeIncrements(t *testing.T) {
	var totals Totals
	at := time.Date(2025, time.March, 12, 8, 0, 0, 0, time.Local)

	totals.Accrue(1.0, 0.30, at)
	totals.Accrue(-5.0, -1.50, at.Add(time.Minute))

	assert.InDelta(t, 1.0, totals.LifetimeEnergy, 1e-12)
	assert.InDelta(t, 0.30, totals.LifetimeCost, 1e-12)
}
