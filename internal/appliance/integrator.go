package appliance

import "time"

const wattsPerKilowatt = 1000

// interval is one slice of the power curve between two consecutive readings.
// The rate is the cost rate that was in effect when the interval started.
type interval struct {
	t0, t1  time.Time
	w0, w1  float64
	rate    float64
	hasRate bool
}

// energyKWH is the trapezoidal estimate of the energy under the interval.
// Zero-length and inverted intervals contribute nothing.
func (iv interval) energyKWH() float64 {
	hours := iv.t1.Sub(iv.t0).Hours()
	if hours <= 0 {
		return 0
	}

	return (iv.w0 + iv.w1) / 2 * hours / wattsPerKilowatt
}

// cost prices the interval's energy at the rate in effect at its start.
// Returns 0 when no rate was in effect.
func (iv interval) cost() float64 {
	if !iv.hasRate {
		return 0
	}

	return iv.energyKWH() * iv.rate
}

// Totals holds the accumulated energy and cost buckets. The lifetime bucket
// never decreases; daily and monthly buckets reset when accrual crosses a
// local-time period boundary.
type Totals struct {
	LifetimeEnergy float64
	LifetimeCost   float64
	DailyEnergy    float64
	DailyCost      float64
	MonthlyEnergy  float64
	MonthlyCost    float64

	// Day and Month mark the local-time periods the daily and monthly
	// buckets belong to. Exported so persisted state can restore them.
	Day   time.Time
	Month time.Time
}

// Accrue adds an energy/cost increment attributed to the period containing at.
// Negative increments are discarded so the lifetime bucket stays monotone.
func (t *Totals) Accrue(energyKWH, cost float64, at time.Time) {
	if energyKWH < 0 || at.IsZero() {
		return
	}

	t.Roll(at)

	t.LifetimeEnergy += energyKWH
	t.LifetimeCost += cost
	t.DailyEnergy += energyKWH
	t.DailyCost += cost
	t.MonthlyEnergy += energyKWH
	t.MonthlyCost += cost
}

// Roll resets the daily and monthly buckets if at falls in a new local-time
// period. Safe to call on every accrual.
func (t *Totals) Roll(at time.Time) {
	local := at.Local()

	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	if !day.Equal(t.Day) {
		t.Day = day
		t.DailyEnergy = 0
		t.DailyCost = 0
	}

	month := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, local.Location())
	if !month.Equal(t.Month) {
		t.Month = month
		t.MonthlyEnergy = 0
		t.MonthlyCost = 0
	}
}
