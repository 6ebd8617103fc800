package appliance

import "time"

// Snapshot is an immutable bundle of every derived value for one appliance at
// a single logical instant. It is published atomically, so concurrent readers
// never observe a torn view, and repeated reads with no new input return
// identical values.
type Snapshot struct {
	Appliance    string
	Running      bool
	CurrentPower float64 // watts, last accepted reading
	Stale        bool
	LastUpdate   time.Time

	// Current or last-closed cycle. CycleStart is zero before the first
	// detected cycle; CycleEnd is zero while a cycle is open.
	CycleStart    time.Time
	CycleEnd      time.Time
	CycleDuration time.Duration
	CycleEnergy   float64 // kWh
	CycleCost     float64

	LifetimeEnergy float64
	LifetimeCost   float64
	DailyEnergy    float64
	DailyCost      float64
	MonthlyEnergy  float64
	MonthlyCost    float64

	CycleCount      int
	CyclesRemaining int
	ServiceStatus   ServiceStatus
	ServiceMessage  string
	LastService     time.Time

	// CostTracked is false when no rate source is configured. Cost fields
	// are meaningless (always zero) in that case and renderers omit them.
	CostTracked bool
}

// MetricKind tags the different renderings of one snapshot. Renderers pick
// fields by kind; the kinds themselves carry no behavior.
type MetricKind int

const (
	MetricPower MetricKind = iota
	MetricEnergy
	MetricCost
	MetricDuration
	MetricCycles
	MetricService
)

func (k MetricKind) String() string {
	switch k {
	case MetricPower:
		return "power"
	case MetricEnergy:
		return "energy"
	case MetricCost:
		return "cost"
	case MetricDuration:
		return "duration"
	case MetricCycles:
		return "cycles"
	case MetricService:
		return "service"
	}

	return "unknown"
}

// MetricKinds returns the kinds that apply to a snapshot. Cost is omitted
// when no rate source is configured.
func MetricKinds(costTracked bool) []MetricKind {
	kinds := []MetricKind{MetricPower, MetricEnergy, MetricDuration, MetricCycles, MetricService}
	if costTracked {
		kinds = append(kinds, MetricCost)
	}

	return kinds
}
