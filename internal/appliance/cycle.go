package appliance

import "time"

// Cycle is one continuous run from detected start to detected stop.
// End is zero while the cycle is open. Energy and cost are frozen when the
// cycle closes.
type Cycle struct {
	Start  time.Time
	End    time.Time
	Energy float64 // kWh
	Cost   float64
}

func (c Cycle) Open() bool {
	return c.End.IsZero()
}

// Duration returns the cycle length, measured to asOf while the cycle is
// still open.
func (c Cycle) Duration(asOf time.Time) time.Duration {
	if c.Start.IsZero() {
		return 0
	}
	if c.Open() {
		return asOf.Sub(c.Start)
	}

	return c.End.Sub(c.Start)
}

// ServiceStatus is the maintenance-due state of an appliance.
type ServiceStatus string

const (
	ServiceOK       ServiceStatus = "ok"
	ServiceNeeded   ServiceStatus = "needs_service"
	ServiceDisabled ServiceStatus = "disabled"
)

// Counters tracks completed cycles and maintenance bookkeeping.
// CycleCount is a lifetime count and is never reset, not even by servicing.
type Counters struct {
	CycleCount      int
	CyclesRemaining int
	LastService     time.Time // zero if never serviced
}

// CompleteCycle records one finished cycle.
func (c *Counters) CompleteCycle() {
	c.CycleCount++
	c.CyclesRemaining--
}

// ServicePerformed resets the remaining-cycle budget and stamps the service
// date. The lifetime cycle count is untouched.
func (c *Counters) ServicePerformed(threshold int, at time.Time) {
	c.CyclesRemaining = threshold
	c.LastService = at
}

// Status derives the maintenance state. Disabled reminders override
// everything else.
func (c *Counters) Status(cfg Config) ServiceStatus {
	if !cfg.ServiceEnabled {
		return ServiceDisabled
	}
	if c.CyclesRemaining <= 0 {
		return ServiceNeeded
	}

	return ServiceOK
}
