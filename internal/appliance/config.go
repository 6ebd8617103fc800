package appliance

import (
	"fmt"
	"time"

	"codeberg.org/mutker/cyclewatch/internal/errors"
)

const (
	DefaultStartWatts            = 5.0
	DefaultStopWatts             = 2.0
	DefaultDeadZoneWatts         = 1.0
	DefaultStartDebounce         = 5 * time.Second
	DefaultEndDebounce           = 15 * time.Second
	DefaultStaleAfter            = 5 * time.Minute
	DefaultServiceCycleThreshold = 30
	DefaultServiceMessage        = "Time for maintenance"
)

// Config holds the detection and bookkeeping settings for one appliance.
type Config struct {
	// Detection thresholds, in watts. Readings below DeadZoneWatts are
	// treated as zero before any threshold comparison.
	StartWatts    float64
	StopWatts     float64
	DeadZoneWatts float64

	// Independent debounce windows. A threshold crossing must hold for the
	// whole window before it becomes a committed transition. EndDebounce is
	// typically the longer of the two, so brief power dips mid-cycle do not
	// end the cycle.
	StartDebounce time.Duration
	EndDebounce   time.Duration

	// StaleAfter is the gap without readings after which the appliance is
	// marked stale. The detector freezes until the next reading arrives.
	StaleAfter time.Duration

	// CostPerKWH is a static energy rate. Nil means no rate is configured;
	// a live rate feed may still supply one at runtime.
	CostPerKWH *float64

	// Service reminder settings.
	ServiceEnabled        bool
	ServiceCycleThreshold int
	ServiceMessage        string
}

// DefaultConfig returns the settings used when no profile is selected.
func DefaultConfig() Config {
	return Config{
		StartWatts:            DefaultStartWatts,
		StopWatts:             DefaultStopWatts,
		DeadZoneWatts:         DefaultDeadZoneWatts,
		StartDebounce:         DefaultStartDebounce,
		EndDebounce:           DefaultEndDebounce,
		StaleAfter:            DefaultStaleAfter,
		ServiceEnabled:        false,
		ServiceCycleThreshold: DefaultServiceCycleThreshold,
		ServiceMessage:        DefaultServiceMessage,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	check := func(field string, value float64) error {
		if value < 0 {
			return errFactory.WithData(ErrInvalidConfig, fmt.Sprintf("%s must not be negative, got %g", field, value))
		}
		return nil
	}

	if err := check("start_watts", c.StartWatts); err != nil {
		return err
	}
	if err := check("stop_watts", c.StopWatts); err != nil {
		return err
	}
	if err := check("dead_zone_watts", c.DeadZoneWatts); err != nil {
		return err
	}
	if c.StartDebounce < 0 || c.EndDebounce < 0 {
		return errFactory.WithData(ErrInvalidConfig, "debounce durations must not be negative")
	}
	if c.StaleAfter <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "stale_after must be positive")
	}
	if c.CostPerKWH != nil && *c.CostPerKWH < 0 {
		return errFactory.WithData(ErrInvalidConfig, "cost_per_kwh must not be negative")
	}
	if c.ServiceEnabled && c.ServiceCycleThreshold < 1 {
		return errFactory.WithData(ErrInvalidConfig, "service_cycle_threshold must be at least 1 when reminders are enabled")
	}

	return nil
}
