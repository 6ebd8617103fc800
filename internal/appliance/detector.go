package appliance

import "time"

// Direction identifies which way a transition goes.
type Direction int

const (
	DirectionStart Direction = iota
	DirectionStop
)

func (d Direction) String() string {
	if d == DirectionStart {
		return "started"
	}

	return "stopped"
}

// Transition is a committed state change. Effective is the timestamp of the
// first reading that satisfied the threshold condition, not the moment the
// debounce window elapsed. Duration and energy accounting use Effective.
type Transition struct {
	Direction Direction
	Effective time.Time
}

// pending is an uncommitted transition whose qualifying condition has been
// holding since the anchor timestamp.
type pending struct {
	direction Direction
	since     time.Time
}

// Outcome reports what a single reading did to the detector.
type Outcome struct {
	// Transition is non-nil when the reading committed a state change.
	Transition *Transition
	// PendingOpened is true when the reading anchored a new pending transition.
	PendingOpened bool
	// PendingCanceled is true when the reading reversed the qualifying
	// condition before the debounce window elapsed.
	PendingCanceled bool
}

// Detector is the dual-debounce power state machine. It consumes ordered
// readings and tracks whether the appliance is running. Readings below the
// dead zone are treated as zero watts before any threshold comparison, so a
// dead zone above start_watts means no start can ever commit.
//
// Not safe for concurrent use; the owning Monitor serializes access.
type Detector struct {
	cfg     Config
	running bool
	pend    *pending
	stale   bool
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// RestoreDetector creates a detector with a known running state, used when
// resuming from persisted state after a restart.
func RestoreDetector(cfg Config, running bool) *Detector {
	return &Detector{cfg: cfg, running: running}
}

func (d *Detector) Running() bool {
	return d.running
}

func (d *Detector) Stale() bool {
	return d.stale
}

// PendingOpen reports whether an uncommitted transition is being debounced.
func (d *Detector) PendingOpen() bool {
	return d.pend != nil
}

// PendingDeadline returns the wall-clock anchor and the debounce window of
// the open pending transition, or false when none is open.
func (d *Detector) PendingDeadline() (since time.Time, window time.Duration, ok bool) {
	if d.pend == nil {
		return time.Time{}, 0, false
	}

	return d.pend.since, d.window(d.pend.direction), true
}

// SetConfig swaps in new thresholds without resetting the running state.
// An open pending transition is kept; the next evaluation uses the new windows.
func (d *Detector) SetConfig(cfg Config) {
	d.cfg = cfg
}

// MarkStale freezes the detector after an extended gap without readings.
// Any pending transition is dropped: its condition cannot have been observed
// holding continuously across the gap. The next reading clears staleness.
func (d *Detector) MarkStale() bool {
	d.stale = true
	canceled := d.pend != nil
	d.pend = nil

	return canceled
}

// Observe feeds one reading through the state machine. The caller guarantees
// timestamps are non-decreasing and watts is non-negative and finite.
func (d *Detector) Observe(ts time.Time, watts float64) Outcome {
	d.stale = false

	effective := watts
	if effective < d.cfg.DeadZoneWatts {
		effective = 0
	}

	var qualifies bool
	var direction Direction
	if d.running {
		direction = DirectionStop
		qualifies = effective <= d.cfg.StopWatts
	} else {
		direction = DirectionStart
		qualifies = effective >= d.cfg.StartWatts && effective > 0
	}

	if !qualifies {
		if d.pend != nil {
			d.pend = nil
			return Outcome{PendingCanceled: true}
		}
		return Outcome{}
	}

	opened := false
	if d.pend == nil {
		d.pend = &pending{direction: direction, since: ts}
		opened = true
	}

	if ts.Sub(d.pend.since) >= d.window(d.pend.direction) {
		return Outcome{Transition: d.commit(), PendingOpened: opened}
	}

	return Outcome{PendingOpened: opened}
}

// ExpirePending commits the open pending transition if its debounce window
// has elapsed by now with no contradicting reading. Returns nil when there is
// nothing to commit. No-op while stale.
func (d *Detector) ExpirePending(now time.Time) *Transition {
	if d.pend == nil || d.stale {
		return nil
	}

	if now.Sub(d.pend.since) < d.window(d.pend.direction) {
		return nil
	}

	return d.commit()
}

func (d *Detector) commit() *Transition {
	tr := &Transition{Direction: d.pend.direction, Effective: d.pend.since}
	d.running = tr.Direction == DirectionStart
	d.pend = nil

	return tr
}

func (d *Detector) window(dir Direction) time.Duration {
	if dir == DirectionStart {
		return d.cfg.StartDebounce
	}

	return d.cfg.EndDebounce
}
