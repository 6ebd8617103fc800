package appliance

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/cyclewatch/internal/errors"
	"codeberg.org/mutker/cyclewatch/internal/logger"
)

// Phase is the monitor lifecycle state.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseReady
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	case PhaseClosed:
		return "closed"
	}

	return "unknown"
}

const (
	restoreAttempts = 3
	restoreBackoff  = 250 * time.Millisecond

	minStaleCheck = time.Second
	maxStaleCheck = time.Minute
)

// TransitionEvent is delivered to subscribers when a cycle starts or stops.
type TransitionEvent struct {
	Appliance string
	Direction Direction
	Effective time.Time
}

// PersistedState is the durable per-appliance state restored after a restart.
type PersistedState struct {
	Totals          Totals
	CycleCount      int
	CyclesRemaining int
	LastService     time.Time
	Running         bool
	OpenCycleStart  time.Time
}

// StateStore persists monitor state across restarts. Implementations must be
// safe for concurrent use by independent monitors.
type StateStore interface {
	LoadState(appliance string) (*PersistedState, error)
	SaveState(appliance string, st PersistedState) error
	AppendCycle(appliance string, c Cycle) error
}

// reading is the last accepted power reading, together with the cost rate
// that was in effect when it arrived.
type reading struct {
	ts      time.Time
	watts   float64
	rate    float64
	hasRate bool
}

// Monitor owns all mutable state for one appliance. Every mutation runs on a
// single goroutine fed by a command channel, so debounce timing, integration
// math, rate updates, and service actions can never race. Snapshot reads go
// through an atomically published immutable value and never block ingestion.
type Monitor struct {
	name string
	errs errors.Factory

	cfg      Config
	det      *Detector
	totals   Totals
	counters Counters
	cycle    *Cycle // open, or last closed
	last     *reading
	rate     float64
	hasRate  bool

	// Intervals held back while a debounce is pending. Flushed to the cycle
	// or discarded once the pending transition commits or cancels.
	buffered []interval

	phase atomic.Int32
	snap  atomic.Value // Snapshot

	cmds      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	subs      []chan TransitionEvent
	notify    func(Snapshot)
	store     StateStore
	now       func() time.Time
	pendTimer *time.Timer
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithStore attaches a durable state store for restart fidelity.
func WithStore(s StateStore) Option {
	return func(m *Monitor) { m.store = s }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithNotify registers a callback invoked with every published snapshot.
// It runs on the monitor goroutine and must not block.
func WithNotify(fn func(Snapshot)) Option {
	return func(m *Monitor) { m.notify = fn }
}

func NewMonitor(name string, cfg Config, opts ...Option) (*Monitor, error) {
	errFactory := errors.New()

	if name == "" {
		return nil, errFactory.WithMessage(ErrInvalidConfig, "appliance name must not be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		name: name,
		errs: errFactory,
		cfg:  cfg,
		det:  NewDetector(cfg),
		cmds: make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		now:  time.Now,
	}
	if cfg.CostPerKWH != nil {
		m.rate = *cfg.CostPerKWH
		m.hasRate = true
	}
	m.counters.CyclesRemaining = cfg.ServiceCycleThreshold

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

func (m *Monitor) Name() string {
	return m.name
}

func (m *Monitor) Phase() Phase {
	return Phase(m.phase.Load())
}

// Subscribe registers a transition-event channel. Events are delivered
// best-effort: a full channel drops the event rather than blocking the
// processing path. Must be called before Start.
func (m *Monitor) Subscribe(buffer int) <-chan TransitionEvent {
	ch := make(chan TransitionEvent, buffer)
	m.subs = append(m.subs, ch)

	return ch
}

// Start restores persisted state and launches the processing goroutine.
// A failing store is retried with backoff; after the retry budget the monitor
// starts from zeroed state rather than staying down.
func (m *Monitor) Start() error {
	if !m.phase.CompareAndSwap(int32(PhaseUninitialized), int32(PhaseInitializing)) {
		return m.errs.New(errors.ErrInvalidOperation)
	}

	if m.store != nil {
		m.restore()
	}

	m.publish()
	m.phase.Store(int32(PhaseReady))
	go m.run()

	logger.Debug().Str("appliance", m.name).Msg("Monitor started")

	return nil
}

func (m *Monitor) restore() {
	var st *PersistedState
	var err error

	backoff := restoreBackoff
	for attempt := 1; attempt <= restoreAttempts; attempt++ {
		st, err = m.store.LoadState(m.name)
		if err == nil {
			break
		}
		logger.Warn().
			Str("appliance", m.name).
			Int("attempt", attempt).
			Err(err).
			Msg("Failed to load persisted state, retrying")
		if attempt < restoreAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	if err != nil {
		logger.ErrorWithCode(m.errs.Wrap(ErrRestoreFailed, err)).
			Str("appliance", m.name).
			Msg("Starting with zeroed state")
		return
	}
	if st == nil {
		return
	}

	m.totals = st.Totals
	m.counters.CycleCount = st.CycleCount
	m.counters.CyclesRemaining = st.CyclesRemaining
	m.counters.LastService = st.LastService
	m.det = RestoreDetector(m.cfg, st.Running)
	if st.Running && !st.OpenCycleStart.IsZero() {
		m.cycle = &Cycle{Start: st.OpenCycleStart}
	}

	logger.Info().
		Str("appliance", m.name).
		Bool("running", st.Running).
		Float64("lifetime_kwh", st.Totals.LifetimeEnergy).
		Int("cycle_count", st.CycleCount).
		Msg("Restored persisted state")
}

// Close stops the processing goroutine after a final state save.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		close(m.quit)
		if Phase(m.phase.Load()) == PhaseReady {
			<-m.done
		}
		m.phase.Store(int32(PhaseClosed))
	})
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.staleCheckEvery())
	defer ticker.Stop()

	for {
		select {
		case fn := <-m.cmds:
			fn()
		case <-m.pendTimerC():
			m.pendTimer = nil
			m.expirePending()
			m.armPendingTimer()
		case <-ticker.C:
			m.checkStale()
		case <-m.quit:
			m.persistState()
			for _, ch := range m.subs {
				close(ch)
			}
			close(m.done)
			return
		}
	}
}

func (m *Monitor) pendTimerC() <-chan time.Time {
	if m.pendTimer == nil {
		return nil
	}

	return m.pendTimer.C
}

func (m *Monitor) staleCheckEvery() time.Duration {
	every := m.cfg.StaleAfter / 4
	if every < minStaleCheck {
		every = minStaleCheck
	}
	if every > maxStaleCheck {
		every = maxStaleCheck
	}

	return every
}

// do runs fn on the monitor goroutine and waits for it to finish.
func (m *Monitor) do(fn func()) error {
	switch Phase(m.phase.Load()) {
	case PhaseUninitialized, PhaseInitializing:
		return m.errs.New(ErrNotReady)
	case PhaseClosed:
		return m.errs.New(ErrMonitorClosed)
	}

	donec := make(chan struct{})

	select {
	case m.cmds <- func() { fn(); close(donec) }:
	case <-m.done:
		return m.errs.New(ErrMonitorClosed)
	}

	select {
	case <-donec:
		return nil
	case <-m.done:
		return m.errs.New(ErrMonitorClosed)
	}
}

// HandleReading feeds one timestamped power reading through the state
// machine. Malformed and out-of-order readings are dropped with a local
// error and leave all state untouched.
func (m *Monitor) HandleReading(ts time.Time, watts float64) error {
	var err error
	if derr := m.do(func() { err = m.ingest(ts, watts) }); derr != nil {
		return derr
	}

	return err
}

// HandleRate updates the cost rate. The new rate prices intervals that start
// at or after this update; already-accrued energy is never re-priced.
func (m *Monitor) HandleRate(ts time.Time, rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		logger.Warn().Str("appliance", m.name).Float64("rate", rate).Msg("Dropping malformed cost rate")
		return m.errs.WithData(ErrMalformedRate, rate)
	}

	return m.do(func() {
		m.rate = rate
		m.hasRate = true
		logger.Debug().Str("appliance", m.name).Float64("rate", rate).Time("timestamp", ts).Msg("Cost rate updated")
		m.publish()
	})
}

// ServicePerformed resets the remaining-cycle budget and stamps the service
// date. The lifetime cycle count is untouched.
func (m *Monitor) ServicePerformed() error {
	return m.do(func() {
		m.counters.ServicePerformed(m.cfg.ServiceCycleThreshold, m.now())
		logger.Info().
			Str("appliance", m.name).
			Int("cycles_remaining", m.counters.CyclesRemaining).
			Msg("Service performed")
		m.persistState()
		m.publish()
	})
}

// Reconfigure swaps in new settings. An invalid config is rejected and the
// previous valid configuration remains active.
func (m *Monitor) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		logger.Warn().Str("appliance", m.name).Err(err).Msg("Rejecting invalid configuration update")
		return err
	}

	return m.do(func() {
		m.cfg = cfg
		m.det.SetConfig(cfg)
		if cfg.CostPerKWH != nil {
			m.rate = *cfg.CostPerKWH
			m.hasRate = true
		}
		m.armPendingTimer()
		m.publish()
	})
}

// Persist saves the current durable state. The daemon calls this periodically;
// stop-commits and service actions also persist on their own.
func (m *Monitor) Persist() error {
	return m.do(m.persistState)
}

// CheckStale marks the appliance stale if no reading arrived within
// StaleAfter. Normally driven by the internal ticker.
func (m *Monitor) CheckStale() error {
	return m.do(m.checkStale)
}

// Snapshot returns the last published consistent view. Safe to call
// concurrently with ingestion; never blocks it.
func (m *Monitor) Snapshot() Snapshot {
	if v := m.snap.Load(); v != nil {
		return v.(Snapshot)
	}

	return Snapshot{Appliance: m.name, ServiceStatus: m.counters.Status(m.cfg)}
}

func (m *Monitor) ingest(ts time.Time, watts float64) error {
	if math.IsNaN(watts) || math.IsInf(watts, 0) || watts < 0 {
		logger.Warn().
			Str("appliance", m.name).
			Float64("watts", watts).
			Time("timestamp", ts).
			Msg("Dropping malformed power reading")
		return m.errs.WithData(ErrMalformedReading, watts)
	}
	if m.last != nil && ts.Before(m.last.ts) {
		logger.Warn().
			Str("appliance", m.name).
			Time("timestamp", ts).
			Time("last", m.last.ts).
			Msg("Dropping out-of-order power reading")
		return m.errs.WithData(ErrOutOfOrderReading, ts)
	}

	wasRunning := m.det.Running()
	wasPending := m.det.PendingOpen()
	wasStale := m.det.Stale()

	// The interval since the previous reading. Not built across a stale gap:
	// the power curve over the gap is unknown, so no energy is fabricated
	// for it.
	var iv *interval
	if m.last != nil && !wasStale {
		iv = &interval{
			t0: m.last.ts, t1: ts,
			w0: m.last.watts, w1: watts,
			rate: m.last.rate, hasRate: m.last.hasRate,
		}
	}

	out := m.det.Observe(ts, watts)

	// Attribute the interval. While a transition is pending the interval's
	// side of the boundary is not yet known, so it is buffered until the
	// pending transition commits or cancels.
	if iv != nil {
		switch {
		case wasPending:
			m.buffered = append(m.buffered, *iv)
		case wasRunning:
			m.accrue(*iv)
		}
	}

	if out.PendingOpened {
		logger.Debug().Str("appliance", m.name).Time("anchor", ts).Bool("running", wasRunning).Msg("Transition pending")
	}
	if out.PendingCanceled {
		logger.Debug().Str("appliance", m.name).Time("timestamp", ts).Msg("Pending transition canceled")
		m.flushBuffer(wasRunning)
	}

	if tr := out.Transition; tr != nil {
		if tr.Direction == DirectionStart {
			m.commitStart(tr)
		} else {
			m.commitStop(tr)
		}
	}

	m.last = &reading{ts: ts, watts: watts, rate: m.rate, hasRate: m.hasRate}
	m.armPendingTimer()
	m.publish()

	return nil
}

func (m *Monitor) accrue(iv interval) {
	energy := iv.energyKWH()
	if energy == 0 {
		return
	}
	cost := iv.cost()

	if m.cycle != nil && m.cycle.Open() {
		m.cycle.Energy += energy
		m.cycle.Cost += cost
	}
	m.totals.Accrue(energy, cost, iv.t1)
}

// flushBuffer resolves intervals held back during a pending transition.
// They either all belong to a running cycle or were idle noise.
func (m *Monitor) flushBuffer(toCycle bool) {
	if toCycle {
		for _, iv := range m.buffered {
			m.accrue(iv)
		}
	}
	m.buffered = nil
}

func (m *Monitor) commitStart(tr *Transition) {
	m.cycle = &Cycle{Start: tr.Effective}
	m.flushBuffer(true)

	logger.Info().
		Str("appliance", m.name).
		Time("effective", tr.Effective).
		Msg("Cycle started")

	m.emit(TransitionEvent{Appliance: m.name, Direction: tr.Direction, Effective: tr.Effective})
	m.persistState()
}

func (m *Monitor) commitStop(tr *Transition) {
	// Buffered intervals are on the idle side of the boundary.
	m.buffered = nil

	if m.cycle != nil && m.cycle.Open() {
		m.cycle.End = tr.Effective
		if m.store != nil {
			if err := m.store.AppendCycle(m.name, *m.cycle); err != nil {
				logger.Error().Str("appliance", m.name).Err(err).Msg("Failed to archive cycle")
			}
		}
	}

	m.counters.CompleteCycle()

	evt := logger.Info().
		Str("appliance", m.name).
		Time("effective", tr.Effective).
		Int("cycle_count", m.counters.CycleCount)
	if m.cycle != nil {
		evt = evt.Dur("duration", m.cycle.Duration(tr.Effective)).Float64("energy_kwh", m.cycle.Energy)
	}
	evt.Msg("Cycle stopped")

	m.emit(TransitionEvent{Appliance: m.name, Direction: tr.Direction, Effective: tr.Effective})
	m.persistState()
}

func (m *Monitor) emit(ev TransitionEvent) {
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			logger.Warn().Str("appliance", m.name).Msg("Dropping transition event, subscriber not keeping up")
		}
	}
}

func (m *Monitor) expirePending() {
	tr := m.det.ExpirePending(m.now())
	if tr == nil {
		return
	}

	if tr.Direction == DirectionStart {
		m.commitStart(tr)
	} else {
		m.commitStop(tr)
	}
	m.publish()
}

func (m *Monitor) checkStale() {
	if m.last == nil || m.det.Stale() {
		return
	}
	if m.now().Sub(m.last.ts) < m.cfg.StaleAfter {
		return
	}

	wasRunning := m.det.Running()
	if m.det.MarkStale() {
		// A pending transition cannot survive the gap; resolve its buffer
		// against the frozen state.
		m.flushBuffer(wasRunning)
	}
	m.armPendingTimer()

	logger.Info().
		Str("appliance", m.name).
		Time("last_reading", m.last.ts).
		Msg("No readings received, marking stale")
	m.publish()
}

func (m *Monitor) armPendingTimer() {
	if m.pendTimer != nil {
		m.pendTimer.Stop()
		m.pendTimer = nil
	}

	since, window, ok := m.det.PendingDeadline()
	if !ok {
		return
	}

	remaining := window - m.now().Sub(since)
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	m.pendTimer = time.NewTimer(remaining)
}

func (m *Monitor) persistState() {
	if m.store == nil {
		return
	}

	st := PersistedState{
		Totals:          m.totals,
		CycleCount:      m.counters.CycleCount,
		CyclesRemaining: m.counters.CyclesRemaining,
		LastService:     m.counters.LastService,
		Running:         m.det.Running(),
	}
	if m.det.Running() && m.cycle != nil && m.cycle.Open() {
		st.OpenCycleStart = m.cycle.Start
	}

	if err := m.store.SaveState(m.name, st); err != nil {
		logger.Error().Str("appliance", m.name).Err(err).Msg("Failed to persist state")
	}
}

func (m *Monitor) publish() {
	s := m.buildSnapshot()
	m.snap.Store(s)
	if m.notify != nil {
		m.notify(s)
	}
}

func (m *Monitor) buildSnapshot() Snapshot {
	s := Snapshot{
		Appliance:       m.name,
		Running:         m.det.Running(),
		Stale:           m.det.Stale(),
		LifetimeEnergy:  m.totals.LifetimeEnergy,
		LifetimeCost:    m.totals.LifetimeCost,
		DailyEnergy:     m.totals.DailyEnergy,
		DailyCost:       m.totals.DailyCost,
		MonthlyEnergy:   m.totals.MonthlyEnergy,
		MonthlyCost:     m.totals.MonthlyCost,
		CycleCount:      m.counters.CycleCount,
		CyclesRemaining: m.counters.CyclesRemaining,
		ServiceStatus:   m.counters.Status(m.cfg),
		ServiceMessage:  m.cfg.ServiceMessage,
		LastService:     m.counters.LastService,
		CostTracked:     m.hasRate,
	}

	if m.last != nil {
		s.CurrentPower = m.last.watts
		s.LastUpdate = m.last.ts
	}

	if m.cycle != nil {
		s.CycleStart = m.cycle.Start
		s.CycleEnd = m.cycle.End
		s.CycleEnergy = m.cycle.Energy
		s.CycleCost = m.cycle.Cost

		asOf := s.LastUpdate
		if asOf.IsZero() {
			asOf = m.cycle.Start
		}
		s.CycleDuration = m.cycle.Duration(asOf)
	}

	return s
}
