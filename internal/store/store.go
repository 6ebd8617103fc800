// Package store persists per-appliance accounting state and cycle history in
// SQLite, so restarts do not lose lifetime totals or an open cycle.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/cyclewatch/internal/appliance"
	"codeberg.org/mutker/cyclewatch/internal/errors"
	"codeberg.org/mutker/cyclewatch/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

// Repository is a StateStore backed by a single SQLite database shared by all
// appliances. Connection access is mutex-guarded; the per-appliance rows are
// only ever written by that appliance's monitor.
type Repository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewRepository(cfg Config) (*Repository, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	logger.Debug().Str("path", cfg.DBPath).Msg("Initializing state repository")

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

var _ appliance.StateStore = (*Repository)(nil)

// LoadState returns the persisted state for an appliance, or nil when the
// appliance has never been saved.
func (r *Repository) LoadState(name string) (*appliance.PersistedState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	var (
		st          appliance.PersistedState
		day         string
		month       string
		lastService string
		running     int
		openStart   string
	)

	err := r.db.QueryRow(`
        SELECT lifetime_energy_kwh, lifetime_cost,
               daily_energy_kwh, daily_cost, day,
               monthly_energy_kwh, monthly_cost, month,
               cycle_count, cycles_remaining, last_service,
               is_running, open_cycle_start
        FROM appliance_state
        WHERE appliance = ?
    `, name).Scan(
		&st.Totals.LifetimeEnergy, &st.Totals.LifetimeCost,
		&st.Totals.DailyEnergy, &st.Totals.DailyCost, &day,
		&st.Totals.MonthlyEnergy, &st.Totals.MonthlyCost, &month,
		&st.CycleCount, &st.CyclesRemaining, &lastService,
		&running, &openStart,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	st.Totals.Day = parseTime(day)
	st.Totals.Month = parseTime(month)
	st.LastService = parseTime(lastService)
	st.Running = running != 0
	st.OpenCycleStart = parseTime(openStart)

	return &st, nil
}

// SaveState upserts the durable state for one appliance.
func (r *Repository) SaveState(name string, st appliance.PersistedState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	_, err := r.db.Exec(`
        INSERT INTO appliance_state (
            appliance,
            lifetime_energy_kwh, lifetime_cost,
            daily_energy_kwh, daily_cost, day,
            monthly_energy_kwh, monthly_cost, month,
            cycle_count, cycles_remaining, last_service,
            is_running, open_cycle_start, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
        ON CONFLICT(appliance) DO UPDATE SET
            lifetime_energy_kwh = excluded.lifetime_energy_kwh,
            lifetime_cost       = excluded.lifetime_cost,
            daily_energy_kwh    = excluded.daily_energy_kwh,
            daily_cost          = excluded.daily_cost,
            day                 = excluded.day,
            monthly_energy_kwh  = excluded.monthly_energy_kwh,
            monthly_cost        = excluded.monthly_cost,
            month               = excluded.month,
            cycle_count         = excluded.cycle_count,
            cycles_remaining    = excluded.cycles_remaining,
            last_service        = excluded.last_service,
            is_running          = excluded.is_running,
            open_cycle_start    = excluded.open_cycle_start,
            updated_at          = excluded.updated_at
    `,
		name,
		st.Totals.LifetimeEnergy, st.Totals.LifetimeCost,
		st.Totals.DailyEnergy, st.Totals.DailyCost, formatTime(st.Totals.Day),
		st.Totals.MonthlyEnergy, st.Totals.MonthlyCost, formatTime(st.Totals.Month),
		st.CycleCount, st.CyclesRemaining, formatTime(st.LastService),
		boolToInt(st.Running), formatTime(st.OpenCycleStart),
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

// AppendCycle archives one finished cycle.
func (r *Repository) AppendCycle(name string, c appliance.Cycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	_, err := r.db.Exec(`
        INSERT INTO cycle_history (appliance, started_at, ended_at, energy_kwh, cost)
        VALUES (?, ?, ?, ?, ?)
    `, name, formatTime(c.Start), formatTime(c.End), c.Energy, c.Cost)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

// RecentCycles returns up to limit archived cycles for an appliance, newest
// first.
func (r *Repository) RecentCycles(name string, limit int) ([]appliance.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	rows, err := r.db.Query(`
        SELECT started_at, ended_at, energy_kwh, cost
        FROM cycle_history
        WHERE appliance = ?
        ORDER BY started_at DESC
        LIMIT ?
    `, name, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var cycles []appliance.Cycle
	for rows.Next() {
		var started, ended string
		var c appliance.Cycle
		if err := rows.Scan(&started, &ended, &c.Energy, &c.Cost); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		c.Start = parseTime(started)
		c.End = parseTime(ended)
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return cycles, nil
}

func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}
	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	return nil
}

// formatTime stores times as RFC3339Nano; the zero value becomes an empty
// string so it round-trips.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		logger.Warn().Str("value", s).Err(err).Msg("Discarding unparseable stored timestamp")
		return time.Time{}
	}

	return t
}
