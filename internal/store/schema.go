package store

import (
	"database/sql"

	"codeberg.org/mutker/cyclewatch/internal/errors"
	"codeberg.org/mutker/cyclewatch/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS appliance_state (
	       appliance           TEXT PRIMARY KEY,
	       lifetime_energy_kwh REAL NOT NULL,
	       lifetime_cost       REAL NOT NULL,
	       daily_energy_kwh    REAL NOT NULL,
	       daily_cost          REAL NOT NULL,
	       day                 TEXT NOT NULL,
	       monthly_energy_kwh  REAL NOT NULL,
	       monthly_cost        REAL NOT NULL,
	       month               TEXT NOT NULL,
	       cycle_count         INTEGER NOT NULL,
	       cycles_remaining    INTEGER NOT NULL,
	       last_service        TEXT NOT NULL,
	       is_running          INTEGER NOT NULL CHECK (is_running IN (0, 1)),
	       open_cycle_start    TEXT NOT NULL,
	       updated_at          TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS cycle_history (
	       id          INTEGER PRIMARY KEY AUTOINCREMENT,
	       appliance   TEXT NOT NULL,
	       started_at  TEXT NOT NULL,
	       ended_at    TEXT NOT NULL,
	       energy_kwh  REAL NOT NULL,
	       cost        REAL NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_cycle_history_appliance
	       ON cycle_history (appliance, started_at);`
)

// InitSchema creates the schema when missing and verifies the version when
// present.
func InitSchema(db *sql.DB) error {
	errFactory := errors.New()

	version, err := getSchemaVersion(db)
	if err != nil {
		return err
	}
	if version == SchemaVersion {
		return nil
	}
	if version > 0 {
		return errFactory.WithData(ErrSchemaMismatch, struct {
			Found    int
			Expected int
		}{
			Found:    version,
			Expected: SchemaVersion,
		})
	}

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				logger.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	logger.Info().Int("version", SchemaVersion).Msg("Schema initialized")

	return nil
}

func getSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name='schema_versions'
        )
    `).Scan(&exists)
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	return version, nil
}
