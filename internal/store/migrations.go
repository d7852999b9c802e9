package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/isimipextract/internal/log"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Extraction runs and file outcomes",
		SQL: `
CREATE TABLE IF NOT EXISTS extract_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    roots TEXT NOT NULL,
    tokens TEXT NOT NULL,
    region_label TEXT NOT NULL,
    output_root TEXT NOT NULL,
    files_total INTEGER,
    files_succeeded INTEGER,
    files_failed INTEGER,
    interrupted BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS file_outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES extract_runs(id),
    root TEXT NOT NULL,
    path TEXT NOT NULL,
    token TEXT NOT NULL,
    outcome TEXT NOT NULL,
    error_message TEXT,
    variable TEXT,
    repaired BOOLEAN NOT NULL DEFAULT FALSE,
    years_written INTEGER NOT NULL DEFAULT 0,
    output_path TEXT,
    duration_ms INTEGER,
    recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_file_outcomes_run ON file_outcomes(run_id);
`,
	},
	{
		Version:     2,
		Description: "Outcome lookup by path",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_file_outcomes_path ON file_outcomes(path, outcome);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Infof("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Infof("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
