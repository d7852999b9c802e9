package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/lox/isimipextract/internal/models"
)

// Run is one invocation of the extraction, kept for auditing.
type Run struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     sql.NullTime
	Roots          []string
	Tokens         []string
	RegionLabel    string
	OutputRoot     string
	FilesTotal     int
	FilesSucceeded int
	FilesFailed    int
	Interrupted    bool
}

// OutcomeRecord is a stored per-file outcome.
type OutcomeRecord struct {
	ID           int64
	RunID        int64
	Root         string
	Path         string
	Token        string
	Outcome      models.OutcomeKind
	ErrorMessage sql.NullString
	Variable     sql.NullString
	Repaired     bool
	YearsWritten int
	OutputPath   sql.NullString
	DurationMS   int64
	RecordedAt   time.Time
}

// StartRun creates a new run record and returns it.
func (s *Store) StartRun(roots, tokens []string, regionLabel, outputRoot string) (*Run, error) {
	run := &Run{
		StartedAt:   time.Now().UTC(),
		Roots:       roots,
		Tokens:      tokens,
		RegionLabel: regionLabel,
		OutputRoot:  outputRoot,
	}

	result, err := s.db.Exec(`
		INSERT INTO extract_runs (started_at, roots, tokens, region_label, output_root)
		VALUES (?, ?, ?, ?, ?)
	`, run.StartedAt, strings.Join(roots, "\n"), strings.Join(tokens, ","), regionLabel, outputRoot)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RecordOutcome stores the result of one candidate file against run.
func (s *Store) RecordOutcome(run *Run, o models.Outcome) error {
	if run == nil {
		return nil
	}
	_, err := s.db.Exec(`
		INSERT INTO file_outcomes (run_id, root, path, token, outcome, error_message, variable, repaired, years_written, output_path, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, o.Root, o.Path, o.Token, string(o.Kind), nullString(o.ErrorMessage()), nullString(o.Variable),
		o.Repaired, o.Years, nullString(o.OutputPath), o.Duration.Milliseconds(), time.Now().UTC())
	return err
}

// CompleteRun stamps the run as finished with its totals.
func (s *Store) CompleteRun(run *Run) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE extract_runs SET
			finished_at = ?,
			files_total = ?,
			files_succeeded = ?,
			files_failed = ?,
			interrupted = ?
		WHERE id = ?
	`, run.FinishedAt, run.FilesTotal, run.FilesSucceeded, run.FilesFailed, run.Interrupted, run.ID)
	return err
}

// ListOutcomes returns the outcomes recorded for a run in processing order.
func (s *Store) ListOutcomes(runID int64) ([]OutcomeRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, root, path, token, outcome, error_message, variable, repaired, years_written, output_path, duration_ms, recorded_at
		FROM file_outcomes
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var r OutcomeRecord
		var kind string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Root, &r.Path, &r.Token, &kind, &r.ErrorMessage, &r.Variable,
			&r.Repaired, &r.YearsWritten, &r.OutputPath, &r.DurationMS, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Outcome = models.OutcomeKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// OutcomeCounts returns how many files of a run ended in each outcome kind.
func (s *Store) OutcomeCounts(runID int64) (map[models.OutcomeKind]int, error) {
	rows, err := s.db.Query(`
		SELECT outcome, COUNT(*)
		FROM file_outcomes
		WHERE run_id = ?
		GROUP BY outcome
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.OutcomeKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[models.OutcomeKind(kind)] = n
	}
	return counts, rows.Err()
}

// GetRun loads a run by id. It returns nil, nil when no such run exists.
func (s *Store) GetRun(id int64) (*Run, error) {
	var run Run
	var roots, tokens string
	var total, succeeded, failed sql.NullInt64
	err := s.db.QueryRow(`
		SELECT id, started_at, finished_at, roots, tokens, region_label, output_root, files_total, files_succeeded, files_failed, interrupted
		FROM extract_runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &roots, &tokens, &run.RegionLabel, &run.OutputRoot,
		&total, &succeeded, &failed, &run.Interrupted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Roots = splitNonEmpty(roots, "\n")
	run.Tokens = splitNonEmpty(tokens, ",")
	run.FilesTotal = int(total.Int64)
	run.FilesSucceeded = int(succeeded.Int64)
	run.FilesFailed = int(failed.Int64)
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}
