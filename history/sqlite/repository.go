// Package sqlite persists probe history in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/laityts/ddns"
	"github.com/laityts/ddns/history"
)

// Repository stores runs and probes in SQLite.
type Repository struct {
	db *sql.DB
}

var _ history.Store = (*Repository)(nil)

// New opens (or creates) the database at the provided path and
// ensures the schema exists.
func New(path string) (*Repository, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path must not be empty")
	}

	if err := ensureDir(path); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("error setting journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("error setting busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func initSchema(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	total INTEGER NOT NULL,
	succeeded INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS probes (
	run_id INTEGER NOT NULL,
	ip TEXT NOT NULL,
	port INTEGER NOT NULL,
	status TEXT NOT NULL,
	latency_ms INTEGER NOT NULL,
	succeeded INTEGER NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(id)
);
`
	_, err := db.Exec(ddl)
	return err
}

// RecordRun stores one run and all of its outcomes atomically and
// returns the run id.
func (r *Repository) RecordRun(ctx context.Context, startedAt, finishedAt time.Time, outcomes []ddns.Outcome) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	succeeded := 0
	for _, out := range outcomes {
		if out.Succeeded {
			succeeded++
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (started_at, finished_at, total, succeeded) VALUES (?, ?, ?, ?);`,
		startedAt.UTC().Unix(),
		finishedAt.UTC().Unix(),
		len(outcomes),
		succeeded,
	)
	if err != nil {
		return 0, fmt.Errorf("error inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error reading run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO probes (run_id, ip, port, status, latency_ms, succeeded) VALUES (?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return 0, fmt.Errorf("error preparing probe insert: %w", err)
	}
	defer stmt.Close()

	for _, out := range outcomes {
		if _, err := stmt.ExecContext(ctx,
			runID,
			out.Candidate.IP,
			out.Candidate.Port,
			out.Status.String(),
			out.LatencyMs,
			out.Succeeded,
		); err != nil {
			return 0, fmt.Errorf("error inserting probe: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing run: %w", err)
	}
	return runID, nil
}

// LastRun returns the most recently recorded run, or nil when the
// database is empty.
func (r *Repository) LastRun(ctx context.Context) (*history.Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, total, succeeded FROM runs ORDER BY id DESC LIMIT 1;`)

	var (
		run      history.Run
		started  int64
		finished int64
	)
	if err := row.Scan(&run.ID, &started, &finished, &run.Total, &run.Succeeded); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error fetching run: %w", err)
	}
	run.StartedAt = time.Unix(started, 0).UTC()
	run.FinishedAt = time.Unix(finished, 0).UTC()
	return &run, nil
}

// ProbesForRun returns the outcomes recorded for the given run, in
// insertion order.
func (r *Repository) ProbesForRun(ctx context.Context, runID int64) ([]history.Probe, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, ip, port, status, latency_ms, succeeded FROM probes WHERE run_id = ? ORDER BY rowid;`, runID)
	if err != nil {
		return nil, fmt.Errorf("error querying probes: %w", err)
	}
	defer rows.Close()

	var probes []history.Probe
	for rows.Next() {
		var p history.Probe
		if err := rows.Scan(&p.RunID, &p.IP, &p.Port, &p.Status, &p.LatencyMs, &p.Succeeded); err != nil {
			return nil, fmt.Errorf("error scanning probe: %w", err)
		}
		probes = append(probes, p)
	}
	return probes, rows.Err()
}

// Close releases the underlying database resources.
func (r *Repository) Close() error {
	return r.db.Close()
}
