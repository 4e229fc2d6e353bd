// Package storage records controller runs in a sqlite database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	mode       TEXT NOT NULL,
	waypoints  TEXT,
	started_ns INTEGER NOT NULL,
	ended_ns   INTEGER,
	horizon    INTEGER,
	dt         DOUBLE,
	rate_hz    DOUBLE,
	config     TEXT,
	metrics    TEXT
);
CREATE TABLE IF NOT EXISTS ticks (
	run_id     TEXT NOT NULL,
	tick       INTEGER NOT NULL,
	time_ns    INTEGER NOT NULL,
	status     TEXT,
	solve_us   INTEGER,
	x DOUBLE, y DOUBLE, yaw DOUBLE, v DOUBLE,
	diag       TEXT,
	FOREIGN KEY(run_id) REFERENCES runs(id)
);
CREATE TABLE IF NOT EXISTS commands (
	run_id  TEXT NOT NULL,
	tick    INTEGER NOT NULL,
	time_ns INTEGER NOT NULL,
	acc     DOUBLE,
	df      DOUBLE,
	stop    INTEGER,
	FOREIGN KEY(run_id) REFERENCES runs(id)
);
CREATE INDEX IF NOT EXISTS ticks_run ON ticks(run_id, tick);
CREATE INDEX IF NOT EXISTS commands_run ON commands(run_id, tick);
`

type Store struct {
	db *sql.DB
}

// RunMetadata describes one recorded run.
type RunMetadata struct {
	ID        string             `json:"id"`
	Mode      string             `json:"mode"`
	Waypoints string             `json:"waypoints"`
	Started   time.Time          `json:"started"`
	Ended     time.Time          `json:"ended,omitzero"`
	Horizon   int                `json:"horizon"`
	Dt        float64            `json:"dt"`
	RateHz    float64            `json:"rate_hz"`
	Config    string             `json:"config,omitempty"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Open creates the database file and its tables if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun inserts a run row and returns its new ID. Started defaults to now.
func (s *Store) BeginRun(ctx context.Context, meta RunMetadata) (string, error) {
	meta.ID = uuid.NewString()
	if meta.Started.IsZero() {
		meta.Started = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, waypoints, started_ns, horizon, dt, rate_hz, config)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Mode, meta.Waypoints, meta.Started.UnixNano(),
		meta.Horizon, meta.Dt, meta.RateHz, meta.Config)
	if err != nil {
		return "", fmt.Errorf("storage: begin run: %w", err)
	}
	return meta.ID, nil
}

// FinishRun stamps the end time and the final metric values.
func (s *Store) FinishRun(ctx context.Context, id string, metrics map[string]float64) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ended_ns = ?, metrics = ? WHERE id = ?`,
		time.Now().UnixNano(), string(data), id)
	if err != nil {
		return fmt.Errorf("storage: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", dynamo.ErrNoRun, id)
	}
	return nil
}

const runColumns = `id, mode, waypoints, started_ns, ended_ns, horizon, dt, rate_hz, config, metrics`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunMetadata, error) {
	var (
		meta           RunMetadata
		waypoints, cfg sql.NullString
		metrics        sql.NullString
		started        int64
		ended          sql.NullInt64
		horizon        sql.NullInt64
		dt, rate       sql.NullFloat64
	)
	if err := row.Scan(&meta.ID, &meta.Mode, &waypoints, &started, &ended,
		&horizon, &dt, &rate, &cfg, &metrics); err != nil {
		return meta, err
	}
	meta.Waypoints = waypoints.String
	meta.Config = cfg.String
	meta.Started = time.Unix(0, started)
	if ended.Valid {
		meta.Ended = time.Unix(0, ended.Int64)
	}
	meta.Horizon = int(horizon.Int64)
	meta.Dt = dt.Float64
	meta.RateHz = rate.Float64
	meta.Metrics = map[string]float64{}
	if metrics.Valid && metrics.String != "" {
		if err := json.Unmarshal([]byte(metrics.String), &meta.Metrics); err != nil {
			return meta, fmt.Errorf("storage: run %s metrics: %w", meta.ID, err)
		}
	}
	return meta, nil
}

// List returns every run, newest first.
func (s *Store) List(ctx context.Context) ([]RunMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_ns DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]RunMetadata, 0)
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, meta)
	}
	return runs, rows.Err()
}

// Load returns one run. A unique ID prefix is accepted.
func (s *Store) Load(ctx context.Context, id string) (*RunMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? || '%' LIMIT 2`, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []RunMetadata
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if meta.ID == id {
			return &meta, nil
		}
		found = append(found, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", dynamo.ErrNoRun, id)
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("storage: run prefix %q is ambiguous", id)
	}
}

// LoadTicks returns the recorded diagnostics of a run in tick order.
func (s *Store) LoadTicks(ctx context.Context, id string) ([]control.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT diag FROM ticks WHERE run_id = ? ORDER BY tick`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ticks := make([]control.Diagnostic, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var d control.Diagnostic
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("storage: decode tick: %w", err)
		}
		ticks = append(ticks, d)
	}
	return ticks, rows.Err()
}

// LoadCommands returns every command published during a run, stops included.
func (s *Store) LoadCommands(ctx context.Context, id string) ([]control.Command, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tick, time_ns, acc, df, stop FROM commands WHERE run_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cmds := make([]control.Command, 0)
	for rows.Next() {
		var (
			c    control.Command
			ns   int64
			stop int
		)
		if err := rows.Scan(&c.Tick, &ns, &c.Accel, &c.Steer, &stop); err != nil {
			return nil, err
		}
		c.Time = time.Unix(0, ns)
		c.Stop = stop != 0
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}

// Recorder writes one row per command and per diagnostic for a run. Attach
// it to the arbiter as both a command tap and a diagnostic sink.
type Recorder struct {
	store *Store
	runID string
}

func (s *Store) Recorder(runID string) *Recorder {
	return &Recorder{store: s, runID: runID}
}

func (r *Recorder) RunID() string { return r.runID }

func (r *Recorder) PublishCommand(ctx context.Context, c control.Command) error {
	stop := 0
	if c.Stop {
		stop = 1
	}
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO commands (run_id, tick, time_ns, acc, df, stop) VALUES (?, ?, ?, ?, ?, ?)`,
		r.runID, c.Tick, c.Time.UnixNano(), c.Accel, c.Steer, stop)
	return err
}

func (r *Recorder) PublishDiagnostic(ctx context.Context, d control.Diagnostic) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = r.store.db.ExecContext(ctx,
		`INSERT INTO ticks (run_id, tick, time_ns, status, solve_us, x, y, yaw, v, diag)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, d.Tick, d.Time.UnixNano(), d.Status, d.SolveTime.Microseconds(),
		d.State.X, d.State.Y, d.State.Yaw, d.State.Speed, string(raw))
	return err
}

