// Package store persists capture runs and their generated measurements in
// a SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/interval"
	"github.com/relabs-tech/inertial_intervals/internal/measurement"
	"github.com/relabs-tech/inertial_intervals/internal/orientation"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    imu         TEXT NOT NULL,
    config      TEXT NOT NULL,
    started_ns  INTEGER NOT NULL,
    finished_ns INTEGER
);

CREATE TABLE IF NOT EXISTS static_measurements (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL REFERENCES runs(id),
    channel     TEXT NOT NULL,
    mean_x      REAL NOT NULL,
    mean_y      REAL NOT NULL,
    mean_z      REAL NOT NULL,
    std_x       REAL NOT NULL,
    std_y       REAL NOT NULL,
    std_z       REAL NOT NULL,
    samples     INTEGER NOT NULL,
    start_index INTEGER NOT NULL,
    end_index   INTEGER NOT NULL,
    elapsed     REAL NOT NULL,
    pose        TEXT,
    position    TEXT
);

CREATE INDEX IF NOT EXISTS idx_static_run ON static_measurements(run_id, channel);

CREATE TABLE IF NOT EXISTS dynamic_sequences (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL REFERENCES runs(id),
    before_x    REAL NOT NULL,
    before_y    REAL NOT NULL,
    before_z    REAL NOT NULL,
    samples     INTEGER NOT NULL,
    start_index INTEGER NOT NULL,
    end_index   INTEGER NOT NULL,
    elapsed     REAL NOT NULL,
    items       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dynamic_run ON dynamic_sequences(run_id);

CREATE TABLE IF NOT EXISTS channel_status (
    run_id      TEXT NOT NULL REFERENCES runs(id),
    channel     TEXT NOT NULL,
    status      TEXT NOT NULL,
    data        TEXT NOT NULL,
    PRIMARY KEY (run_id, channel)
);
`

// Run is one capture session.
type Run struct {
	ID       uuid.UUID
	IMU      string
	Config   interval.Config
	Started  time.Time
	Finished time.Time // zero while the run is open
}

// Store represents the SQLite measurement store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and applies the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginRun records a new run and returns its identifier.
func (s *Store) BeginRun(imuName string, cfg interval.Config, at time.Time) (uuid.UUID, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode config: %w", err)
	}

	id := uuid.New()
	_, err = s.db.Exec(`INSERT INTO runs (id, imu, config, started_ns) VALUES (?, ?, ?, ?)`,
		id.String(), imuName, string(raw), at.UnixNano())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run and stores the final status of every channel.
func (s *Store) FinishRun(runID uuid.UUID, at time.Time, statuses []measurement.ChannelStatus) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE runs SET finished_ns = ? WHERE id = ?`, at.UnixNano(), runID.String())
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO channel_status (run_id, channel, status, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, st := range statuses {
		raw, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode channel status: %w", err)
		}
		if _, err := stmt.Exec(runID.String(), st.Channel.String(), st.Status.String(), string(raw)); err != nil {
			return fmt.Errorf("insert channel status: %w", err)
		}
	}

	return tx.Commit()
}

// InsertStatic stores a static measurement and returns its row ID.
func (s *Store) InsertStatic(runID uuid.UUID, m *measurement.StaticMeasurement) (int64, error) {
	pose, err := nullJSON(m.Pose)
	if err != nil {
		return 0, fmt.Errorf("encode pose: %w", err)
	}
	pos, err := nullJSON(m.Position)
	if err != nil {
		return 0, fmt.Errorf("encode position: %w", err)
	}

	result, err := s.db.Exec(`
		INSERT INTO static_measurements (run_id, channel, mean_x, mean_y, mean_z, std_x, std_y, std_z, samples, start_index, end_index, elapsed, pose, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), m.Channel.String(), m.Mean.X, m.Mean.Y, m.Mean.Z, m.StdDev.X, m.StdDev.Y, m.StdDev.Z,
		m.Samples, m.StartIndex, m.EndIndex, m.Elapsed, pose, pos,
	)
	if err != nil {
		return 0, fmt.Errorf("insert static measurement: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// InsertDynamic stores a dynamic sequence and returns its row ID.
func (s *Store) InsertDynamic(runID uuid.UUID, seq *measurement.DynamicSequence) (int64, error) {
	items, err := json.Marshal(seq.Items)
	if err != nil {
		return 0, fmt.Errorf("encode items: %w", err)
	}

	result, err := s.db.Exec(`
		INSERT INTO dynamic_sequences (run_id, before_x, before_y, before_z, samples, start_index, end_index, elapsed, items)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), seq.Before.X, seq.Before.Y, seq.Before.Z, seq.Len(), seq.StartIndex, seq.EndIndex, seq.Elapsed, string(items),
	)
	if err != nil {
		return 0, fmt.Errorf("insert dynamic sequence: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// Run retrieves a run by ID.
func (s *Store) Run(id uuid.UUID) (*Run, error) {
	row := s.db.QueryRow(`SELECT id, imu, config, started_ns, finished_ns FROM runs WHERE id = ?`, id.String())
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// Runs lists all runs, most recent first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, imu, config, started_ns, finished_ns FROM runs ORDER BY started_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r          Run
		id, cfg    string
		startedNs  int64
		finishedNs sql.NullInt64
	)
	if err := sc.Scan(&id, &r.IMU, &cfg, &startedNs, &finishedNs); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	r.ID = parsed
	if err := json.Unmarshal([]byte(cfg), &r.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	r.Started = time.Unix(0, startedNs)
	if finishedNs.Valid {
		r.Finished = time.Unix(0, finishedNs.Int64)
	}
	return &r, nil
}

// StaticMeasurements lists the static measurements of a run for one channel,
// in the order they were generated.
func (s *Store) StaticMeasurements(runID uuid.UUID, ch measurement.Channel) ([]measurement.StaticMeasurement, error) {
	rows, err := s.db.Query(`
		SELECT mean_x, mean_y, mean_z, std_x, std_y, std_z, samples, start_index, end_index, elapsed, pose, position
		FROM static_measurements WHERE run_id = ? AND channel = ? ORDER BY id`,
		runID.String(), ch.String())
	if err != nil {
		return nil, fmt.Errorf("query static measurements: %w", err)
	}
	defer rows.Close()

	var out []measurement.StaticMeasurement
	for rows.Next() {
		m := measurement.StaticMeasurement{Channel: ch}
		var pose, pos sql.NullString
		err := rows.Scan(&m.Mean.X, &m.Mean.Y, &m.Mean.Z, &m.StdDev.X, &m.StdDev.Y, &m.StdDev.Z,
			&m.Samples, &m.StartIndex, &m.EndIndex, &m.Elapsed, &pose, &pos)
		if err != nil {
			return nil, fmt.Errorf("scan static measurement: %w", err)
		}
		if pose.Valid {
			m.Pose = new(orientation.Pose)
			if err := json.Unmarshal([]byte(pose.String), m.Pose); err != nil {
				return nil, fmt.Errorf("decode pose: %w", err)
			}
		}
		if pos.Valid {
			m.Position = new(imu.Position)
			if err := json.Unmarshal([]byte(pos.String), m.Position); err != nil {
				return nil, fmt.Errorf("decode position: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DynamicSequences lists the dynamic sequences of a run in generation order.
func (s *Store) DynamicSequences(runID uuid.UUID) ([]measurement.DynamicSequence, error) {
	rows, err := s.db.Query(`
		SELECT before_x, before_y, before_z, start_index, end_index, elapsed, items
		FROM dynamic_sequences WHERE run_id = ? ORDER BY id`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("query dynamic sequences: %w", err)
	}
	defer rows.Close()

	var out []measurement.DynamicSequence
	for rows.Next() {
		var seq measurement.DynamicSequence
		var items string
		if err := rows.Scan(&seq.Before.X, &seq.Before.Y, &seq.Before.Z, &seq.StartIndex, &seq.EndIndex, &seq.Elapsed, &items); err != nil {
			return nil, fmt.Errorf("scan dynamic sequence: %w", err)
		}
		if err := json.Unmarshal([]byte(items), &seq.Items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		out = append(out, seq)
	}
	return out, rows.Err()
}

// ChannelStatuses returns the final channel statuses stored by FinishRun.
func (s *Store) ChannelStatuses(runID uuid.UUID) ([]measurement.ChannelStatus, error) {
	rows, err := s.db.Query(`SELECT data FROM channel_status WHERE run_id = ? ORDER BY channel`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("query channel status: %w", err)
	}
	defer rows.Close()

	var out []measurement.ChannelStatus
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan channel status: %w", err)
		}
		var st measurement.ChannelStatus
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("decode channel status: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func nullJSON(v any) (sql.NullString, error) {
	switch p := v.(type) {
	case *orientation.Pose:
		if p == nil {
			return sql.NullString{}, nil
		}
	case *imu.Position:
		if p == nil {
			return sql.NullString{}, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
