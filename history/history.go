// Package history persists training run history to a sqlite database:
// one row per invocation plus the per-epoch metric curves, so past runs
// stay queryable.
package history

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	started_at      TIMESTAMP NOT NULL,
	finished_at     TIMESTAMP,
	options         TEXT NOT NULL,
	train_accuracy  REAL,
	test_accuracy   REAL
);
CREATE TABLE IF NOT EXISTS epochs (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	epoch      INTEGER NOT NULL,
	train_loss REAL NOT NULL,
	val_loss   REAL NOT NULL,
	train_acc  REAL NOT NULL,
	val_acc    REAL NOT NULL,
	PRIMARY KEY (run_id, epoch)
);
`

// Store is a sqlite-backed run history.
type Store struct {
	db *sql.DB
}

// Run is one recorded invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Options    string
	TrainAcc   float64
	TestAcc    float64
}

// Epoch is one recorded epoch of a run.
type Epoch struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64
	TrainAcc  float64
	ValAcc    float64
}

// Open opens (creating if needed) the history database at path. The
// path ":memory:" yields an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open history db")
	}
	// one connection: sqlite serializes writers anyway, and a pooled
	// ":memory:" database would exist per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create history schema")
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun inserts a new run row and returns its id.
func (s *Store) BeginRun(options string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, options) VALUES (?, ?, ?)`,
		id, time.Now().UTC(), options)
	if err != nil {
		return "", errors.Wrap(err, "insert run")
	}
	return id, nil
}

// RecordEpoch appends the metrics of one finished epoch.
func (s *Store) RecordEpoch(runID string, e Epoch) error {
	_, err := s.db.Exec(
		`INSERT INTO epochs (run_id, epoch, train_loss, val_loss, train_acc, val_acc)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, e.Epoch, e.TrainLoss, e.ValLoss, e.TrainAcc, e.ValAcc)
	return errors.Wrap(err, "insert epoch")
}

// FinishRun stores the final accuracies and the finish time.
func (s *Store) FinishRun(runID string, trainAcc, testAcc float64) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, train_accuracy = ?, test_accuracy = ? WHERE id = ?`,
		time.Now().UTC(), trainAcc, testAcc, runID)
	return errors.Wrap(err, "finish run")
}

// LatestRuns returns up to n most recent runs, newest first.
func (s *Store) LatestRuns(n int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, COALESCE(finished_at, started_at),
		        options, COALESCE(train_accuracy, 0), COALESCE(test_accuracy, 0)
		 FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Options, &r.TrainAcc, &r.TestAcc); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Epochs returns the metric curve of a run in epoch order.
func (s *Store) Epochs(runID string) ([]Epoch, error) {
	rows, err := s.db.Query(
		`SELECT epoch, train_loss, val_loss, train_acc, val_acc
		 FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query epochs")
	}
	defer rows.Close()

	var out []Epoch
	for rows.Next() {
		var e Epoch
		if err := rows.Scan(&e.Epoch, &e.TrainLoss, &e.ValLoss, &e.TrainAcc, &e.ValAcc); err != nil {
			return nil, errors.Wrap(err, "scan epoch")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
