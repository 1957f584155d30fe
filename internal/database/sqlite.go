package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vitals-alert/internal/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrNoThreshold reports a missing threshold record. This is a
// configuration gap, distinct from a query failure or a "no alert" outcome.
var ErrNoThreshold = errors.New("no threshold record configured")

// StoreError wraps any persistence failure. The consumer surfaces these to
// the bus so the message is redelivered rather than lost.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Tables names the store collections; they are configurable per deployment.
type Tables struct {
	Readings   string
	Thresholds string
	Patients   string
}

type Repository struct {
	db      *sql.DB
	log     *zap.Logger
	tables  Tables
	timeout time.Duration
}

func NewRepository(dbPath string, tables Tables, timeout time.Duration, logger *zap.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	repo := NewRepositoryWithDB(db, tables, timeout, logger)
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	repo.log.Info("SQLite store ready", zap.String("path", dbPath))
	return repo, nil
}

// NewRepositoryWithDB wraps an already-open handle without touching the
// schema. Tests use this with mock or in-memory databases.
func NewRepositoryWithDB(db *sql.DB, tables Tables, timeout time.Duration, logger *zap.Logger) *Repository {
	return &Repository{db: db, log: logger, tables: tables, timeout: timeout}
}

func (r *Repository) initSchema() error {
	stmts := []string{
		fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
        id TEXT PRIMARY KEY,
        patient_id TEXT NOT NULL,
        observed_at INTEGER NOT NULL,
        raw_timestamp TEXT NOT NULL,
        spo2 INTEGER NOT NULL,
        bpm INTEGER NOT NULL
    );`, r.tables.Readings),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_patient_time ON %s (patient_id, observed_at);`,
			r.tables.Readings, r.tables.Readings),
		fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
        min_bpm INTEGER NOT NULL,
        max_bpm INTEGER NOT NULL
    );`, r.tables.Thresholds),
		fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
        patient_id TEXT NOT NULL,
        first_name TEXT NOT NULL,
        last_name TEXT NOT NULL
    );`, r.tables.Patients),
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// InsertReading appends one reading. Appends are not idempotent: redelivery
// of the same bus message produces a duplicate record.
func (r *Repository) InsertReading(ctx context.Context, reading *models.Reading) error {
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}

	opCtx, cancel := r.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (id, patient_id, observed_at, raw_timestamp, spo2, bpm) VALUES (?, ?, ?, ?, ?, ?)`,
		r.tables.Readings)
	_, err := r.db.ExecContext(opCtx, query,
		reading.ID, reading.PatientID, reading.ObservedAt.Unix(), reading.RawTimestamp, reading.SpO2, reading.BPM)
	if err != nil {
		return &StoreError{Op: "insert reading", Err: err}
	}
	return nil
}

// ReadingsSince returns the patient's readings with observed_at >= since.
// The lower bound is inclusive and there is deliberately no upper bound, so
// future-dated readings match as well.
func (r *Repository) ReadingsSince(ctx context.Context, patientID string, since time.Time) ([]models.Reading, error) {
	opCtx, cancel := r.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT id, patient_id, observed_at, raw_timestamp, spo2, bpm FROM %s WHERE patient_id = ? AND observed_at >= ?`,
		r.tables.Readings)
	rows, err := r.db.QueryContext(opCtx, query, patientID, since.Unix())
	if err != nil {
		return nil, &StoreError{Op: "query readings", Err: err}
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var reading models.Reading
		var observedAt int64
		if err := rows.Scan(
			&reading.ID,
			&reading.PatientID,
			&observedAt,
			&reading.RawTimestamp,
			&reading.SpO2,
			&reading.BPM,
		); err != nil {
			return nil, &StoreError{Op: "scan reading", Err: err}
		}
		reading.ObservedAt = time.Unix(observedAt, 0).UTC()
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query readings", Err: err}
	}
	return readings, nil
}

// FirstThreshold fetches the threshold record. Exactly one is expected to
// exist; if more do, which one is returned is unspecified.
func (r *Repository) FirstThreshold(ctx context.Context) (*models.Threshold, error) {
	opCtx, cancel := r.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT min_bpm, max_bpm FROM %s LIMIT 1`, r.tables.Thresholds)
	var t models.Threshold
	err := r.db.QueryRowContext(opCtx, query).Scan(&t.MinBPM, &t.MaxBPM)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoThreshold
	}
	if err != nil {
		return nil, &StoreError{Op: "query threshold", Err: err}
	}
	return &t, nil
}

// FindPatient looks up identity metadata by patient id. A missing patient
// is not an error; the caller falls back to a placeholder name.
func (r *Repository) FindPatient(ctx context.Context, patientID string) (*models.Patient, error) {
	opCtx, cancel := r.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT patient_id, first_name, last_name FROM %s WHERE patient_id = ? LIMIT 1`,
		r.tables.Patients)
	var p models.Patient
	err := r.db.QueryRowContext(opCtx, query, patientID).Scan(&p.PatientID, &p.FirstName, &p.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "query patient", Err: err}
	}
	return &p, nil
}

func (r *Repository) Close() {
	r.db.Close()
}
