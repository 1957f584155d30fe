package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"vitals-alert/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testTables = Tables{
	Readings:   "heartrate",
	Thresholds: "threshold",
	Patients:   "patient",
}

func newTestRepository(t *testing.T) *Repository {
	path := filepath.Join(t.TempDir(), "vitals.db")
	repo, err := NewRepository(path, testTables, 5*time.Second, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo
}

func insertReadingAt(t *testing.T, repo *Repository, patientID string, observedAt time.Time, bpm int) {
	err := repo.InsertReading(context.Background(), &models.Reading{
		PatientID:    patientID,
		ObservedAt:   observedAt,
		RawTimestamp: observedAt.Format("2006-01-02 15:04:05"),
		SpO2:         97,
		BPM:          bpm,
	})
	require.NoError(t, err)
}

func TestInsertReading_AssignsID(t *testing.T) {
	repo := newTestRepository(t)

	reading := &models.Reading{
		PatientID:    "P1",
		ObservedAt:   time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC),
		RawTimestamp: "2024-01-15 12:00:00",
		SpO2:         97,
		BPM:          72,
	}
	require.NoError(t, repo.InsertReading(context.Background(), reading))

	assert.NotEmpty(t, reading.ID)
}

func TestInsertReading_DuplicatesAllowed(t *testing.T) {
	repo := newTestRepository(t)
	at := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)

	// Redelivered messages append twice; there is no idempotency key.
	insertReadingAt(t, repo, "P1", at, 72)
	insertReadingAt(t, repo, "P1", at, 72)

	readings, err := repo.ReadingsSince(context.Background(), "P1", at)
	require.NoError(t, err)
	assert.Len(t, readings, 2)
}

func TestReadingsSince_InclusiveLowerBoundNoUpperBound(t *testing.T) {
	repo := newTestRepository(t)
	base := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)

	insertReadingAt(t, repo, "P1", base.Add(-31*time.Second), 100) // excluded
	insertReadingAt(t, repo, "P1", base.Add(-30*time.Second), 110) // boundary, included
	insertReadingAt(t, repo, "P1", base, 120)
	insertReadingAt(t, repo, "P1", base.Add(5*time.Minute), 130) // future-dated, included
	insertReadingAt(t, repo, "P2", base, 140)                    // other patient

	readings, err := repo.ReadingsSince(context.Background(), "P1", base.Add(-30*time.Second))

	require.NoError(t, err)
	require.Len(t, readings, 3)
	for _, r := range readings {
		assert.Equal(t, "P1", r.PatientID)
		assert.Equal(t, time.UTC, r.ObservedAt.Location())
	}
}

func TestReadingsSince_Empty(t *testing.T) {
	repo := newTestRepository(t)

	readings, err := repo.ReadingsSince(context.Background(), "P1", time.Now().UTC())

	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestFirstThreshold_MissingRecord(t *testing.T) {
	repo := newTestRepository(t)

	threshold, err := repo.FirstThreshold(context.Background())

	assert.Nil(t, threshold)
	assert.ErrorIs(t, err, ErrNoThreshold)
}

func TestFirstThreshold_ReturnsBounds(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.db.Exec("INSERT INTO threshold (min_bpm, max_bpm) VALUES (50, 150)")
	require.NoError(t, err)

	threshold, err := repo.FirstThreshold(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 50, threshold.MinBPM)
	assert.Equal(t, 150, threshold.MaxBPM)
}

func TestFindPatient_MissingIsNotAnError(t *testing.T) {
	repo := newTestRepository(t)

	patient, err := repo.FindPatient(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Nil(t, patient)
}

func TestFindPatient_Found(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.db.Exec("INSERT INTO patient (patient_id, first_name, last_name) VALUES ('P1', 'Jane', 'Doe')")
	require.NoError(t, err)

	patient, err := repo.FindPatient(context.Background(), "P1")

	require.NoError(t, err)
	require.NotNil(t, patient)
	assert.Equal(t, "Jane Doe", patient.FullName())
}

func TestInsertReading_WriteFailureWrapsStoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepositoryWithDB(db, testTables, 5*time.Second, zap.NewNop())

	mock.ExpectExec("INSERT INTO heartrate").WillReturnError(errors.New("disk full"))

	err = repo.InsertReading(context.Background(), &models.Reading{
		PatientID:  "P1",
		ObservedAt: time.Now().UTC(),
		BPM:        72,
	})

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "insert reading", storeErr.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingsSince_QueryFailureWrapsStoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepositoryWithDB(db, testTables, 5*time.Second, zap.NewNop())

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	readings, err := repo.ReadingsSince(context.Background(), "P1", time.Now().UTC())

	assert.Nil(t, readings)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	require.NoError(t, mock.ExpectationsWereMet())
}
