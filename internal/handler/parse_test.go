package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chicago(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return loc
}

func TestParseVitalsMessage_WellFormed(t *testing.T) {
	reading, err := ParseVitalsMessage([]byte("P1, 2024-01-15 12:00:00, spo2: 98, bpm: 72"), chicago(t))

	require.NoError(t, err)
	assert.Equal(t, "P1", reading.PatientID)
	assert.Equal(t, "2024-01-15 12:00:00", reading.RawTimestamp)
	assert.Equal(t, 98, reading.SpO2)
	assert.Equal(t, 72, reading.BPM)
}

func TestParseVitalsMessage_WinterTimestampIsCST(t *testing.T) {
	// January: Chicago is UTC-6.
	reading, err := ParseVitalsMessage([]byte("P1, 2024-01-15 12:00:00, spo2: 98, bpm: 72"), chicago(t))

	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC), reading.ObservedAt)
	assert.Equal(t, time.UTC, reading.ObservedAt.Location())
}

func TestParseVitalsMessage_SummerTimestampIsCDT(t *testing.T) {
	// July: Chicago is UTC-5.
	reading, err := ParseVitalsMessage([]byte("P1, 2024-07-15 12:00:00, spo2: 98, bpm: 72"), chicago(t))

	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 15, 17, 0, 0, 0, time.UTC), reading.ObservedAt)
}

func TestParseVitalsMessage_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		reason  string
	}{
		{"too few fields", "P1, 2024-01-15 12:00:00, spo2: 98", "field_count"},
		{"too many fields", "P1, 2024-01-15 12:00:00, spo2: 98, bpm: 72, extra: 1", "field_count"},
		{"empty patient id", ", 2024-01-15 12:00:00, spo2: 98, bpm: 72", "patient_id"},
		{"bad timestamp", "P1, not-a-date, spo2: 98, bpm: 70", "timestamp"},
		{"wrong spo2 label", "P1, 2024-01-15 12:00:00, sp02: 98, bpm: 72", "spo2"},
		{"missing label separator", "P1, 2024-01-15 12:00:00, spo2=98, bpm: 72", "spo2"},
		{"non-integer bpm", "P1, 2024-01-15 12:00:00, spo2: 98, bpm: fast", "bpm"},
		{"wrong bpm label", "P1, 2024-01-15 12:00:00, spo2: 98, hr: 72", "bpm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading, err := ParseVitalsMessage([]byte(tt.payload), chicago(t))

			assert.Nil(t, reading)
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tt.reason, parseErr.Reason)
		})
	}
}
