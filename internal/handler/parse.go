package handler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vitals-alert/internal/models"
)

// civilLayout is the wall-clock timestamp format devices emit. The zone is
// a pipeline-wide setting, not part of the payload.
const civilLayout = "2006-01-02 15:04:05"

// ParseError marks a malformed payload. These are dropped and logged, never
// retried: bad telemetry must not block the stream.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse vitals message (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse vitals message (%s)", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseVitalsMessage decodes one inbound payload:
//
//	<patientId>, <YYYY-MM-DD HH:MM:SS>, spo2: <int>, bpm: <int>
//
// The timestamp is interpreted as civil time in loc and converted to UTC.
// Civil times falling in a DST fold resolve to the earlier instant.
func ParseVitalsMessage(payload []byte, loc *time.Location) (*models.Reading, error) {
	parts := strings.Split(string(payload), ", ")
	if len(parts) != 4 {
		return nil, &ParseError{Reason: "field_count", Err: fmt.Errorf("expected 4 fields, got %d", len(parts))}
	}

	patientID := parts[0]
	if patientID == "" {
		return nil, &ParseError{Reason: "patient_id", Err: fmt.Errorf("empty patient id")}
	}

	observedAt, err := time.ParseInLocation(civilLayout, parts[1], loc)
	if err != nil {
		return nil, &ParseError{Reason: "timestamp", Err: err}
	}

	spo2, err := labeledInt(parts[2], "spo2")
	if err != nil {
		return nil, &ParseError{Reason: "spo2", Err: err}
	}

	bpm, err := labeledInt(parts[3], "bpm")
	if err != nil {
		return nil, &ParseError{Reason: "bpm", Err: err}
	}

	return &models.Reading{
		PatientID:    patientID,
		ObservedAt:   observedAt.UTC(),
		RawTimestamp: parts[1],
		SpO2:         spo2,
		BPM:          bpm,
	}, nil
}

func labeledInt(field, label string) (int, error) {
	name, value, found := strings.Cut(field, ": ")
	if !found {
		return 0, fmt.Errorf("field %q missing %q separator", field, ": ")
	}
	if name != label {
		return 0, fmt.Errorf("expected label %q, got %q", label, name)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", label, err)
	}
	return n, nil
}
