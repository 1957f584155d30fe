package models

import (
	"fmt"
	"time"
)

// Reading is one vitals sample for a patient. Readings are append-only:
// the pipeline never updates or deletes them.
type Reading struct {
	ID        string
	PatientID string
	// ObservedAt is the sample instant in UTC, derived from the
	// wall-clock timestamp in the source payload.
	ObservedAt time.Time
	// RawTimestamp keeps the timestamp text exactly as received; alert
	// messages carry this form, not the UTC instant.
	RawTimestamp string
	SpO2         int
	BPM          int
}

// Threshold holds the global clinical alert bounds. Exactly one record is
// expected to exist in the store; it is managed outside this pipeline.
type Threshold struct {
	MinBPM int
	MaxBPM int
}

// Patient is read-only identity metadata sourced externally.
type Patient struct {
	PatientID string
	FirstName string
	LastName  string
}

func (p *Patient) FullName() string {
	return fmt.Sprintf("%s %s", p.FirstName, p.LastName)
}

// AlertEvent is the outbound notification payload. It is never persisted;
// it exists only for formatting and dispatch.
type AlertEvent struct {
	RawTimestamp string
	PatientID    string
	PatientName  string
	AvgBPM       int
	SpO2         int
}

// Message renders the single-line alert text published to the
// notification channel.
func (a *AlertEvent) Message() string {
	return fmt.Sprintf("Alert, %s, patientid: %s, patientname: %s, bpm: %d, spo2: %d",
		a.RawTimestamp, a.PatientID, a.PatientName, a.AvgBPM, a.SpO2)
}
