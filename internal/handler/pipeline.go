package handler

import (
	"context"
	"errors"
	"math"
	"time"

	"vitals-alert/internal/database"
	"vitals-alert/internal/metrics"
	"vitals-alert/internal/models"
	"vitals-alert/internal/notifier"

	"go.uber.org/zap"
)

// unknownPatientName is used when no patient record matches an id. A
// missing record must not suppress the alert.
const unknownPatientName = "Unknown"

// Store is the persistence surface the pipeline needs.
type Store interface {
	InsertReading(ctx context.Context, reading *models.Reading) error
	ReadingsSince(ctx context.Context, patientID string, since time.Time) ([]models.Reading, error)
	FirstThreshold(ctx context.Context) (*models.Threshold, error)
	FindPatient(ctx context.Context, patientID string) (*models.Patient, error)
}

// Pipeline runs one inbound message through parse, persist, windowed
// aggregation, threshold evaluation, and alert dispatch. It holds no state
// between invocations; concurrent delivery of out-of-order messages is
// expected, and the window computation is only as consistent as the store's
// read-after-write behavior.
type Pipeline struct {
	store    Store
	notifier notifier.Notifier
	loc      *time.Location
	window   time.Duration
	log      *zap.Logger
}

func NewPipeline(store Store, n notifier.Notifier, loc *time.Location, window time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		notifier: n,
		loc:      loc,
		window:   window,
		log:      logger,
	}
}

// Handle processes one raw bus payload. A parse failure drops the message
// and returns nil. Store, missing-threshold, and notification failures
// return non-nil so the caller can withhold the offset commit and let the
// bus redeliver.
func (p *Pipeline) Handle(ctx context.Context, raw []byte) error {
	metrics.MessagesConsumed.Inc()

	reading, err := ParseVitalsMessage(raw, p.loc)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			p.log.Warn("Dropping malformed vitals message",
				zap.String("payload", string(raw)),
				zap.Error(err))
			metrics.MessagesDropped.WithLabelValues(parseErr.Reason).Inc()
			return nil
		}
		return err
	}

	avgBPM, count, err := p.record(ctx, reading)
	if err != nil {
		metrics.HandleFailures.WithLabelValues("store").Inc()
		return err
	}
	if count == 0 {
		// The just-inserted reading should always match its own window;
		// an empty set means the store read raced the write.
		p.log.Warn("Window query returned no readings after insert",
			zap.String("patient_id", reading.PatientID),
			zap.Time("observed_at", reading.ObservedAt))
		return nil
	}

	return p.evaluate(ctx, reading, avgBPM)
}

// record persists the reading and computes the mean BPM over the trailing
// window. The window has an inclusive lower bound and no upper bound, so
// future-dated readings count too. Ties round half away from zero.
func (p *Pipeline) record(ctx context.Context, reading *models.Reading) (int, int, error) {
	if err := p.store.InsertReading(ctx, reading); err != nil {
		return 0, 0, err
	}
	metrics.ReadingsStored.Inc()

	windowStart := reading.ObservedAt.Add(-p.window)
	readings, err := p.store.ReadingsSince(ctx, reading.PatientID, windowStart)
	if err != nil {
		return 0, 0, err
	}
	if len(readings) == 0 {
		return 0, 0, nil
	}

	total := 0
	for _, r := range readings {
		total += r.BPM
	}
	avg := int(math.Round(float64(total) / float64(len(readings))))
	return avg, len(readings), nil
}

// evaluate compares the window average against the configured bounds and
// dispatches an alert when it falls outside them. Equality with either
// bound does not alert. SpO2 rides along in the alert text but is never
// compared against a bound here.
func (p *Pipeline) evaluate(ctx context.Context, reading *models.Reading, avgBPM int) error {
	threshold, err := p.store.FirstThreshold(ctx)
	if err != nil {
		if errors.Is(err, database.ErrNoThreshold) {
			metrics.HandleFailures.WithLabelValues("missing_threshold").Inc()
		} else {
			metrics.HandleFailures.WithLabelValues("store").Inc()
		}
		return err
	}

	if avgBPM <= threshold.MaxBPM && avgBPM >= threshold.MinBPM {
		return nil
	}

	name := unknownPatientName
	patient, err := p.store.FindPatient(ctx, reading.PatientID)
	if err != nil {
		metrics.HandleFailures.WithLabelValues("store").Inc()
		return err
	}
	if patient != nil {
		name = patient.FullName()
	}

	event := &models.AlertEvent{
		RawTimestamp: reading.RawTimestamp,
		PatientID:    reading.PatientID,
		PatientName:  name,
		AvgBPM:       avgBPM,
		SpO2:         reading.SpO2,
	}

	if err := p.notifier.Publish(ctx, event.Message()); err != nil {
		metrics.AlertsFailed.Inc()
		metrics.HandleFailures.WithLabelValues("notification").Inc()
		return err
	}
	metrics.AlertsSent.Inc()

	p.log.Info("Alert dispatched",
		zap.String("patient_id", reading.PatientID),
		zap.Int("avg_bpm", avgBPM),
		zap.Int("spo2", reading.SpO2))
	return nil
}
