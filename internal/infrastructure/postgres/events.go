package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medtrack/adherence-engine/internal/domain/nudge"
	"github.com/medtrack/adherence-engine/internal/domain/plan"
	"github.com/medtrack/adherence-engine/internal/infrastructure/redpanda"
)

// Sink queues adherence events in the outbox. The relay publishes them to
// the broker asynchronously, so request handling never waits on Kafka.
type Sink struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewSink creates an outbox-backed event sink.
func NewSink(pool *pgxpool.Pool, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{pool: pool, logger: logger}
}

// PrescriptionCreated queues a prescribing event keyed by patient.
func (s *Sink) PrescriptionCreated(ctx context.Context, p *plan.Plan, medications, doses int) error {
	payload, err := json.Marshal(map[string]any{
		"plan_id":     p.ID,
		"pres_no":     p.Number,
		"patient_id":  p.PatientID,
		"start_date":  p.Start.String(),
		"medications": medications,
		"doses":       doses,
	})
	if err != nil {
		return err
	}
	return Enqueue(ctx, s.pool, &OutboxEntry{
		AggregateID: p.ID,
		EventType:   "prescription.created",
		Payload:     payload,
		Topic:       redpanda.TopicPrescriptions,
		Key:         p.PatientID,
	})
}

// DosesMissed queues one event per sweep batch.
func (s *Sink) DosesMissed(ctx context.Context, doseIDs []string, at time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"dose_ids":  doseIDs,
		"marked_at": at.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return Enqueue(ctx, s.pool, &OutboxEntry{
		AggregateID: at.Format(time.RFC3339),
		EventType:   "doses.missed",
		Payload:     payload,
		Topic:       redpanda.TopicDosesMissed,
		Key:         at.Format("2006-01-02"),
	})
}

// NudgeRequested queues a nudge for delivery by the notifier.
func (s *Sink) NudgeRequested(ctx context.Context, n *nudge.Nudge) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return Enqueue(ctx, s.pool, &OutboxEntry{
		AggregateID: n.ID,
		EventType:   "nudge.requested",
		Payload:     payload,
		Topic:       redpanda.TopicNudges,
		Key:         n.PatientID,
	})
}
