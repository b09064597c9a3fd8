package dose

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/fault"
)

// GracePeriod is how long after its scheduled instant a pending dose may
// still be acted on before the sweep marks it missed.
const GracePeriod = 2 * time.Hour

// Store is the persistence surface the lifecycle needs.
type Store interface {
	Get(ctx context.Context, id string) (*Dose, error)
	UpdateStatus(ctx context.Context, id string, status Status, note string, actedAt time.Time) error
	// MarkMissedBefore transitions every pending dose scheduled strictly
	// before cutoff to missed and returns the affected IDs.
	MarkMissedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// EventSink receives lifecycle notifications. Implementations publish via
// the outbox; a nil sink disables publishing.
type EventSink interface {
	DosesMissed(ctx context.Context, doseIDs []string, at time.Time) error
}

// Lifecycle applies dose status transitions.
type Lifecycle struct {
	store  Store
	clock  clinic.Clock
	events EventSink
	logger *zap.Logger
}

// NewLifecycle creates a lifecycle manager. events may be nil.
func NewLifecycle(store Store, clock clinic.Clock, events EventSink, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{store: store, clock: clock, events: events, logger: logger}
}

// RecordPatientAction sets a dose to taken or skipped on behalf of the
// owning patient. Repeat calls overwrite the previous status, note and
// acted-at instant; there is deliberately no guard against re-acting on a
// terminal dose, which doubles as the correction path.
func (l *Lifecycle) RecordPatientAction(ctx context.Context, doseID, patientID string, status Status, note string) (*Dose, error) {
	if !status.PatientSettable() {
		return nil, fault.Validation("status %q is not a patient action", status)
	}

	d, err := l.store.Get(ctx, doseID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fault.NotFound("dose %s", doseID)
	}
	if d.PatientID != patientID {
		return nil, fault.Authorization("dose %s does not belong to patient %s", doseID, patientID)
	}

	now := l.clock.Now()
	if err := l.store.UpdateStatus(ctx, doseID, status, note, now); err != nil {
		return nil, fault.Internal("update dose status", err)
	}

	d.Status = status
	d.Note = note
	d.ActedAt = &now

	l.logger.Info("dose action recorded",
		zap.String("dose_id", doseID),
		zap.String("patient_id", patientID),
		zap.String("status", string(status)),
	)
	return d, nil
}

// SweepOverdue marks every pending dose older than the grace window as
// missed and returns how many transitioned. The filter is monotonic, so
// the sweep is idempotent and safe under concurrent triggers.
func (l *Lifecycle) SweepOverdue(ctx context.Context) (int, error) {
	now := l.clock.Now()
	cutoff := now.Add(-GracePeriod)

	ids, err := l.store.MarkMissedBefore(ctx, cutoff)
	if err != nil {
		return 0, fault.Internal("mark missed", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if l.events != nil {
		if err := l.events.DosesMissed(ctx, ids, now); err != nil {
			// The transition already happened; publishing is best-effort.
			l.logger.Warn("missed-dose event publish failed", zap.Error(err))
		}
	}

	l.logger.Info("overdue sweep completed",
		zap.Int("marked_missed", len(ids)),
		zap.Time("cutoff", cutoff),
	)
	return len(ids), nil
}
