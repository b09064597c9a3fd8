package nudge

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medtrack/adherence-engine/internal/fault"
)

// DefaultMessage is used when the caller supplies no message text.
const DefaultMessage = "Time to take your medication"

// Log persists nudges.
type Log interface {
	Create(ctx context.Context, n *Nudge) error
}

// Authorizer gates who may nudge a patient.
type Authorizer interface {
	CanViewPatient(ctx context.Context, doctorID, patientID string) error
}

// EventSink hands queued nudges to the delivery pipeline. A nil sink
// leaves them queued for a later drain.
type EventSink interface {
	NudgeRequested(ctx context.Context, n *Nudge) error
}

// Service queues nudges on behalf of doctors.
type Service struct {
	log    Log
	authz  Authorizer
	events EventSink
	logger *zap.Logger
}

// NewService wires a nudge service.
func NewService(log Log, authz Authorizer, events EventSink, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{log: log, authz: authz, events: events, logger: logger}
}

// Send logs a nudge for the patient and queues it for delivery. Only a
// doctor assigned to the patient may send one.
func (s *Service) Send(ctx context.Context, doctorID, patientID, doseID, message string) (*Nudge, error) {
	if patientID == "" {
		return nil, fault.Validation("patient is required")
	}
	if err := s.authz.CanViewPatient(ctx, doctorID, patientID); err != nil {
		return nil, err
	}

	message = strings.TrimSpace(message)
	if message == "" {
		message = DefaultMessage
	}

	n := &Nudge{
		ID:        uuid.New().String(),
		PatientID: patientID,
		DoseID:    doseID,
		Channel:   ChannelSMS,
		Message:   message,
		Status:    StatusQueued,
	}
	if err := s.log.Create(ctx, n); err != nil {
		return nil, fault.Internal("log nudge", err)
	}

	if s.events != nil {
		if err := s.events.NudgeRequested(ctx, n); err != nil {
			s.logger.Warn("nudge event publish failed",
				zap.String("nudge_id", n.ID), zap.Error(err))
		}
	}

	s.logger.Info("nudge queued",
		zap.String("nudge_id", n.ID),
		zap.String("patient_id", patientID),
		zap.String("doctor_id", doctorID))
	return n, nil
}
