// Package prescribe implements the prescription builder: it validates a
// multi-medication request, allocates the prescription number, persists
// the plan graph and materializes the dose schedule.
//
// The three writes (plan, medications, doses) are best-effort sequential
// with no automatic rollback, matching the source system: a mid-sequence
// failure is surfaced with the failed stage so an operator can inspect the
// partial graph. The dose batch itself is atomic.
package prescribe

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/domain/dose"
	"github.com/medtrack/adherence-engine/internal/domain/patient"
	"github.com/medtrack/adherence-engine/internal/domain/plan"
	"github.com/medtrack/adherence-engine/internal/fault"
	"github.com/medtrack/adherence-engine/internal/schedule"
)

// PlanStore persists plans and medications.
type PlanStore interface {
	NumberExists(ctx context.Context, number string) (bool, error)
	CreatePlan(ctx context.Context, p *plan.Plan) error
	CreateMedications(ctx context.Context, meds []plan.Medication) error
}

// DoseStore persists generated doses.
type DoseStore interface {
	InsertBatch(ctx context.Context, doses []dose.Dose) error
}

// PatientDirectory resolves and registers patients.
type PatientDirectory interface {
	Get(ctx context.Context, id string) (*patient.Patient, error)
	FindByMRN(ctx context.Context, mrn string) (*patient.Patient, error)
	Create(ctx context.Context, p *patient.Patient) error
	UpdateDemographics(ctx context.Context, p *patient.Patient) error
	EnsureLink(ctx context.Context, patientID, doctorID string) error
}

// Authorizer evaluates actor capabilities.
type Authorizer interface {
	RequireRole(ctx context.Context, actorID string, role patient.Role) error
	CanPrescribeFor(ctx context.Context, doctorID, patientID string) error
}

// EventSink receives prescribing notifications, published via the outbox.
// A nil sink disables publishing.
type EventSink interface {
	PrescriptionCreated(ctx context.Context, p *plan.Plan, medications, doses int) error
}

// Result reports a successful prescribing event.
type Result struct {
	PlanID      string `json:"plan_id"`
	Number      string `json:"pres_no"`
	Medications int    `json:"medications"`
	Doses       int    `json:"doses"`
}

// Builder creates prescriptions.
type Builder struct {
	plans    PlanStore
	doses    DoseStore
	patients PatientDirectory
	authz    Authorizer
	clock    clinic.Clock
	strategy schedule.Strategy
	events   EventSink
	logger   *zap.Logger
}

// NewBuilder wires a prescription builder. Interactive prescribing always
// expands the exact medication date range.
func NewBuilder(plans PlanStore, doses DoseStore, patients PatientDirectory, authz Authorizer, clock clinic.Clock, events EventSink, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		plans:    plans,
		doses:    doses,
		patients: patients,
		authz:    authz,
		clock:    clock,
		strategy: schedule.ExactRange{},
		events:   events,
		logger:   logger,
	}
}

// CreatePrescription validates the request, persists the plan graph and
// materializes every dose for each medication's own inclusive date range.
// Nothing is written until validation and authorization pass.
func (b *Builder) CreatePrescription(ctx context.Context, patientID, doctorID string, inputs []plan.MedicationInput) (*Result, error) {
	if patientID == "" {
		return nil, fault.Validation("patient is required")
	}
	if len(inputs) == 0 {
		return nil, fault.Validation("at least one medication is required")
	}

	if err := b.authz.CanPrescribeFor(ctx, doctorID, patientID); err != nil {
		return nil, err
	}

	pat, err := b.patients.Get(ctx, patientID)
	if err != nil {
		return nil, fault.Internal("load patient", err)
	}
	if pat == nil {
		return nil, &fault.Error{Kind: fault.KindNotFound, Stage: fault.StagePatient, Msg: "patient " + patientID}
	}

	planID := uuid.New().String()
	meds := make([]plan.Medication, 0, len(inputs))
	for _, in := range inputs {
		m, err := plan.NewMedication(planID, in)
		if err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}

	start, end := plan.Span(meds)
	p := &plan.Plan{
		ID:        planID,
		PatientID: patientID,
		Start:     start,
		End:       &end,
	}

	if err := persistPlan(ctx, b.plans, b.clock, b.logger, p); err != nil {
		return nil, err
	}

	if err := b.plans.CreateMedications(ctx, meds); err != nil {
		return nil, fault.PartialWrite(fault.StageMedications, err)
	}

	today := clinic.Today(b.clock)
	var generated []dose.Dose
	for _, m := range meds {
		expanded, err := b.strategy.Expand(schedule.Request{
			MedicationID: m.ID,
			PatientID:    patientID,
			Times:        m.Times,
			Start:        m.Start,
			End:          m.End,
		}, today)
		if err != nil {
			return nil, fault.PartialWrite(fault.StageDoses, err)
		}
		generated = append(generated, expanded...)
	}

	if err := b.doses.InsertBatch(ctx, generated); err != nil {
		return nil, fault.PartialWrite(fault.StageDoses, err)
	}

	b.publishCreated(ctx, p, len(meds), len(generated))

	b.logger.Info("prescription created",
		zap.String("pres_no", p.Number),
		zap.String("patient_id", patientID),
		zap.String("doctor_id", doctorID),
		zap.Int("medications", len(meds)),
		zap.Int("doses", len(generated)),
	)
	return &Result{PlanID: planID, Number: p.Number, Medications: len(meds), Doses: len(generated)}, nil
}

// persistPlan allocates a prescription number and inserts the plan,
// retrying on collisions up to the shared attempt budget. A number that
// passes the existence check can still lose the insert race; the unique
// index reports that as ErrDuplicateNumber and burns an attempt too.
func persistPlan(ctx context.Context, plans PlanStore, clock clinic.Clock, logger *zap.Logger, p *plan.Plan) error {
	today := clinic.Today(clock)

	for attempt := 0; attempt < plan.NumberAttempts; attempt++ {
		number := plan.NewNumber(today)

		exists, err := plans.NumberExists(ctx, number)
		if err != nil {
			return fault.Internal("check prescription number", err)
		}
		if exists {
			continue
		}

		p.Number = number
		err = plans.CreatePlan(ctx, p)
		if errors.Is(err, plan.ErrDuplicateNumber) {
			logger.Warn("prescription number insert race", zap.String("pres_no", number))
			continue
		}
		if err != nil {
			return &fault.Error{Kind: fault.KindInternal, Stage: fault.StagePlan, Msg: "insert plan", Err: err}
		}
		return nil
	}
	return fault.GenerationExhausted(plan.NumberAttempts)
}

func (b *Builder) publishCreated(ctx context.Context, p *plan.Plan, meds, doses int) {
	if b.events == nil {
		return
	}
	if err := b.events.PrescriptionCreated(ctx, p, meds, doses); err != nil {
		b.logger.Warn("prescription event publish failed",
			zap.String("pres_no", p.Number), zap.Error(err))
	}
}
