// Package report assembles the read-side views: daily schedules,
// adherence summaries and the doctor's risk-ranked patient list.
package report

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/medtrack/adherence-engine/internal/adherence"
	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/domain/dose"
	"github.com/medtrack/adherence-engine/internal/domain/patient"
	"github.com/medtrack/adherence-engine/internal/fault"
	"github.com/medtrack/adherence-engine/internal/risk"
)

// DoseReader supplies dose history.
type DoseReader interface {
	ListForPatientSince(ctx context.Context, patientID string, since time.Time) ([]dose.Dose, error)
	ListForPatientOn(ctx context.Context, patientID string, from, to time.Time) ([]dose.Dose, error)
	MissedCounts(ctx context.Context, patientID string, since time.Time) (missed, critical int, err error)
}

// MedicationCounter counts a patient's medications for risk scoring.
type MedicationCounter interface {
	CountMedicationsForPatient(ctx context.Context, patientID string) (int, error)
}

// PatientDirectory resolves patients and doctor assignments.
type PatientDirectory interface {
	Get(ctx context.Context, id string) (*patient.Patient, error)
	ListLinkedPatients(ctx context.Context, doctorID string) ([]patient.Patient, error)
}

// Authorizer gates cross-patient reads.
type Authorizer interface {
	CanViewPatient(ctx context.Context, doctorID, patientID string) error
}

// Service builds report views.
type Service struct {
	doses    DoseReader
	meds     MedicationCounter
	patients PatientDirectory
	authz    Authorizer
	clock    clinic.Clock
	logger   *zap.Logger
}

// NewService wires a report service.
func NewService(doses DoseReader, meds MedicationCounter, patients PatientDirectory, authz Authorizer, clock clinic.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		doses:    doses,
		meds:     meds,
		patients: patients,
		authz:    authz,
		clock:    clock,
		logger:   logger,
	}
}

// authorizeView allows patients to read their own data and assigned
// doctors to read theirs.
func (s *Service) authorizeView(ctx context.Context, actorID, patientID string) error {
	if actorID == patientID {
		return nil
	}
	return s.authz.CanViewPatient(ctx, actorID, patientID)
}

// AdherenceSummary returns the rolling adherence window ending today.
func (s *Service) AdherenceSummary(ctx context.Context, actorID, patientID string) (*adherence.Summary, error) {
	if err := s.authorizeView(ctx, actorID, patientID); err != nil {
		return nil, err
	}

	today := clinic.Today(s.clock)
	since := clinic.StartOfDay(today.AddDays(-(adherence.DefaultWindowDays - 1)))
	doses, err := s.doses.ListForPatientSince(ctx, patientID, since)
	if err != nil {
		return nil, fault.Internal("load dose history", err)
	}

	// The summary charts only elapsed doses; future ones are not due yet.
	now := s.clock.Now()
	elapsed := doses[:0:0]
	for _, d := range doses {
		if !d.ScheduledAt.After(now) {
			elapsed = append(elapsed, d)
		}
	}

	summary := adherence.Summarize(elapsed, today, adherence.DefaultWindowDays)
	return &summary, nil
}

// DaySchedule returns a patient's doses for one calendar day.
func (s *Service) DaySchedule(ctx context.Context, actorID, patientID string, day clinic.Date) ([]dose.Dose, error) {
	if err := s.authorizeView(ctx, actorID, patientID); err != nil {
		return nil, err
	}

	from := clinic.StartOfDay(day)
	to := clinic.StartOfDay(day.AddDays(1))
	doses, err := s.doses.ListForPatientOn(ctx, patientID, from, to)
	if err != nil {
		return nil, fault.Internal("load day schedule", err)
	}
	return doses, nil
}

// RiskFor assesses one patient over the default adherence window.
func (s *Service) RiskFor(ctx context.Context, actorID, patientID string) (*risk.Assessment, error) {
	if err := s.authorizeView(ctx, actorID, patientID); err != nil {
		return nil, err
	}

	pat, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, fault.Internal("load patient", err)
	}
	if pat == nil {
		return nil, fault.NotFound("patient %s", patientID)
	}
	return s.assess(ctx, pat)
}

// PatientRisk pairs a patient with their assessment for the ranked list.
type PatientRisk struct {
	Patient    patient.Patient `json:"patient"`
	Assessment risk.Assessment `json:"assessment"`
}

// RiskList assesses every patient assigned to the doctor, ranked by
// score, highest first.
func (s *Service) RiskList(ctx context.Context, doctorID string) ([]PatientRisk, error) {
	patients, err := s.patients.ListLinkedPatients(ctx, doctorID)
	if err != nil {
		return nil, fault.Internal("load assigned patients", err)
	}

	out := make([]PatientRisk, 0, len(patients))
	for _, pat := range patients {
		a, err := s.assess(ctx, &pat)
		if err != nil {
			return nil, err
		}
		out = append(out, PatientRisk{Patient: pat, Assessment: *a})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Assessment.Score > out[j].Assessment.Score
	})
	return out, nil
}

// missedWindow is the trailing span scored by the risk policy.
const missedWindow = 48 * time.Hour

func (s *Service) assess(ctx context.Context, pat *patient.Patient) (*risk.Assessment, error) {
	now := s.clock.Now()

	missed, critical, err := s.doses.MissedCounts(ctx, pat.ID, now.Add(-missedWindow))
	if err != nil {
		return nil, fault.Internal("count missed doses", err)
	}
	meds, err := s.meds.CountMedicationsForPatient(ctx, pat.ID)
	if err != nil {
		return nil, fault.Internal("count medications", err)
	}

	a := risk.Assess(risk.Input{
		MissedLast48h:  missed,
		CriticalMissed: critical,
		MedsCount:      meds,
		Age:            pat.Age(now),
	})
	return &a, nil
}
