package prescribe

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/domain/dose"
	"github.com/medtrack/adherence-engine/internal/domain/patient"
	"github.com/medtrack/adherence-engine/internal/domain/plan"
	"github.com/medtrack/adherence-engine/internal/fault"
	"github.com/medtrack/adherence-engine/internal/schedule"
)

// ImportPayload is the wire contract for a clinic-system handover. Field
// names are fixed by the upstream exporter and must not change.
type ImportPayload struct {
	Patient ImportPatient `json:"patient"`
	Plan    ImportPlan    `json:"plan"`
	Meds    []ImportMed   `json:"meds"`
}

// ImportPatient carries the demographics used to find or register the
// patient by medical record number.
type ImportPatient struct {
	FullName string `json:"full_name"`
	MRN      string `json:"mrn"`
	Phone    string `json:"phone"`
	DOB      string `json:"dob"`
}

// ImportPlan carries the plan-level date range. End is optional.
type ImportPlan struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// ImportMed is one medication line. Imported medications carry no date
// range of their own; the rolling dose window anchors on the plan start.
type ImportMed struct {
	Name     string   `json:"med_name"`
	Dose     string   `json:"dose"`
	Route    string   `json:"route"`
	Times    []string `json:"times"`
	Freq     string   `json:"freq"`
	Critical bool     `json:"critical"`
}

// ImportResult reports an import outcome.
type ImportResult struct {
	PatientID      string `json:"patient_id"`
	PatientCreated bool   `json:"patient_created"`
	PlanID         string `json:"plan_id"`
	Number         string `json:"pres_no"`
	Medications    int    `json:"medications"`
	Doses          int    `json:"doses"`
}

// Importer ingests clinic-system handovers. Unlike interactive
// prescribing, the dose window is a rolling seven days anchored on the
// later of the plan start and today, and medication names are stored as
// received.
type Importer struct {
	plans    PlanStore
	doses    DoseStore
	patients PatientDirectory
	authz    Authorizer
	clock    clinic.Clock
	strategy schedule.Strategy
	events   EventSink
	logger   *zap.Logger
}

// NewImporter wires a handover importer.
func NewImporter(plans PlanStore, doses DoseStore, patients PatientDirectory, authz Authorizer, clock clinic.Clock, events EventSink, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		plans:    plans,
		doses:    doses,
		patients: patients,
		authz:    authz,
		clock:    clock,
		strategy: schedule.RollingWindow{},
		events:   events,
		logger:   logger,
	}
}

// Import registers (or refreshes) the patient, links them to the acting
// doctor, creates the plan graph and materializes the rolling dose window.
func (im *Importer) Import(ctx context.Context, doctorID string, payload ImportPayload) (*ImportResult, error) {
	if err := im.authz.RequireRole(ctx, doctorID, patient.RoleDoctor); err != nil {
		return nil, err
	}

	planStart, planEnd, err := validateImport(payload)
	if err != nil {
		return nil, err
	}

	pat, created, err := im.resolvePatient(ctx, payload.Patient)
	if err != nil {
		return nil, err
	}

	if err := im.patients.EnsureLink(ctx, pat.ID, doctorID); err != nil {
		return nil, fault.PartialWrite(fault.StageDoctor, err)
	}

	p := &plan.Plan{
		ID:        uuid.New().String(),
		PatientID: pat.ID,
		Start:     planStart,
		End:       planEnd,
	}
	if err := persistPlan(ctx, im.plans, im.clock, im.logger, p); err != nil {
		return nil, err
	}

	meds := make([]plan.Medication, 0, len(payload.Meds))
	for _, in := range payload.Meds {
		meds = append(meds, plan.Medication{
			ID:        uuid.New().String(),
			PlanID:    p.ID,
			Name:      strings.TrimSpace(in.Name),
			Dose:      strings.TrimSpace(in.Dose),
			Route:     plan.Route(strings.ToLower(strings.TrimSpace(in.Route))),
			Frequency: strings.TrimSpace(in.Freq),
			Times:     in.Times,
			Critical:  in.Critical,
		})
	}
	if err := im.plans.CreateMedications(ctx, meds); err != nil {
		return nil, fault.PartialWrite(fault.StageMedications, err)
	}

	today := clinic.Today(im.clock)
	var generated []dose.Dose
	for _, m := range meds {
		expanded, err := im.strategy.Expand(schedule.Request{
			MedicationID: m.ID,
			PatientID:    pat.ID,
			Times:        m.Times,
			Start:        planStart,
		}, today)
		if err != nil {
			return nil, fault.PartialWrite(fault.StageDoses, err)
		}
		generated = append(generated, expanded...)
	}
	if err := im.doses.InsertBatch(ctx, generated); err != nil {
		return nil, fault.PartialWrite(fault.StageDoses, err)
	}

	if im.events != nil {
		if err := im.events.PrescriptionCreated(ctx, p, len(meds), len(generated)); err != nil {
			im.logger.Warn("import event publish failed",
				zap.String("pres_no", p.Number), zap.Error(err))
		}
	}

	im.logger.Info("handover imported",
		zap.String("pres_no", p.Number),
		zap.String("mrn", payload.Patient.MRN),
		zap.Bool("patient_created", created),
		zap.Int("medications", len(meds)),
		zap.Int("doses", len(generated)),
	)
	return &ImportResult{
		PatientID:      pat.ID,
		PatientCreated: created,
		PlanID:         p.ID,
		Number:         p.Number,
		Medications:    len(meds),
		Doses:          len(generated),
	}, nil
}

// resolvePatient finds the patient by MRN, refreshing demographics when
// found and registering a new record otherwise.
func (im *Importer) resolvePatient(ctx context.Context, in ImportPatient) (*patient.Patient, bool, error) {
	existing, err := im.patients.FindByMRN(ctx, in.MRN)
	if err != nil {
		return nil, false, fault.Internal("look up patient by mrn", err)
	}

	var dob *clinic.Date
	if in.DOB != "" {
		d, err := clinic.ParseDate(in.DOB)
		if err != nil {
			return nil, false, fault.Validation("patient dob: %v", err)
		}
		dob = &d
	}

	if existing != nil {
		existing.FullName = strings.TrimSpace(in.FullName)
		existing.Phone = strings.TrimSpace(in.Phone)
		if dob != nil {
			existing.DOB = dob
		}
		if err := im.patients.UpdateDemographics(ctx, existing); err != nil {
			return nil, false, fault.PartialWrite(fault.StagePatient, err)
		}
		return existing, false, nil
	}

	created := &patient.Patient{
		ID:       uuid.New().String(),
		FullName: strings.TrimSpace(in.FullName),
		Role:     patient.RolePatient,
		MRN:      strings.TrimSpace(in.MRN),
		Phone:    strings.TrimSpace(in.Phone),
		DOB:      dob,
	}
	if err := im.patients.Create(ctx, created); err != nil {
		return nil, false, fault.PartialWrite(fault.StagePatient, err)
	}
	return created, true, nil
}

func validateImport(payload ImportPayload) (clinic.Date, *clinic.Date, error) {
	if strings.TrimSpace(payload.Patient.FullName) == "" {
		return clinic.Date{}, nil, fault.Validation("patient full_name is required")
	}
	if strings.TrimSpace(payload.Patient.MRN) == "" {
		return clinic.Date{}, nil, fault.Validation("patient mrn is required")
	}
	if len(payload.Meds) == 0 {
		return clinic.Date{}, nil, fault.Validation("at least one medication is required")
	}
	for _, m := range payload.Meds {
		if strings.TrimSpace(m.Name) == "" {
			return clinic.Date{}, nil, fault.Validation("medication name is required")
		}
		if len(m.Times) == 0 {
			return clinic.Date{}, nil, fault.Validation("medication %s has no intake times", m.Name)
		}
		for _, hhmm := range m.Times {
			if _, err := clinic.Combine(clinic.Date{Year: 2000, Month: 1, Day: 1}, hhmm); err != nil {
				return clinic.Date{}, nil, fault.Validation("medication %s: %v", m.Name, err)
			}
		}
	}

	start, err := clinic.ParseDate(payload.Plan.StartDate)
	if err != nil {
		return clinic.Date{}, nil, fault.Validation("plan start_date: %v", err)
	}
	var end *clinic.Date
	if payload.Plan.EndDate != "" {
		d, err := clinic.ParseDate(payload.Plan.EndDate)
		if err != nil {
			return clinic.Date{}, nil, fault.Validation("plan end_date: %v", err)
		}
		if d.Before(start) {
			return clinic.Date{}, nil, fault.Validation("plan end_date precedes start_date")
		}
		end = &d
	}
	return start, end, nil
}
