// Package integration exercises the prescribing pipeline end to end
// against in-memory stores: prescribe, act, sweep, report.
package integration

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/domain/dose"
	"github.com/medtrack/adherence-engine/internal/domain/patient"
	"github.com/medtrack/adherence-engine/internal/domain/plan"
	"github.com/medtrack/adherence-engine/internal/prescribe"
	"github.com/medtrack/adherence-engine/internal/report"
	"github.com/medtrack/adherence-engine/internal/risk"
)

// movableClock lets the test march time forward across pipeline stages.
type movableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *movableClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// memStore backs plans, medications and doses for the whole pipeline.
type memStore struct {
	plans    map[string]*plan.Plan
	numbers  map[string]bool
	meds     map[string]plan.Medication
	doses    map[string]*dose.Dose
	critical map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		plans:    make(map[string]*plan.Plan),
		numbers:  make(map[string]bool),
		meds:     make(map[string]plan.Medication),
		doses:    make(map[string]*dose.Dose),
		critical: make(map[string]bool),
	}
}

func (s *memStore) NumberExists(_ context.Context, number string) (bool, error) {
	return s.numbers[number], nil
}

func (s *memStore) CreatePlan(_ context.Context, p *plan.Plan) error {
	if s.numbers[p.Number] {
		return plan.ErrDuplicateNumber
	}
	s.numbers[p.Number] = true
	s.plans[p.ID] = p
	return nil
}

func (s *memStore) CreateMedications(_ context.Context, meds []plan.Medication) error {
	for _, m := range meds {
		s.meds[m.ID] = m
		s.critical[m.ID] = m.Critical
	}
	return nil
}

func (s *memStore) InsertBatch(_ context.Context, doses []dose.Dose) error {
	for i := range doses {
		d := doses[i]
		s.doses[d.ID] = &d
	}
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*dose.Dose, error) {
	d, ok := s.doses[id]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, status dose.Status, note string, actedAt time.Time) error {
	d := s.doses[id]
	d.Status = status
	d.Note = note
	d.ActedAt = &actedAt
	return nil
}

func (s *memStore) MarkMissedBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	for id, d := range s.doses {
		if d.Status == dose.StatusPending && d.ScheduledAt.Before(cutoff) {
			d.Status = dose.StatusMissed
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) ListForPatientSince(_ context.Context, patientID string, since time.Time) ([]dose.Dose, error) {
	var out []dose.Dose
	for _, d := range s.doses {
		if d.PatientID == patientID && !d.ScheduledAt.Before(since) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memStore) ListForPatientOn(_ context.Context, patientID string, from, to time.Time) ([]dose.Dose, error) {
	var out []dose.Dose
	for _, d := range s.doses {
		if d.PatientID == patientID && !d.ScheduledAt.Before(from) && d.ScheduledAt.Before(to) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memStore) MissedCounts(_ context.Context, patientID string, since time.Time) (int, int, error) {
	missed, critical := 0, 0
	for _, d := range s.doses {
		if d.PatientID != patientID || d.Status != dose.StatusMissed || d.ScheduledAt.Before(since) {
			continue
		}
		missed++
		if s.critical[d.MedicationID] {
			critical++
		}
	}
	return missed, critical, nil
}

func (s *memStore) CountMedicationsForPatient(_ context.Context, patientID string) (int, error) {
	count := 0
	for _, m := range s.meds {
		p := s.plans[m.PlanID]
		if p != nil && p.PatientID == patientID {
			count++
		}
	}
	return count, nil
}

// memDirectory resolves patients and assignments.
type memDirectory struct {
	patients map[string]*patient.Patient
	links    map[string]bool
}

func (d *memDirectory) Get(_ context.Context, id string) (*patient.Patient, error) {
	return d.patients[id], nil
}

func (d *memDirectory) FindByMRN(_ context.Context, mrn string) (*patient.Patient, error) {
	for _, p := range d.patients {
		if p.MRN == mrn {
			return p, nil
		}
	}
	return nil, nil
}

func (d *memDirectory) Create(_ context.Context, p *patient.Patient) error {
	d.patients[p.ID] = p
	return nil
}

func (d *memDirectory) UpdateDemographics(_ context.Context, p *patient.Patient) error {
	d.patients[p.ID] = p
	return nil
}

func (d *memDirectory) EnsureLink(_ context.Context, patientID, doctorID string) error {
	d.links[patientID+"/"+doctorID] = true
	return nil
}

func (d *memDirectory) ListLinkedPatients(_ context.Context, doctorID string) ([]patient.Patient, error) {
	var out []patient.Patient
	for key := range d.links {
		if strings.HasSuffix(key, "/"+doctorID) {
			pid := strings.TrimSuffix(key, "/"+doctorID)
			if p := d.patients[pid]; p != nil {
				out = append(out, *p)
			}
		}
	}
	return out, nil
}

// openAuthz allows every actor; authorization rules have their own tests.
type openAuthz struct{}

func (openAuthz) RequireRole(context.Context, string, patient.Role) error { return nil }
func (openAuthz) CanPrescribeFor(context.Context, string, string) error   { return nil }
func (openAuthz) CanViewPatient(context.Context, string, string) error    { return nil }

func TestPrescribeActSweepReportFlow(t *testing.T) {
	ctx := context.Background()

	clock := &movableClock{t: time.Date(2026, time.February, 14, 9, 0, 0, 0, clinic.Location)}
	store := newMemStore()
	dob := clinic.Date{Year: 1960, Month: time.January, Day: 1}
	directory := &memDirectory{
		patients: map[string]*patient.Patient{
			"p1": {ID: "p1", FullName: "Lim Wei Jie", Role: patient.RolePatient, DOB: &dob},
		},
		links: map[string]bool{"p1/d1": true},
	}

	builder := prescribe.NewBuilder(store, store, directory, openAuthz{}, clock, nil, nil)
	lifecycle := dose.NewLifecycle(store, clock, nil, nil)
	reports := report.NewService(store, store, directory, openAuthz{}, clock, nil)

	// Prescribe metformin twice daily for three days.
	res, err := builder.CreatePrescription(ctx, "p1", "d1", []plan.MedicationInput{{
		Name:      "metformin",
		Dose:      "500mg",
		Route:     "oral",
		Frequency: "BD",
		Times:     []string{"06:00", "18:00"},
		Critical:  true,
		StartDate: "2026-02-14",
		EndDate:   "2026-02-16",
	}})
	if err != nil {
		t.Fatalf("create prescription: %v", err)
	}
	if res.Doses != 6 {
		t.Fatalf("doses %d, want 6", res.Doses)
	}

	// The patient takes the morning dose.
	morningID := ""
	for id, d := range store.doses {
		if clinic.LocalTime(d.ScheduledAt) == "06:00" && clinic.DateOf(d.ScheduledAt).Day == 14 {
			morningID = id
		}
	}
	if morningID == "" {
		t.Fatal("morning dose not generated")
	}
	if _, err := lifecycle.RecordPatientAction(ctx, morningID, "p1", dose.StatusTaken, "with breakfast"); err != nil {
		t.Fatalf("record action: %v", err)
	}

	// By 21:00 the 18:00 dose has outlived its grace window.
	clock.set(time.Date(2026, time.February, 14, 21, 0, 0, 0, clinic.Location))
	swept, err := lifecycle.SweepOverdue(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept %d, want 1", swept)
	}

	summary, err := reports.AdherenceSummary(ctx, "p1", "p1")
	if err != nil {
		t.Fatalf("adherence summary: %v", err)
	}
	if summary.TotalDoses != 2 || summary.TakenDoses != 1 || summary.MissedDoses != 1 {
		t.Errorf("summary %+v, want 2 total / 1 taken / 1 missed", summary)
	}
	if summary.OverallPercent != 50 {
		t.Errorf("overall %d%%, want 50", summary.OverallPercent)
	}
	if summary.Streak != 0 {
		t.Errorf("streak %d, want 0 after a missed dose", summary.Streak)
	}

	// One critical miss plus elderly age puts the patient in the red tier.
	assessment, err := reports.RiskFor(ctx, "d1", "p1")
	if err != nil {
		t.Fatalf("risk: %v", err)
	}
	if assessment.Score != 45 {
		t.Errorf("score %d, want 45", assessment.Score)
	}
	if assessment.Level != risk.LevelRed {
		t.Errorf("level %s, want RED", assessment.Level)
	}

	ranked, err := reports.RiskList(ctx, "d1")
	if err != nil {
		t.Fatalf("risk list: %v", err)
	}
	if len(ranked) != 1 || ranked[0].Patient.ID != "p1" {
		t.Fatalf("ranked list %+v, want p1 only", ranked)
	}
}
