package report

import (
	"context"
	"testing"
	"time"

	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/domain/dose"
	"github.com/medtrack/adherence-engine/internal/domain/patient"
	"github.com/medtrack/adherence-engine/internal/fault"
	"github.com/medtrack/adherence-engine/internal/risk"
)

type memDoses struct {
	doses   []dose.Dose
	missed  map[string]int
	critMis map[string]int
}

func (m *memDoses) ListForPatientSince(_ context.Context, patientID string, since time.Time) ([]dose.Dose, error) {
	var out []dose.Dose
	for _, d := range m.doses {
		if d.PatientID == patientID && !d.ScheduledAt.Before(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDoses) ListForPatientOn(_ context.Context, patientID string, from, to time.Time) ([]dose.Dose, error) {
	var out []dose.Dose
	for _, d := range m.doses {
		if d.PatientID == patientID && !d.ScheduledAt.Before(from) && d.ScheduledAt.Before(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDoses) MissedCounts(_ context.Context, patientID string, _ time.Time) (int, int, error) {
	return m.missed[patientID], m.critMis[patientID], nil
}

type memMeds struct{ counts map[string]int }

func (m *memMeds) CountMedicationsForPatient(_ context.Context, patientID string) (int, error) {
	return m.counts[patientID], nil
}

type memDirectory struct {
	patients map[string]*patient.Patient
	linked   map[string][]patient.Patient
}

func (m *memDirectory) Get(_ context.Context, id string) (*patient.Patient, error) {
	return m.patients[id], nil
}

func (m *memDirectory) ListLinkedPatients(_ context.Context, doctorID string) ([]patient.Patient, error) {
	return m.linked[doctorID], nil
}

type viewAuthz struct{ err error }

func (a *viewAuthz) CanViewPatient(context.Context, string, string) error { return a.err }

func at(y int, mo time.Month, d, hh int) time.Time {
	return time.Date(y, mo, d, hh, 0, 0, 0, clinic.Location)
}

func taken(patientID string, t time.Time) dose.Dose {
	acted := t.Add(5 * time.Minute)
	return dose.Dose{PatientID: patientID, ScheduledAt: t, Status: dose.StatusTaken, ActedAt: &acted}
}

func pending(patientID string, t time.Time) dose.Dose {
	return dose.Dose{PatientID: patientID, ScheduledAt: t, Status: dose.StatusPending}
}

func TestAdherenceSummaryOwnData(t *testing.T) {
	doses := &memDoses{doses: []dose.Dose{
		taken("p1", at(2026, time.February, 13, 8)),
		taken("p1", at(2026, time.February, 14, 8)),
		// Tomorrow's dose must not drag today's percentage down.
		pending("p1", at(2026, time.February, 14, 20)),
	}}
	clock := clinic.Fixed(at(2026, time.February, 14, 12))
	// Authorization must not be consulted for a self read.
	s := NewService(doses, &memMeds{}, &memDirectory{}, &viewAuthz{err: fault.Authorization("nope")}, clock, nil)

	sum, err := s.AdherenceSummary(context.Background(), "p1", "p1")
	if err != nil {
		t.Fatalf("AdherenceSummary: %v", err)
	}
	if len(sum.Days) != 7 {
		t.Fatalf("charted %d days, want 7", len(sum.Days))
	}
	today := sum.Days[len(sum.Days)-1]
	if today.Taken != 1 || today.Total != 1 || today.Percentage != 100 {
		t.Errorf("today %+v, want 1/1 at 100%%", today)
	}
	if sum.Streak != 2 {
		t.Errorf("streak %d, want 2", sum.Streak)
	}
}

func TestAdherenceSummaryDoctorNeedsAssignment(t *testing.T) {
	clock := clinic.Fixed(at(2026, time.February, 14, 12))
	s := NewService(&memDoses{}, &memMeds{}, &memDirectory{}, &viewAuthz{err: fault.Authorization("not assigned")}, clock, nil)

	_, err := s.AdherenceSummary(context.Background(), "d1", "p1")
	if fault.KindOf(err) != fault.KindAuthorization {
		t.Fatalf("got %v, want authorization", err)
	}
}

func TestDaySchedule(t *testing.T) {
	doses := &memDoses{doses: []dose.Dose{
		pending("p1", at(2026, time.February, 13, 23)),
		pending("p1", at(2026, time.February, 14, 6)),
		pending("p1", at(2026, time.February, 14, 18)),
		pending("p1", at(2026, time.February, 15, 0)),
	}}
	clock := clinic.Fixed(at(2026, time.February, 14, 12))
	s := NewService(doses, &memMeds{}, &memDirectory{}, &viewAuthz{}, clock, nil)

	day, err := s.DaySchedule(context.Background(), "p1", "p1", clinic.Date{Year: 2026, Month: time.February, Day: 14})
	if err != nil {
		t.Fatalf("DaySchedule: %v", err)
	}
	if len(day) != 2 {
		t.Fatalf("got %d doses, want the 2 within the day", len(day))
	}
}

func TestRiskForAssemblesInputs(t *testing.T) {
	dob := clinic.Date{Year: 1950, Month: time.March, Day: 1}
	dir := &memDirectory{patients: map[string]*patient.Patient{
		"p1": {ID: "p1", FullName: "Tan Ah Kow", DOB: &dob},
	}}
	doses := &memDoses{missed: map[string]int{"p1": 2}, critMis: map[string]int{"p1": 1}}
	meds := &memMeds{counts: map[string]int{"p1": 6}}
	clock := clinic.Fixed(at(2026, time.February, 14, 12))
	s := NewService(doses, meds, dir, &viewAuthz{}, clock, nil)

	a, err := s.RiskFor(context.Background(), "p1", "p1")
	if err != nil {
		t.Fatalf("RiskFor: %v", err)
	}
	// 2 missed x10 + 1 critical x25 + polypharmacy 10 + elderly 10
	if a.Score != 65 || a.Level != risk.LevelRed {
		t.Errorf("assessment %+v, want score 65 RED", a)
	}
}

func TestRiskListRankedByScore(t *testing.T) {
	dir := &memDirectory{
		linked: map[string][]patient.Patient{
			"d1": {
				{ID: "calm", FullName: "Calm Patient"},
				{ID: "risky", FullName: "Risky Patient"},
			},
		},
	}
	doses := &memDoses{missed: map[string]int{"risky": 3}, critMis: map[string]int{"risky": 1}}
	meds := &memMeds{counts: map[string]int{}}
	clock := clinic.Fixed(at(2026, time.February, 14, 12))
	s := NewService(doses, meds, dir, &viewAuthz{}, clock, nil)

	list, err := s.RiskList(context.Background(), "d1")
	if err != nil {
		t.Fatalf("RiskList: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d entries, want 2", len(list))
	}
	if list[0].Patient.ID != "risky" || list[1].Patient.ID != "calm" {
		t.Errorf("order %s, %s; want risky first", list[0].Patient.ID, list[1].Patient.ID)
	}
	if list[1].Assessment.Score != 0 || list[1].Assessment.Level != risk.LevelGreen {
		t.Errorf("calm assessment %+v", list[1].Assessment)
	}
}

func TestRiskForUnknownPatient(t *testing.T) {
	clock := clinic.Fixed(at(2026, time.February, 14, 12))
	s := NewService(&memDoses{}, &memMeds{}, &memDirectory{patients: map[string]*patient.Patient{}}, &viewAuthz{}, clock, nil)

	_, err := s.RiskFor(context.Background(), "ghost", "ghost")
	if fault.KindOf(err) != fault.KindNotFound {
		t.Fatalf("got %v, want not found", err)
	}
}
