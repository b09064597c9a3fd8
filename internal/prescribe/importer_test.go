package prescribe

import (
	"context"
	"testing"
	"time"

	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/domain/patient"
	"github.com/medtrack/adherence-engine/internal/fault"
)

func handoverPayload() ImportPayload {
	return ImportPayload{
		Patient: ImportPatient{
			FullName: "Aminah binti Hassan",
			MRN:      "MRN-00123",
			Phone:    "+60123456789",
			DOB:      "1958-04-02",
		},
		Plan: ImportPlan{StartDate: "2026-02-10", EndDate: "2026-03-10"},
		Meds: []ImportMed{
			{Name: "amlodipine", Dose: "5mg", Route: "oral", Times: []string{"08:00"}, Freq: "OD", Critical: true},
			{Name: "simvastatin", Dose: "20mg", Route: "oral", Times: []string{"21:00"}, Freq: "ON"},
		},
	}
}

func TestImportCreatesPatient(t *testing.T) {
	plans := &fakePlans{}
	doses := &fakeDoses{}
	patients := newFakePatients()
	im := NewImporter(plans, doses, patients, &fakeAuthz{}, clockAt(2026, time.February, 14, 9), nil, nil)

	res, err := im.Import(context.Background(), "d1", handoverPayload())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !res.PatientCreated {
		t.Error("expected a new patient record")
	}
	if len(patients.created) != 1 {
		t.Fatalf("created %d patients, want 1", len(patients.created))
	}
	p := patients.created[0]
	if p.Role != patient.RolePatient || p.MRN != "MRN-00123" {
		t.Errorf("created patient %+v", p)
	}
	if p.DOB == nil || p.DOB.Year != 1958 {
		t.Errorf("dob not carried: %+v", p.DOB)
	}
	if len(patients.links) != 1 || patients.links[0] != p.ID+"/d1" {
		t.Errorf("link not ensured: %v", patients.links)
	}

	// Plan started four days ago, so the rolling window anchors on today
	// and runs seven days: two medications, one time each.
	if res.Doses != 14 {
		t.Fatalf("generated %d doses, want 14", res.Doses)
	}
	first := clinic.DateOf(doses.inserted[0].ScheduledAt)
	if (first != clinic.Date{Year: 2026, Month: time.February, Day: 14}) {
		t.Errorf("window starts %v, want today", first)
	}
	var last clinic.Date
	for _, d := range doses.inserted {
		day := clinic.DateOf(d.ScheduledAt)
		if last.IsZero() || day.After(last) {
			last = day
		}
	}
	if (last != clinic.Date{Year: 2026, Month: time.February, Day: 20}) {
		t.Errorf("window ends %v, want six days after today", last)
	}
}

func TestImportFutureStartAnchorsOnPlanStart(t *testing.T) {
	doses := &fakeDoses{}
	im := NewImporter(&fakePlans{}, doses, newFakePatients(), &fakeAuthz{}, clockAt(2026, time.February, 1, 9), nil, nil)

	res, err := im.Import(context.Background(), "d1", handoverPayload())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Doses != 14 {
		t.Fatalf("generated %d doses, want 14", res.Doses)
	}
	for _, d := range doses.inserted {
		day := clinic.DateOf(d.ScheduledAt)
		if day.Before(clinic.Date{Year: 2026, Month: time.February, Day: 10}) {
			t.Fatalf("dose on %v predates the plan start", day)
		}
	}
}

func TestImportRefreshesExistingPatient(t *testing.T) {
	existing := &patient.Patient{
		ID:       "p9",
		FullName: "A. Hassan",
		Role:     patient.RolePatient,
		MRN:      "MRN-00123",
	}
	patients := newFakePatients(existing)
	im := NewImporter(&fakePlans{}, &fakeDoses{}, patients, &fakeAuthz{}, clockAt(2026, time.February, 14, 9), nil, nil)

	res, err := im.Import(context.Background(), "d1", handoverPayload())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.PatientCreated {
		t.Error("should have reused the existing record")
	}
	if res.PatientID != "p9" {
		t.Errorf("resolved patient %q, want p9", res.PatientID)
	}
	if len(patients.created) != 0 {
		t.Errorf("created %d patients, want 0", len(patients.created))
	}
	if len(patients.updated) != 1 || patients.updated[0].FullName != "Aminah binti Hassan" {
		t.Errorf("demographics not refreshed: %+v", patients.updated)
	}
}

func TestImportKeepsMedicationNamesAsReceived(t *testing.T) {
	plans := &fakePlans{}
	im := NewImporter(plans, &fakeDoses{}, newFakePatients(), &fakeAuthz{}, clockAt(2026, time.February, 14, 9), nil, nil)

	if _, err := im.Import(context.Background(), "d1", handoverPayload()); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if plans.createdMeds[0].Name != "amlodipine" {
		t.Errorf("name %q, want the exporter's casing preserved", plans.createdMeds[0].Name)
	}
	if !plans.createdMeds[0].Start.IsZero() || !plans.createdMeds[0].End.IsZero() {
		t.Errorf("imported medications must carry no dates of their own: %+v", plans.createdMeds[0])
	}
}

func TestImportRejections(t *testing.T) {
	clock := clockAt(2026, time.February, 14, 9)

	mutate := func(fn func(*ImportPayload)) ImportPayload {
		p := handoverPayload()
		fn(&p)
		return p
	}
	cases := []struct {
		name    string
		payload ImportPayload
	}{
		{"missing name", mutate(func(p *ImportPayload) { p.Patient.FullName = " " })},
		{"missing mrn", mutate(func(p *ImportPayload) { p.Patient.MRN = "" })},
		{"no medications", mutate(func(p *ImportPayload) { p.Meds = nil })},
		{"medication without times", mutate(func(p *ImportPayload) { p.Meds[0].Times = nil })},
		{"malformed time", mutate(func(p *ImportPayload) { p.Meds[0].Times = []string{"8am"} })},
		{"malformed start", mutate(func(p *ImportPayload) { p.Plan.StartDate = "10/02/2026" })},
		{"inverted range", mutate(func(p *ImportPayload) { p.Plan.EndDate = "2026-01-01" })},
		{"malformed dob", mutate(func(p *ImportPayload) { p.Patient.DOB = "02-04-1958" })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			im := NewImporter(&fakePlans{}, &fakeDoses{}, newFakePatients(), &fakeAuthz{}, clock, nil, nil)
			_, err := im.Import(context.Background(), "d1", tc.payload)
			if fault.KindOf(err) != fault.KindValidation {
				t.Fatalf("got %v, want validation", err)
			}
		})
	}
}

func TestImportRequiresDoctor(t *testing.T) {
	authz := &fakeAuthz{roleErr: fault.Authorization("actor n1 is nurse, needs doctor")}
	im := NewImporter(&fakePlans{}, &fakeDoses{}, newFakePatients(), authz, clockAt(2026, time.February, 14, 9), nil, nil)

	_, err := im.Import(context.Background(), "n1", handoverPayload())
	if fault.KindOf(err) != fault.KindAuthorization {
		t.Fatalf("got %v, want authorization", err)
	}
}
