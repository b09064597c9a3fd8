package plan

import (
	"strings"
	"testing"
	"time"

	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/fault"
)

func validInput() MedicationInput {
	return MedicationInput{
		Name:      "metformin 500mg tab",
		Dose:      "500mg",
		Route:     "oral",
		Frequency: "twice-daily",
		Times:     []string{"06:00", "18:00"},
		StartDate: "2026-02-14",
		EndDate:   "2026-02-14",
	}
}

func TestNewMedication(t *testing.T) {
	m, err := NewMedication("plan-1", validInput())
	if err != nil {
		t.Fatalf("NewMedication: %v", err)
	}
	if m.Name != "METFORMIN 500MG TAB" {
		t.Errorf("name not canonicalized: %q", m.Name)
	}
	if m.Route != RouteOral {
		t.Errorf("route = %s", m.Route)
	}
	if m.ID == "" || m.PlanID != "plan-1" {
		t.Errorf("identity fields: %+v", m)
	}
	if m.Start.String() != "2026-02-14" || m.End.String() != "2026-02-14" {
		t.Errorf("range = %s..%s", m.Start, m.End)
	}
}

func TestNewMedicationRejections(t *testing.T) {
	mutate := []struct {
		name string
		fn   func(*MedicationInput)
	}{
		{"blank name", func(in *MedicationInput) { in.Name = "  " }},
		{"no times", func(in *MedicationInput) { in.Times = nil }},
		{"bad time", func(in *MedicationInput) { in.Times = []string{"25:00"} }},
		{"duplicate time", func(in *MedicationInput) { in.Times = []string{"08:00", "08:00"} }},
		{"bad route", func(in *MedicationInput) { in.Route = "osmosis" }},
		{"missing start", func(in *MedicationInput) { in.StartDate = "" }},
		{"missing end", func(in *MedicationInput) { in.EndDate = "" }},
		{"inverted range", func(in *MedicationInput) { in.EndDate = "2026-02-13" }},
		{"malformed date", func(in *MedicationInput) { in.StartDate = "14/02/2026" }},
	}
	for _, tt := range mutate {
		in := validInput()
		tt.fn(&in)
		_, err := NewMedication("plan-1", in)
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if fault.KindOf(err) != fault.KindValidation {
			t.Errorf("%s: kind = %s, want validation", tt.name, fault.KindOf(err))
		}
	}
}

func TestParseRouteNormalizes(t *testing.T) {
	r, err := ParseRoute(" Oral ")
	if err != nil {
		t.Fatal(err)
	}
	if r != RouteOral {
		t.Errorf("route = %s", r)
	}
}

func TestSpan(t *testing.T) {
	d := func(s string) clinic.Date {
		v, err := clinic.ParseDate(s)
		if err != nil {
			t.Fatal(err)
		}
		return v
	}
	meds := []Medication{
		{Start: d("2026-02-16"), End: d("2026-02-20")},
		{Start: d("2026-02-14"), End: d("2026-02-18")},
		{Start: d("2026-02-15"), End: d("2026-02-25")},
	}
	start, end := Span(meds)
	if start != d("2026-02-14") || end != d("2026-02-25") {
		t.Errorf("span = %s..%s", start, end)
	}
}

func TestNewNumberFormat(t *testing.T) {
	today := clinic.Date{Year: 2026, Month: time.February, Day: 14}
	for i := 0; i < 200; i++ {
		n := NewNumber(today)
		if !ValidNumber(n) {
			t.Fatalf("malformed number %q", n)
		}
		if !strings.HasPrefix(n, "RX-20260214-") {
			t.Fatalf("date segment wrong in %q", n)
		}
	}
}

func TestValidNumber(t *testing.T) {
	for _, bad := range []string{"", "RX-2026021-1234", "RX-20260214-0999", "RX-20260214-12345", "rx-20260214-1234"} {
		if ValidNumber(bad) {
			t.Errorf("ValidNumber(%q) = true", bad)
		}
	}
}
