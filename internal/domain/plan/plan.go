// Package plan implements medication plans (prescriptions) and their
// medications. Plans are append-only: a new prescribing event always
// creates a new plan, never edits an existing one.
package plan

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/fault"
)

// Route is the administration route of a medication.
type Route string

const (
	RouteOral          Route = "oral"
	RouteSubcutaneous  Route = "subcutaneous"
	RouteIntramuscular Route = "intramuscular"
	RouteIntravenous   Route = "intravenous"
	RouteRectal        Route = "rectal"
	RouteSublingual    Route = "sublingual"
	RouteTopical       Route = "topical"
	RouteInhaled       Route = "inhaled"
)

var routes = map[Route]bool{
	RouteOral: true, RouteSubcutaneous: true, RouteIntramuscular: true,
	RouteIntravenous: true, RouteRectal: true, RouteSublingual: true,
	RouteTopical: true, RouteInhaled: true,
}

// ParseRoute validates an administration route string.
func ParseRoute(s string) (Route, error) {
	r := Route(strings.ToLower(strings.TrimSpace(s)))
	if !routes[r] {
		return "", fault.Validation("unknown route %q", s)
	}
	return r, nil
}

// Plan is one prescribing event for a patient.
type Plan struct {
	ID        string       `json:"id"`
	PatientID string       `json:"patient_id"`
	Number    string       `json:"pres_no"`
	Start     clinic.Date  `json:"start_date"`
	End       *clinic.Date `json:"end_date"`
	CreatedAt time.Time    `json:"created_at"`
}

// Medication is one drug line on a plan, immutable after creation.
type Medication struct {
	ID        string      `json:"id"`
	PlanID    string      `json:"plan_id"`
	Name      string      `json:"med_name"`
	Dose      string      `json:"dose"`
	Route     Route       `json:"route"`
	Frequency string      `json:"freq"`
	Times     []string    `json:"times"`
	Critical  bool        `json:"critical"`
	Start     clinic.Date `json:"start_date"`
	End       clinic.Date `json:"end_date"`
}

// MedicationInput is one requested medication line on a prescription.
type MedicationInput struct {
	Name      string   `json:"med_name"`
	Dose      string   `json:"dose"`
	Route     string   `json:"route"`
	Frequency string   `json:"freq"`
	Times     []string `json:"times"`
	Critical  bool     `json:"critical"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
}

// NewMedication validates an input line and builds the medication for a
// plan. Names are canonicalized to uppercase; clock-times must be unique
// HH:MM values; the inclusive date range must not be inverted.
func NewMedication(planID string, in MedicationInput) (Medication, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Medication{}, fault.Validation("medication name is required")
	}
	if len(in.Times) == 0 {
		return Medication{}, fault.Validation("medication %s needs at least one clock-time", name)
	}

	seen := make(map[string]bool, len(in.Times))
	for _, hhmm := range in.Times {
		if _, err := clinic.Combine(clinic.Date{Year: 2000, Month: 1, Day: 1}, hhmm); err != nil {
			return Medication{}, fault.Validation("medication %s: invalid clock-time %q", name, hhmm)
		}
		if seen[hhmm] {
			return Medication{}, fault.Validation("medication %s: duplicate clock-time %q", name, hhmm)
		}
		seen[hhmm] = true
	}

	route, err := ParseRoute(in.Route)
	if err != nil {
		return Medication{}, fault.Validation("medication %s: %v", name, err)
	}

	if in.StartDate == "" || in.EndDate == "" {
		return Medication{}, fault.Validation("medication %s needs start and end dates", name)
	}
	start, err := clinic.ParseDate(in.StartDate)
	if err != nil {
		return Medication{}, fault.Validation("medication %s: %v", name, err)
	}
	end, err := clinic.ParseDate(in.EndDate)
	if err != nil {
		return Medication{}, fault.Validation("medication %s: %v", name, err)
	}
	if end.Before(start) {
		return Medication{}, fault.Validation("medication %s: end date %s precedes start date %s", name, end, start)
	}

	return Medication{
		ID:        uuid.New().String(),
		PlanID:    planID,
		Name:      strings.ToUpper(name),
		Dose:      strings.TrimSpace(in.Dose),
		Route:     route,
		Frequency: strings.TrimSpace(in.Frequency),
		Times:     in.Times,
		Critical:  in.Critical,
		Start:     start,
		End:       end,
	}, nil
}

// Span returns the overall plan range covering all medications: earliest
// start through latest end.
func Span(meds []Medication) (start clinic.Date, end clinic.Date) {
	for i, m := range meds {
		if i == 0 || m.Start.Before(start) {
			start = m.Start
		}
		if i == 0 || m.End.After(end) {
			end = m.End
		}
	}
	return start, end
}
