// Package schedule expands a medication's daily clock-times over a date
// range into concrete scheduled-dose records.
//
// Two expansion policies coexist on purpose: interactive prescribing
// materializes the medication's exact inclusive date range, while external
// record import materializes a fixed 7-day rolling window. The divergence
// is historical but load-bearing; keep the strategies separate.
package schedule

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/domain/dose"
)

// Request describes one medication to expand.
type Request struct {
	MedicationID string
	PatientID    string
	// Times are the daily administration clock-times, HH:MM, unique.
	Times []string
	// Start and End bound the medication's active range, inclusive.
	Start clinic.Date
	End   clinic.Date
}

// Strategy materializes dose records for a request. today is the current
// civil date, threaded in so window policies are deterministic under test.
type Strategy interface {
	Expand(req Request, today clinic.Date) ([]dose.Dose, error)
}

// RollingWindowDays is the horizon of the import expansion policy.
const RollingWindowDays = 7

// ExactRange expands every day of [Start, End]. For N clock-times over an
// inclusive span of D days it yields exactly N×D doses.
type ExactRange struct{}

// Expand implements Strategy.
func (ExactRange) Expand(req Request, _ clinic.Date) ([]dose.Dose, error) {
	days := clinic.InclusiveDays(req.Start, req.End)
	if days == 0 {
		return nil, fmt.Errorf("medication %s: end date %s precedes start date %s",
			req.MedicationID, req.End, req.Start)
	}
	return expandDays(req, req.Start, days)
}

// RollingWindow expands exactly RollingWindowDays days starting at the
// later of the request start date and today. The request end date is
// ignored; the next import run re-materializes the window.
type RollingWindow struct{}

// Expand implements Strategy.
func (RollingWindow) Expand(req Request, today clinic.Date) ([]dose.Dose, error) {
	base := req.Start
	if today.After(base) {
		base = today
	}
	return expandDays(req, base, RollingWindowDays)
}

func expandDays(req Request, base clinic.Date, days int) ([]dose.Dose, error) {
	if len(req.Times) == 0 {
		return nil, fmt.Errorf("medication %s has no clock-times", req.MedicationID)
	}

	doses := make([]dose.Dose, 0, days*len(req.Times))
	for day := 0; day < days; day++ {
		d := base.AddDays(day)
		for _, hhmm := range req.Times {
			at, err := clinic.Combine(d, hhmm)
			if err != nil {
				return nil, fmt.Errorf("medication %s: %w", req.MedicationID, err)
			}
			doses = append(doses, dose.Dose{
				ID:           uuid.New().String(),
				MedicationID: req.MedicationID,
				PatientID:    req.PatientID,
				ScheduledAt:  at,
				Status:       dose.StatusPending,
			})
		}
	}
	return doses, nil
}
