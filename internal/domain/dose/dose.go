// Package dose implements the scheduled-dose model and its lifecycle.
package dose

import (
	"time"
)

// Status is the lifecycle state of a scheduled dose.
//
// pending is the only initial state. taken and skipped are patient-initiated;
// missed is applied by the overdue sweep. Terminal states are never cleared,
// but a patient action may overwrite one terminal state with another (the
// correction behavior carried over from the source system).
type Status string

const (
	StatusPending Status = "pending"
	StatusTaken   Status = "taken"
	StatusSkipped Status = "skipped"
	StatusMissed  Status = "missed"
)

// PatientSettable reports whether a patient may set this status directly.
func (s Status) PatientSettable() bool {
	return s == StatusTaken || s == StatusSkipped
}

// Terminal reports whether the status ends the dose lifecycle.
func (s Status) Terminal() bool {
	return s == StatusTaken || s == StatusSkipped || s == StatusMissed
}

// Label returns the display label used by patient and doctor reports.
// "taken" renders as "Complete".
func (s Status) Label() string {
	switch s {
	case StatusTaken:
		return "Complete"
	case StatusSkipped:
		return "Skipped"
	case StatusMissed:
		return "Missed"
	case StatusPending:
		return "Pending"
	default:
		return string(s)
	}
}

// Dose is one materialized administration slot for a medication.
// Doses are created in bulk at prescribing time and never deleted.
type Dose struct {
	ID           string     `json:"id"`
	MedicationID string     `json:"medication_id"`
	PatientID    string     `json:"patient_id"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Status       Status     `json:"status"`
	Note         string     `json:"note,omitempty"`
	ActedAt      *time.Time `json:"acted_at,omitempty"`
}
