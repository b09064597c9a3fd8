// Package patient holds patient and doctor identities and the assignment
// links between them. Authentication happens upstream; this package only
// records who exists and who treats whom.
package patient

import (
	"time"

	"github.com/medtrack/adherence-engine/internal/clinic"
)

// Role of a registered user. The engine only reasons about patients and
// doctors; other roles pass through untouched.
type Role string

const (
	RolePatient   Role = "patient"
	RoleDoctor    Role = "doctor"
	RoleFrontdesk Role = "frontdesk"
	RoleAdmin     Role = "admin"
)

// Patient is a person receiving care. MRN is the medical record number,
// the natural key used by external intake.
type Patient struct {
	ID        string       `json:"id"`
	FullName  string       `json:"full_name"`
	Role      Role         `json:"role"`
	MRN       string       `json:"mrn,omitempty"`
	Phone     string       `json:"phone,omitempty"`
	DOB       *clinic.Date `json:"dob,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Age returns the patient's age in whole years, or 0 when the date of
// birth is unknown.
func (p *Patient) Age(now time.Time) int {
	if p.DOB == nil {
		return 0
	}
	return clinic.Age(*p.DOB, now)
}
