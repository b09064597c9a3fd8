// Package authz centralizes the capability checks that the source system
// scattered across individual actions. The engine trusts upstream
// authentication and only decides what a known actor may do.
package authz

import (
	"context"

	"github.com/medtrack/adherence-engine/internal/domain/patient"
	"github.com/medtrack/adherence-engine/internal/fault"
)

// Directory answers identity questions about actors and their links.
type Directory interface {
	RoleOf(ctx context.Context, id string) (patient.Role, error)
	Linked(ctx context.Context, patientID, doctorID string) (bool, error)
}

// Policy evaluates actor capabilities.
type Policy struct {
	dir Directory
}

// NewPolicy creates a policy over a directory.
func NewPolicy(dir Directory) *Policy {
	return &Policy{dir: dir}
}

// RequireRole fails unless the actor holds the given role.
func (p *Policy) RequireRole(ctx context.Context, actorID string, role patient.Role) error {
	got, err := p.dir.RoleOf(ctx, actorID)
	if err != nil {
		return fault.Internal("resolve actor role", err)
	}
	if got == "" {
		return fault.NotFound("actor %s", actorID)
	}
	if got != role {
		return fault.Authorization("actor %s is %s, needs %s", actorID, got, role)
	}
	return nil
}

// CanPrescribeFor fails unless the actor is a doctor with an assignment
// link to the patient. A missing link is an authorization failure, not a
// validation failure.
func (p *Policy) CanPrescribeFor(ctx context.Context, doctorID, patientID string) error {
	if err := p.RequireRole(ctx, doctorID, patient.RoleDoctor); err != nil {
		return err
	}
	linked, err := p.dir.Linked(ctx, patientID, doctorID)
	if err != nil {
		return fault.Internal("resolve patient link", err)
	}
	if !linked {
		return fault.Authorization("patient %s is not assigned to doctor %s", patientID, doctorID)
	}
	return nil
}

// CanViewPatient mirrors CanPrescribeFor: doctors see only their own
// assigned patients.
func (p *Policy) CanViewPatient(ctx context.Context, doctorID, patientID string) error {
	return p.CanPrescribeFor(ctx, doctorID, patientID)
}
