package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medtrack/adherence-engine/internal/clinic"
)

// Repository persists patients and patient-doctor links.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a patient repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// Get returns a patient by ID, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Patient, error) {
	query := `
		SELECT id, full_name, role, COALESCE(mrn, ''), COALESCE(phone, ''), dob, created_at
		FROM profiles
		WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// FindByMRN returns the patient with the given medical record number, or
// nil when no such patient exists.
func (r *Repository) FindByMRN(ctx context.Context, mrn string) (*Patient, error) {
	query := `
		SELECT id, full_name, role, COALESCE(mrn, ''), COALESCE(phone, ''), dob, created_at
		FROM profiles
		WHERE mrn = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, mrn))
}

// Create inserts a patient row.
func (r *Repository) Create(ctx context.Context, p *Patient) error {
	query := `
		INSERT INTO profiles (id, full_name, role, mrn, phone, dob)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query, p.ID, p.FullName, p.Role, p.MRN, p.Phone, dobParam(p.DOB)).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

// UpdateDemographics refreshes the mutable identity fields, used when an
// import payload carries newer demographics for an existing patient.
func (r *Repository) UpdateDemographics(ctx context.Context, p *Patient) error {
	query := `
		UPDATE profiles
		SET full_name = $2, mrn = NULLIF($3, ''), phone = NULLIF($4, ''), dob = $5
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, query, p.ID, p.FullName, p.MRN, p.Phone, dobParam(p.DOB)); err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

// RoleOf returns the role of a user, or "" when the user is unknown.
func (r *Repository) RoleOf(ctx context.Context, id string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1`, id).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query role: %w", err)
	}
	return role, nil
}

// Linked reports whether the doctor has an assignment link to the patient.
func (r *Repository) Linked(ctx context.Context, patientID, doctorID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patient_doctor WHERE patient_id = $1 AND doctor_id = $2)`,
		patientID, doctorID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query link: %w", err)
	}
	return exists, nil
}

// EnsureLink creates the patient-doctor link if it does not already exist.
func (r *Repository) EnsureLink(ctx context.Context, patientID, doctorID string) error {
	query := `
		INSERT INTO patient_doctor (patient_id, doctor_id)
		VALUES ($1, $2)
		ON CONFLICT (patient_id, doctor_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, patientID, doctorID); err != nil {
		return fmt.Errorf("link patient to doctor: %w", err)
	}
	return nil
}

// ListLinkedPatients returns the patients assigned to a doctor.
func (r *Repository) ListLinkedPatients(ctx context.Context, doctorID string) ([]Patient, error) {
	query := `
		SELECT p.id, p.full_name, p.role, COALESCE(p.mrn, ''), COALESCE(p.phone, ''), p.dob, p.created_at
		FROM profiles p
		JOIN patient_doctor pd ON pd.patient_id = p.id
		WHERE pd.doctor_id = $1
		ORDER BY p.full_name
	`
	rows, err := r.pool.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query linked patients: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanOne(row pgx.Row) (*Patient, error) {
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func scanPatient(row rowScanner) (*Patient, error) {
	p := &Patient{}
	var dob *time.Time
	if err := row.Scan(&p.ID, &p.FullName, &p.Role, &p.MRN, &p.Phone, &dob, &p.CreatedAt); err != nil {
		return nil, err
	}
	if dob != nil {
		d := clinic.DateOf(*dob)
		p.DOB = &d
	}
	return p, nil
}

// dobParam encodes an optional civil date for the store.
func dobParam(d *clinic.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := clinic.StartOfDay(*d)
	return &t
}
