package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medtrack/adherence-engine/internal/clinic"
)

// ErrDuplicateNumber reports that a plan insert lost the race on the
// prescription number unique index. Callers treat it like a pre-insert
// collision and retry with a fresh number.
var ErrDuplicateNumber = errors.New("duplicate prescription number")

// Repository persists plans and medications. The unique index on
// medication_plans.pres_no is the final guard against the prescription
// number check-then-insert race; callers treat a unique violation as one
// more collision and retry.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a plan repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// NumberExists reports whether a plan already carries the prescription
// number.
func (r *Repository) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM medication_plans WHERE pres_no = $1)`, number,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query pres_no: %w", err)
	}
	return exists, nil
}

// CreatePlan inserts a plan row.
func (r *Repository) CreatePlan(ctx context.Context, p *Plan) error {
	query := `
		INSERT INTO medication_plans (id, patient_id, pres_no, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	var end *time.Time
	if p.End != nil {
		t := clinic.StartOfDay(*p.End)
		end = &t
	}
	err := r.pool.QueryRow(ctx, query,
		p.ID, p.PatientID, p.Number, clinic.StartOfDay(p.Start), end,
	).Scan(&p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("pres_no %s: %w", p.Number, ErrDuplicateNumber)
		}
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// CreateMedications inserts all medication rows for a plan.
func (r *Repository) CreateMedications(ctx context.Context, meds []Medication) error {
	batch := &pgx.Batch{}
	query := `
		INSERT INTO medications (id, plan_id, med_name, dose, route, times, freq, critical, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, m := range meds {
		batch.Queue(query,
			m.ID, m.PlanID, m.Name, m.Dose, m.Route, m.Times, m.Frequency, m.Critical,
			dateParam(m.Start), dateParam(m.End),
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range meds {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert medication: %w", err)
		}
	}
	return nil
}

// GetPlan returns a plan by ID, or nil when absent.
func (r *Repository) GetPlan(ctx context.Context, id string) (*Plan, error) {
	query := `
		SELECT id, patient_id, pres_no, start_date, end_date, created_at
		FROM medication_plans
		WHERE id = $1
	`
	p, err := scanPlan(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListPlansForPatient returns a patient's plans, newest first.
func (r *Repository) ListPlansForPatient(ctx context.Context, patientID string) ([]Plan, error) {
	query := `
		SELECT id, patient_id, pres_no, start_date, end_date, created_at
		FROM medication_plans
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListMedicationsForPatient returns every medication across all of a
// patient's plans.
func (r *Repository) ListMedicationsForPatient(ctx context.Context, patientID string) ([]Medication, error) {
	query := `
		SELECT m.id, m.plan_id, m.med_name, m.dose, m.route, m.times, m.freq, m.critical, m.start_date, m.end_date
		FROM medications m
		JOIN medication_plans mp ON mp.id = m.plan_id
		WHERE mp.patient_id = $1
		ORDER BY m.med_name
	`
	rows, err := r.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("query medications: %w", err)
	}
	defer rows.Close()

	var out []Medication
	for rows.Next() {
		m := Medication{}
		var start, end *time.Time
		err := rows.Scan(&m.ID, &m.PlanID, &m.Name, &m.Dose, &m.Route, &m.Times,
			&m.Frequency, &m.Critical, &start, &end)
		if err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		if start != nil {
			m.Start = clinic.DateOf(*start)
		}
		if end != nil {
			m.End = clinic.DateOf(*end)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMedicationsForPatient counts distinct medications across all plans,
// the meds-count input to risk scoring.
func (r *Repository) CountMedicationsForPatient(ctx context.Context, patientID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM medications m
		JOIN medication_plans mp ON mp.id = m.plan_id
		WHERE mp.patient_id = $1
	`, patientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count medications: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// dateParam encodes a civil date, with the zero value as NULL (imported
// medications inherit the plan-level range and carry no dates of their own).
func dateParam(d clinic.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := clinic.StartOfDay(d)
	return &t
}

func scanPlan(row rowScanner) (*Plan, error) {
	p := &Plan{}
	var start time.Time
	var end *time.Time
	if err := row.Scan(&p.ID, &p.PatientID, &p.Number, &start, &end, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Start = clinic.DateOf(start)
	if end != nil {
		d := clinic.DateOf(*end)
		p.End = &d
	}
	return p, nil
}
