package dose

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Repository persists scheduled doses. Dose history is append-only: rows
// are bulk-inserted at prescribing time and only their status fields ever
// change.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a dose repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// InsertBatch bulk-inserts generated doses in one COPY.
func (r *Repository) InsertBatch(ctx context.Context, doses []Dose) error {
	if len(doses) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(doses))
	for _, d := range doses {
		rows = append(rows, []any{d.ID, d.MedicationID, d.PatientID, d.ScheduledAt, d.Status})
	}

	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"scheduled_doses"},
		[]string{"id", "medication_id", "patient_id", "scheduled_at", "status"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy doses: %w", err)
	}
	if int(n) != len(doses) {
		return fmt.Errorf("copy doses: inserted %d of %d rows", n, len(doses))
	}
	return nil
}

// Get returns a dose by ID, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Dose, error) {
	query := `
		SELECT id, medication_id, patient_id, scheduled_at, status, COALESCE(note, ''), acted_at
		FROM scheduled_doses
		WHERE id = $1
	`
	d := &Dose{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.MedicationID, &d.PatientID, &d.ScheduledAt, &d.Status, &d.Note, &d.ActedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query dose: %w", err)
	}
	return d, nil
}

// UpdateStatus overwrites a dose's status, note and acted-at instant.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status, note string, actedAt time.Time) error {
	query := `
		UPDATE scheduled_doses
		SET status = $2, note = NULLIF($3, ''), acted_at = $4
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, status, note, actedAt)
	if err != nil {
		return fmt.Errorf("update dose: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update dose: %s not found", id)
	}
	return nil
}

// MarkMissedBefore flips pending doses scheduled strictly before cutoff to
// missed. One guarded UPDATE, so concurrent sweeps cannot double-count.
func (r *Repository) MarkMissedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		UPDATE scheduled_doses
		SET status = $1
		WHERE status = $2
		  AND scheduled_at < $3
		RETURNING id
	`
	rows, err := r.pool.Query(ctx, query, StatusMissed, StatusPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("mark missed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan missed id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListForPatientSince returns a patient's doses scheduled at or after
// since, oldest first.
func (r *Repository) ListForPatientSince(ctx context.Context, patientID string, since time.Time) ([]Dose, error) {
	query := `
		SELECT id, medication_id, patient_id, scheduled_at, status, COALESCE(note, ''), acted_at
		FROM scheduled_doses
		WHERE patient_id = $1
		  AND scheduled_at >= $2
		ORDER BY scheduled_at ASC
	`
	rows, err := r.pool.Query(ctx, query, patientID, since)
	if err != nil {
		return nil, fmt.Errorf("query doses: %w", err)
	}
	defer rows.Close()

	var out []Dose
	for rows.Next() {
		d := Dose{}
		err := rows.Scan(&d.ID, &d.MedicationID, &d.PatientID, &d.ScheduledAt, &d.Status, &d.Note, &d.ActedAt)
		if err != nil {
			return nil, fmt.Errorf("scan dose: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MissedCounts returns how many doses a patient missed since the given
// instant, and how many of those belong to critical medications.
func (r *Repository) MissedCounts(ctx context.Context, patientID string, since time.Time) (missed, critical int, err error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE m.critical)
		FROM scheduled_doses d
		JOIN medications m ON m.id = d.medication_id
		WHERE d.patient_id = $1
		  AND d.status = $2
		  AND d.scheduled_at >= $3
	`
	err = r.pool.QueryRow(ctx, query, patientID, StatusMissed, since).Scan(&missed, &critical)
	if err != nil {
		return 0, 0, fmt.Errorf("count missed: %w", err)
	}
	return missed, critical, nil
}

// ListForPatientOn returns a patient's doses within [from, to), oldest
// first, for the daily schedule view.
func (r *Repository) ListForPatientOn(ctx context.Context, patientID string, from, to time.Time) ([]Dose, error) {
	query := `
		SELECT id, medication_id, patient_id, scheduled_at, status, COALESCE(note, ''), acted_at
		FROM scheduled_doses
		WHERE patient_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		ORDER BY scheduled_at ASC
	`
	rows, err := r.pool.Query(ctx, query, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query doses: %w", err)
	}
	defer rows.Close()

	var out []Dose
	for rows.Next() {
		d := Dose{}
		err := rows.Scan(&d.ID, &d.MedicationID, &d.PatientID, &d.ScheduledAt, &d.Status, &d.Note, &d.ActedAt)
		if err != nil {
			return nil, fmt.Errorf("scan dose: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
