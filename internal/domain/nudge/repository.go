package nudge

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Repository persists the nudge log.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a nudge repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// Create inserts a nudge log row.
func (r *Repository) Create(ctx context.Context, n *Nudge) error {
	query := `
		INSERT INTO nudge_logs (id, patient_id, dose_id, channel, message, status)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		n.ID, n.PatientID, n.DoseID, n.Channel, n.Message, n.Status,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert nudge: %w", err)
	}
	return nil
}

// MarkDelivery records a delivery attempt outcome.
func (r *Repository) MarkDelivery(ctx context.Context, id string, status Status, at time.Time) error {
	query := `
		UPDATE nudge_logs
		SET status = $2, sent_at = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, status, at)
	if err != nil {
		return fmt.Errorf("update nudge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update nudge: %s not found", id)
	}
	return nil
}

// ListForPatient returns a patient's nudges, newest first.
func (r *Repository) ListForPatient(ctx context.Context, patientID string, limit int) ([]Nudge, error) {
	query := `
		SELECT id, patient_id, COALESCE(dose_id, ''), channel, message, status, created_at, sent_at
		FROM nudge_logs
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query nudges: %w", err)
	}
	defer rows.Close()

	var out []Nudge
	for rows.Next() {
		n := Nudge{}
		err := rows.Scan(&n.ID, &n.PatientID, &n.DoseID, &n.Channel, &n.Message, &n.Status, &n.CreatedAt, &n.SentAt)
		if err != nil {
			return nil, fmt.Errorf("scan nudge: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
