package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/listhub/payment-service/internal/domain/models"
	"github.com/listhub/payment-service/internal/domain/ports"
)

// MarkerRepository implements ports.CompletionMarkerRepository on
// PostgreSQL. One row per subject holds the last applied transaction id.
type MarkerRepository struct {
	pool *pgxpool.Pool
}

// NewMarkerRepository creates a new completion-marker repository
func NewMarkerRepository(pool *pgxpool.Pool) *MarkerRepository {
	return &MarkerRepository{pool: pool}
}

var _ ports.CompletionMarkerRepository = (*MarkerRepository)(nil)

// LastTransactionID returns the subject's marker, or "" when none is set.
func (r *MarkerRepository) LastTransactionID(ctx context.Context, subject models.Subject) (string, error) {
	var ntpID string
	err := r.pool.QueryRow(ctx, `
		SELECT last_transaction_id
		FROM completion_markers
		WHERE subject_kind = $1 AND subject_id = $2`,
		subject.Kind, subject.ID,
	).Scan(&ntpID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load completion marker: %w", err)
	}
	return ntpID, nil
}

// SetLastTransactionID upserts the subject's marker as a compare-and-set:
// the row only changes when the stored id differs, and the return value
// reports whether this call won the write.
func (r *MarkerRepository) SetLastTransactionID(ctx context.Context, subject models.Subject, ntpID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO completion_markers (subject_kind, subject_id, last_transaction_id, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (subject_kind, subject_id) DO UPDATE
		SET last_transaction_id = EXCLUDED.last_transaction_id,
		    updated_at = now()
		WHERE completion_markers.last_transaction_id IS DISTINCT FROM EXCLUDED.last_transaction_id`,
		subject.Kind, subject.ID, ntpID,
	)
	if err != nil {
		return false, fmt.Errorf("set completion marker: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
