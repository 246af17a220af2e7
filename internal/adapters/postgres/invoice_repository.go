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

// InvoiceRepository implements ports.InvoiceRepository on PostgreSQL.
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

var _ ports.InvoiceRepository = (*InvoiceRepository)(nil)

// Create persists an invoice. The unique index on gateway_transaction_id
// backs the no-duplicate-invoice guard at the storage level as well.
func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invoices (
			id, kind, subject_id, user_id, amount,
			is_featured, is_upgrade, payment_method,
			gateway_transaction_id, issued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		inv.ID, string(inv.Kind), inv.SubjectID, inv.UserID, inv.Amount,
		inv.IsFeatured, inv.IsUpgrade, inv.PaymentMethod,
		inv.GatewayTransactionID, inv.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// FindByGatewayTransactionID returns the invoice for a gateway transaction,
// or (nil, nil) when none exists.
func (r *InvoiceRepository) FindByGatewayTransactionID(ctx context.Context, ntpID string) (*models.Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, kind, subject_id, user_id, amount,
		       is_featured, is_upgrade, payment_method,
		       gateway_transaction_id, issued_at
		FROM invoices
		WHERE gateway_transaction_id = $1`,
		ntpID,
	)

	var inv models.Invoice
	var kind string
	err := row.Scan(
		&inv.ID, &kind, &inv.SubjectID, &inv.UserID, &inv.Amount,
		&inv.IsFeatured, &inv.IsUpgrade, &inv.PaymentMethod,
		&inv.GatewayTransactionID, &inv.IssuedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice by gateway transaction id: %w", err)
	}
	inv.Kind = models.InvoiceKind(kind)
	return &inv, nil
}
