package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/listhub/payment-service/internal/domain/models"
	"github.com/listhub/payment-service/internal/domain/ports"
	"github.com/listhub/payment-service/pkg/observability"
)

// ApplyResult says what a completion attempt did.
type ApplyResult int

const (
	// ApplyNotApproved means the outcome did not permit the side effect.
	ApplyNotApproved ApplyResult = iota
	// ApplyApplied means the side effect and invoice were applied.
	ApplyApplied
	// ApplyDuplicate means the subject's marker already carried this
	// transaction id; nothing was touched.
	ApplyDuplicate
)

// Completer applies the purchase side effect for an approved payment exactly
// once per gateway transaction. All three entry points (start, browser
// return, IPN) converge here.
type Completer struct {
	memberships ports.MembershipService
	listings    ports.ListingService
	invoices    ports.InvoiceRepository
	markers     ports.CompletionMarkerRepository
	policy      ports.ListingPublishPolicy
	currency    string
	logger      *zap.Logger

	now func() time.Time
}

// NewCompleter creates a completion applier.
func NewCompleter(
	memberships ports.MembershipService,
	listings ports.ListingService,
	invoices ports.InvoiceRepository,
	markers ports.CompletionMarkerRepository,
	policy ports.ListingPublishPolicy,
	currency string,
	logger *zap.Logger,
) *Completer {
	return &Completer{
		memberships: memberships,
		listings:    listings,
		invoices:    invoices,
		markers:     markers,
		policy:      policy,
		currency:    currency,
		logger:      logger,
		now:         time.Now,
	}
}

// AlreadyApplied reports whether the subject's marker already carries this
// gateway transaction id. The notification path checks this before paying
// for a status fetch.
func (c *Completer) AlreadyApplied(ctx context.Context, rec *models.TransactionRecord, ntpID string) (bool, error) {
	subject := models.SubjectFor(rec.Type, rec.EntityID, rec.UserID)
	last, err := c.markers.LastTransactionID(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("failed to read completion marker: %w", err)
	}
	return last != "" && last == ntpID, nil
}

// Apply checks the outcome and, when approved and not yet applied for this
// subject, grants the purchase, writes the invoice and records the marker.
// The marker is read before and written after the side effect, so a crash in
// between is retried by the next notification rather than lost. The invoice
// existence check is the second guard: no gateway transaction ever gets two
// invoices.
func (c *Completer) Apply(ctx context.Context, rec *models.TransactionRecord, outcome models.PaymentOutcome) (ApplyResult, error) {
	if !outcome.Approved() {
		c.logger.Info("payment not approved, skipping completion",
			zap.String("order_id", rec.OrderID),
			zap.Int("status", outcome.StatusCode),
			zap.String("approval_code", outcome.ApprovalCode),
		)
		return ApplyNotApproved, nil
	}

	subject := models.SubjectFor(rec.Type, rec.EntityID, rec.UserID)

	last, err := c.markers.LastTransactionID(ctx, subject)
	if err != nil {
		return ApplyNotApproved, fmt.Errorf("failed to read completion marker: %w", err)
	}
	if last != "" && last == outcome.GatewayTransactionID {
		c.logger.Info("completion already applied, suppressing duplicate",
			zap.String("order_id", rec.OrderID),
			zap.String("ntp_id", outcome.GatewayTransactionID),
		)
		observability.RecordCompletionSuppressed(string(rec.Type), "marker")
		return ApplyDuplicate, nil
	}

	if err := c.applySideEffect(ctx, rec); err != nil {
		return ApplyNotApproved, err
	}

	if err := c.writeInvoice(ctx, rec, outcome); err != nil {
		return ApplyNotApproved, err
	}

	changed, err := c.markers.SetLastTransactionID(ctx, subject, outcome.GatewayTransactionID)
	if err != nil {
		return ApplyNotApproved, fmt.Errorf("failed to record completion marker: %w", err)
	}
	if !changed {
		// Lost a race with a concurrent completion for the same transaction.
		observability.RecordCompletionSuppressed(string(rec.Type), "marker")
		return ApplyDuplicate, nil
	}

	amount, _ := rec.Amount.Float64()
	observability.RecordCompletionApplied(string(rec.Type), c.currency, amount)

	c.logger.Info("completion applied",
		zap.String("order_id", rec.OrderID),
		zap.String("type", string(rec.Type)),
		zap.String("ntp_id", outcome.GatewayTransactionID),
		zap.Int64("entity_id", rec.EntityID),
		zap.Int64("user_id", rec.UserID),
	)

	return ApplyApplied, nil
}

func (c *Completer) applySideEffect(ctx context.Context, rec *models.TransactionRecord) error {
	switch rec.Type {
	case models.PurchaseTypePackage:
		if err := c.memberships.GrantMembership(ctx, rec.UserID, rec.EntityID); err != nil {
			return fmt.Errorf("failed to grant membership: %w", err)
		}
	case models.PurchaseTypeListing:
		if err := c.listings.MarkPaid(ctx, rec.EntityID, c.policy); err != nil {
			return fmt.Errorf("failed to mark listing paid: %w", err)
		}
		if rec.IsFeatured || rec.IsUpgrade {
			if err := c.listings.MarkFeatured(ctx, rec.EntityID); err != nil {
				return fmt.Errorf("failed to mark listing featured: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown purchase type %q", rec.Type)
	}
	return nil
}

func (c *Completer) writeInvoice(ctx context.Context, rec *models.TransactionRecord, outcome models.PaymentOutcome) error {
	existing, err := c.invoices.FindByGatewayTransactionID(ctx, outcome.GatewayTransactionID)
	if err != nil {
		return fmt.Errorf("failed to look up invoice: %w", err)
	}
	if existing != nil {
		observability.RecordCompletionSuppressed(string(rec.Type), "invoice")
		c.logger.Info("invoice already exists for transaction",
			zap.String("ntp_id", outcome.GatewayTransactionID),
			zap.String("invoice_id", existing.ID),
		)
		return nil
	}

	inv := &models.Invoice{
		ID:                   uuid.NewString(),
		Kind:                 invoiceKindFor(rec),
		SubjectID:            rec.EntityID,
		UserID:               rec.UserID,
		Amount:               rec.Amount,
		IsFeatured:           rec.IsFeatured,
		IsUpgrade:            rec.IsUpgrade,
		PaymentMethod:        models.PaymentMethodName,
		GatewayTransactionID: outcome.GatewayTransactionID,
		IssuedAt:             c.now(),
	}
	if err := c.invoices.Create(ctx, inv); err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func invoiceKindFor(rec *models.TransactionRecord) models.InvoiceKind {
	if rec.Type == models.PurchaseTypePackage {
		return models.InvoiceKindPackage
	}
	switch {
	case rec.IsUpgrade:
		return models.InvoiceKindUpgradeFeatured
	case rec.IsFeatured:
		return models.InvoiceKindListingFeatured
	default:
		return models.InvoiceKindListing
	}
}
