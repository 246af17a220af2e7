package ports

import (
	"context"
	"errors"
	"time"

	"github.com/listhub/payment-service/internal/domain/models"
)

// ErrLedgerNotFound is returned when an order id has no live ledger entry,
// either because it never existed or because its TTL elapsed.
var ErrLedgerNotFound = errors.New("transaction not found in ledger")

// LedgerTTL is how long an in-flight transaction stays completable.
const LedgerTTL = time.Hour

// TransactionLedger is the ephemeral store of in-flight transaction context,
// keyed by order id. Entries expire after LedgerTTL; a completion attempt
// for an expired entry must fail, never silently succeed.
type TransactionLedger interface {
	// Put stores a new record with the given TTL.
	Put(ctx context.Context, rec *models.TransactionRecord, ttl time.Duration) error

	// Get loads a live record, or ErrLedgerNotFound.
	Get(ctx context.Context, orderID string) (*models.TransactionRecord, error)

	// Update rewrites an existing record, resetting its TTL to LedgerTTL.
	// Only the orchestrator calls this, once, when a challenge is issued.
	Update(ctx context.Context, rec *models.TransactionRecord) error

	// FindByEntity scans live records for one matching the purchase type
	// and entity id. Last-resort recovery for return redirects that lost
	// the order id; assumes at most one pending transaction per entity.
	FindByEntity(ctx context.Context, typ models.PurchaseType, entityID int64) (*models.TransactionRecord, error)
}
