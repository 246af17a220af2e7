package memledger

import (
	"context"
	"sync"
	"time"

	"github.com/listhub/payment-service/internal/domain/models"
	"github.com/listhub/payment-service/internal/domain/ports"
)

// Ledger is an in-process ports.TransactionLedger for tests and single-node
// development. Expiry is checked lazily on read.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]entry

	// clock is swappable so tests can force expiry
	clock func() time.Time
}

type entry struct {
	rec       models.TransactionRecord
	expiresAt time.Time
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[string]entry),
		clock:   time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

var _ ports.TransactionLedger = (*Ledger)(nil)

func (l *Ledger) Put(_ context.Context, rec *models.TransactionRecord, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[rec.OrderID] = entry{rec: *rec, expiresAt: l.clock().Add(ttl)}
	return nil
}

func (l *Ledger) Get(_ context.Context, orderID string) (*models.TransactionRecord, error) {
	l.mu.RLock()
	e, ok := l.entries[orderID]
	l.mu.RUnlock()

	if !ok || l.clock().After(e.expiresAt) {
		return nil, ports.ErrLedgerNotFound
	}
	rec := e.rec
	return &rec, nil
}

func (l *Ledger) Update(ctx context.Context, rec *models.TransactionRecord) error {
	if _, err := l.Get(ctx, rec.OrderID); err != nil {
		return err
	}
	return l.Put(ctx, rec, ports.LedgerTTL)
}

func (l *Ledger) FindByEntity(_ context.Context, typ models.PurchaseType, entityID int64) (*models.TransactionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.clock()
	for _, e := range l.entries {
		if now.After(e.expiresAt) {
			continue
		}
		if e.rec.Type == typ && e.rec.EntityID == entityID {
			rec := e.rec
			return &rec, nil
		}
	}
	return nil, ports.ErrLedgerNotFound
}
