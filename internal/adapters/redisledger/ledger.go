package redisledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/listhub/payment-service/internal/domain/models"
	"github.com/listhub/payment-service/internal/domain/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// keyPrefix namespaces ledger entries in the shared redis keyspace.
const keyPrefix = "payments:txn:"

// Ledger implements ports.TransactionLedger on redis. Entries are JSON
// values stored with SET EX; redis expiry is the TTL horizon that makes
// stale completion attempts fail with a not-found outcome.
type Ledger struct {
	client *redis.Client
	logger *zap.Logger
}

// NewLedger creates a redis-backed transaction ledger.
func NewLedger(client *redis.Client, logger *zap.Logger) *Ledger {
	return &Ledger{client: client, logger: logger}
}

var _ ports.TransactionLedger = (*Ledger)(nil)

func key(orderID string) string {
	return keyPrefix + orderID
}

// Put stores a new record with the given TTL.
func (l *Ledger) Put(ctx context.Context, rec *models.TransactionRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ledger record: %w", err)
	}

	if err := l.client.Set(ctx, key(rec.OrderID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store ledger record %s: %w", rec.OrderID, err)
	}

	l.logger.Debug("ledger record stored",
		zap.String("order_id", rec.OrderID),
		zap.Duration("ttl", ttl),
	)
	return nil
}

// Get loads a live record, or ports.ErrLedgerNotFound.
func (l *Ledger) Get(ctx context.Context, orderID string) (*models.TransactionRecord, error) {
	raw, err := l.client.Get(ctx, key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger record %s: %w", orderID, err)
	}

	var rec models.TransactionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode ledger record %s: %w", orderID, err)
	}
	return &rec, nil
}

// Update rewrites an existing record and resets its TTL.
func (l *Ledger) Update(ctx context.Context, rec *models.TransactionRecord) error {
	exists, err := l.client.Exists(ctx, key(rec.OrderID)).Result()
	if err != nil {
		return fmt.Errorf("check ledger record %s: %w", rec.OrderID, err)
	}
	if exists == 0 {
		return ports.ErrLedgerNotFound
	}
	return l.Put(ctx, rec, ports.LedgerTTL)
}

// FindByEntity scans live records for one matching the purchase type and
// entity id. Used only when a return redirect lost its order id; it assumes
// at most one pending transaction per entity and is logged as a fallback.
func (l *Ledger) FindByEntity(ctx context.Context, typ models.PurchaseType, entityID int64) (*models.TransactionRecord, error) {
	l.logger.Warn("recovering order id by ledger scan",
		zap.String("type", string(typ)),
		zap.Int64("entity_id", entityID),
	)

	iter := l.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := l.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("scan ledger records: %w", err)
		}

		var rec models.TransactionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			l.logger.Warn("skipping undecodable ledger record", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		if rec.Type == typ && rec.EntityID == entityID {
			return &rec, nil
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger records: %w", err)
	}

	return nil, ports.ErrLedgerNotFound
}
