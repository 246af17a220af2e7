package memledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listhub/payment-service/internal/adapters/memledger"
	"github.com/listhub/payment-service/internal/domain/models"
	"github.com/listhub/payment-service/internal/domain/ports"
)

func TestLedgerPutGet(t *testing.T) {
	ctx := context.Background()
	ledger := memledger.NewLedger()

	rec := &models.TransactionRecord{
		OrderID:  "PKG_42_7_1700000000",
		Type:     models.PurchaseTypePackage,
		EntityID: 42,
		UserID:   7,
	}
	require.NoError(t, ledger.Put(ctx, rec, ports.LedgerTTL))

	got, err := ledger.Get(ctx, rec.OrderID)
	require.NoError(t, err)
	assert.Equal(t, rec.OrderID, got.OrderID)
	assert.Equal(t, int64(42), got.EntityID)

	_, err = ledger.Get(ctx, "PKG_1_1_1")
	assert.ErrorIs(t, err, ports.ErrLedgerNotFound)
}

func TestLedgerExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	ledger := memledger.NewLedger().WithClock(func() time.Time { return now })

	rec := &models.TransactionRecord{OrderID: "LST_9_3_1700000000", Type: models.PurchaseTypeListing, EntityID: 9}
	require.NoError(t, ledger.Put(ctx, rec, ports.LedgerTTL))

	_, err := ledger.Get(ctx, rec.OrderID)
	require.NoError(t, err)

	// Step past the TTL; the entry must be gone, not stale
	now = now.Add(ports.LedgerTTL + time.Second)
	_, err = ledger.Get(ctx, rec.OrderID)
	assert.ErrorIs(t, err, ports.ErrLedgerNotFound)

	_, err = ledger.FindByEntity(ctx, models.PurchaseTypeListing, 9)
	assert.ErrorIs(t, err, ports.ErrLedgerNotFound)
}

func TestLedgerUpdate(t *testing.T) {
	ctx := context.Background()
	ledger := memledger.NewLedger()

	rec := &models.TransactionRecord{OrderID: "LST_9_3_1700000000", Type: models.PurchaseTypeListing, EntityID: 9}
	require.NoError(t, ledger.Put(ctx, rec, ports.LedgerTTL))

	rec.AuthToken = "token"
	rec.GatewayTransactionID = "ntp-1"
	require.NoError(t, ledger.Update(ctx, rec))

	got, err := ledger.Get(ctx, rec.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "token", got.AuthToken)
	assert.Equal(t, "ntp-1", got.GatewayTransactionID)

	missing := &models.TransactionRecord{OrderID: "LST_999_3_1"}
	assert.ErrorIs(t, ledger.Update(ctx, missing), ports.ErrLedgerNotFound)
}

func TestLedgerFindByEntity(t *testing.T) {
	ctx := context.Background()
	ledger := memledger.NewLedger()

	require.NoError(t, ledger.Put(ctx, &models.TransactionRecord{
		OrderID: "LST_9_3_1700000000", Type: models.PurchaseTypeListing, EntityID: 9,
	}, ports.LedgerTTL))
	require.NoError(t, ledger.Put(ctx, &models.TransactionRecord{
		OrderID: "PKG_9_3_1700000000", Type: models.PurchaseTypePackage, EntityID: 9,
	}, ports.LedgerTTL))

	got, err := ledger.FindByEntity(ctx, models.PurchaseTypeListing, 9)
	require.NoError(t, err)
	assert.Equal(t, "LST_9_3_1700000000", got.OrderID)

	_, err = ledger.FindByEntity(ctx, models.PurchaseTypeListing, 10)
	assert.ErrorIs(t, err, ports.ErrLedgerNotFound)
}
