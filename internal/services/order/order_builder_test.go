package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/listhub/payment-service/internal/adapters/memledger"
	"github.com/listhub/payment-service/internal/domain/models"
	"github.com/listhub/payment-service/internal/domain/ports"
	"github.com/listhub/payment-service/internal/services/order"
)

type MockPackageCatalog struct {
	mock.Mock
}

func (m *MockPackageCatalog) GetPackage(ctx context.Context, packageID int64) (*ports.PackageInfo, error) {
	args := m.Called(ctx, packageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.PackageInfo), args.Error(1)
}

type MockUserProfileRepository struct {
	mock.Mock
}

func (m *MockUserProfileRepository) GetProfile(ctx context.Context, userID int64) (*ports.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.UserProfile), args.Error(1)
}

type MockListingTitleResolver struct {
	mock.Mock
}

func (m *MockListingTitleResolver) ListingTitle(ctx context.Context, listingID int64) (string, error) {
	args := m.Called(ctx, listingID)
	return args.String(0), args.Error(1)
}

func newBuilder(catalog *MockPackageCatalog, users *MockUserProfileRepository, titles *MockListingTitleResolver, ledger *memledger.Ledger) *order.Builder {
	pricing := order.PricingConfig{
		ListingPrice:       decimal.NewFromInt(50),
		FeaturedPrice:      decimal.NewFromInt(30),
		ListingTaxPercent:  decimal.NewFromInt(10),
		FeaturedTaxPercent: decimal.NewFromInt(10),
	}
	var titleResolver ports.ListingTitleResolver
	if titles != nil {
		titleResolver = titles
	}
	return order.NewBuilder(
		pricing,
		order.URLConfig{BaseURL: "https://pay.example.com"},
		"RON",
		catalog, users, titleResolver, ledger, zap.NewNop(),
	).WithClock(func() time.Time {
		return time.Unix(1700000000, 0)
	}).WithSuffix(func() string {
		return "abcd1234"
	})
}

func fullProfile() *ports.UserProfile {
	return &ports.UserProfile{
		ID:         7,
		Email:      "buyer@example.com",
		Phone:      "0712345678",
		FirstName:  "Ana",
		LastName:   "Pop",
		City:       "Cluj",
		State:      "Cluj",
		PostalCode: "400001",
	}
}

func TestBuildPackageOrder(t *testing.T) {
	ctx := context.Background()
	catalog := new(MockPackageCatalog)
	users := new(MockUserProfileRepository)
	ledger := memledger.NewLedger()

	catalog.On("GetPackage", mock.Anything, int64(42)).Return(&ports.PackageInfo{
		ID:         42,
		Name:       "Gold",
		Price:      decimal.NewFromInt(100),
		TaxPercent: decimal.NewFromInt(19),
	}, nil)
	users.On("GetProfile", mock.Anything, int64(7)).Return(fullProfile(), nil)

	built, err := newBuilder(catalog, users, nil, ledger).Build(ctx, models.PurchaseIntent{
		Type:      models.PurchaseTypePackage,
		PackageID: 42,
		UserID:    7,
	})
	require.NoError(t, err)

	assert.Equal(t, "PKG_42_7_1700000000_abcd1234", built.Order.OrderID)
	assert.Equal(t, "Membership Package: Gold", built.Order.Description)
	assert.True(t, built.Order.Amount.Equal(decimal.NewFromInt(119)), "amount %s", built.Order.Amount)
	assert.Equal(t, "RON", built.Order.Currency)
	require.Len(t, built.Order.Products, 1)
	assert.Equal(t, "PKG-42", built.Order.Products[0].Code)
	assert.True(t, built.Order.Products[0].VAT.Equal(decimal.NewFromInt(19)))

	assert.Equal(t, "https://pay.example.com/payments/netopia/ipn?type=package", built.NotifyURL)
	assert.Contains(t, built.RedirectURL, "/payments/netopia/return?")
	assert.Contains(t, built.RedirectURL, "type=package")
	assert.Contains(t, built.RedirectURL, "order_id=PKG_42_7_1700000000_abcd1234")

	// Record must be live in the ledger
	rec, err := ledger.Get(ctx, built.Order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseTypePackage, rec.Type)
	assert.True(t, rec.Amount.Equal(decimal.NewFromInt(119)))
	assert.True(t, rec.TaxAmount.Equal(decimal.NewFromInt(19)))
}

func TestBuildListingOrderBranches(t *testing.T) {
	tests := []struct {
		name         string
		isFeatured   bool
		isUpgrade    bool
		wantAmount   string
		wantTax      string
		wantDesc     string
		wantProducts []string
	}{
		{
			name:         "plain listing",
			wantAmount:   "55",
			wantTax:      "5",
			wantDesc:     "Listing: Sunny Villa",
			wantProducts: []string{"LISTING"},
		},
		{
			name:         "publish with featured",
			isFeatured:   true,
			wantAmount:   "88",
			wantTax:      "8",
			wantDesc:     "Publish Listing with Featured: Sunny Villa",
			wantProducts: []string{"LISTING", "FEATURED"},
		},
		{
			name:         "upgrade to featured",
			isUpgrade:    true,
			wantAmount:   "33",
			wantTax:      "3",
			wantDesc:     "Upgrade to Featured: Sunny Villa",
			wantProducts: []string{"FEATURED-UPGRADE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			users := new(MockUserProfileRepository)
			titles := new(MockListingTitleResolver)
			ledger := memledger.NewLedger()

			users.On("GetProfile", mock.Anything, int64(3)).Return(fullProfile(), nil)
			titles.On("ListingTitle", mock.Anything, int64(9)).Return("Sunny Villa", nil)

			built, err := newBuilder(nil, users, titles, ledger).Build(ctx, models.PurchaseIntent{
				Type:       models.PurchaseTypeListing,
				ListingID:  9,
				UserID:     3,
				IsFeatured: tt.isFeatured,
				IsUpgrade:  tt.isUpgrade,
			})
			require.NoError(t, err)

			wantAmount, _ := decimal.NewFromString(tt.wantAmount)
			wantTax, _ := decimal.NewFromString(tt.wantTax)
			assert.True(t, built.Order.Amount.Equal(wantAmount), "amount %s", built.Order.Amount)
			assert.Equal(t, tt.wantDesc, built.Order.Description)

			var codes []string
			for _, p := range built.Order.Products {
				codes = append(codes, p.Code)
			}
			assert.Equal(t, tt.wantProducts, codes)

			rec, err := ledger.Get(ctx, built.Order.OrderID)
			require.NoError(t, err)
			assert.True(t, rec.TaxAmount.Equal(wantTax), "tax %s", rec.TaxAmount)
			assert.Equal(t, tt.isFeatured, rec.IsFeatured)
			assert.Equal(t, tt.isUpgrade, rec.IsUpgrade)
		})
	}
}

func TestBillingDefaults(t *testing.T) {
	ctx := context.Background()
	catalog := new(MockPackageCatalog)
	users := new(MockUserProfileRepository)
	ledger := memledger.NewLedger()

	catalog.On("GetPackage", mock.Anything, int64(42)).Return(&ports.PackageInfo{
		ID: 42, Name: "Gold", Price: decimal.NewFromInt(100),
	}, nil)
	// Profile with nothing but an email
	users.On("GetProfile", mock.Anything, int64(7)).Return(&ports.UserProfile{
		ID:    7,
		Email: "bare@example.com",
	}, nil)

	built, err := newBuilder(catalog, users, nil, ledger).Build(ctx, models.PurchaseIntent{
		Type:      models.PurchaseTypePackage,
		PackageID: 42,
		UserID:    7,
	})
	require.NoError(t, err)

	billing := built.Order.Billing
	assert.Equal(t, "bare@example.com", billing.Email)
	assert.Equal(t, "0000000000", billing.Phone)
	assert.Equal(t, "User", billing.FirstName)
	assert.Equal(t, "Name", billing.LastName)
	assert.Equal(t, "Bucharest", billing.City)
	assert.Equal(t, "Bucharest", billing.State)
	assert.Equal(t, 642, billing.Country)
	assert.Equal(t, "000000", billing.PostalCode)
	assert.Equal(t, billing, built.Order.Shipping)
}

func TestBuildUnknownPackage(t *testing.T) {
	ctx := context.Background()
	catalog := new(MockPackageCatalog)
	users := new(MockUserProfileRepository)
	ledger := memledger.NewLedger()

	catalog.On("GetPackage", mock.Anything, int64(999)).Return(nil, assert.AnError)

	_, err := newBuilder(catalog, users, nil, ledger).Build(ctx, models.PurchaseIntent{
		Type:      models.PurchaseTypePackage,
		PackageID: 999,
		UserID:    7,
	})
	assert.Error(t, err)
}
