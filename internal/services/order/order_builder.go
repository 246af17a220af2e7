package order

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/listhub/payment-service/internal/domain/models"
	"github.com/listhub/payment-service/internal/domain/ports"
	pkgerrors "github.com/listhub/payment-service/pkg/errors"
)

const (
	countryRomania    = 642
	defaultPhone      = "0000000000"
	defaultFirstName  = "User"
	defaultLastName   = "Name"
	defaultCity       = "Bucharest"
	defaultState      = "Bucharest"
	defaultPostalCode = "000000"
)

var oneHundred = decimal.NewFromInt(100)

// PricingConfig holds the listing prices and tax percentages used by the
// builder. Membership package prices come from the catalog instead.
type PricingConfig struct {
	ListingPrice       decimal.Decimal
	FeaturedPrice      decimal.Decimal
	ListingTaxPercent  decimal.Decimal
	FeaturedTaxPercent decimal.Decimal
}

// URLConfig holds the externally reachable endpoints embedded in each order.
type URLConfig struct {
	// BaseURL is this service's public origin, e.g. https://pay.example.com
	BaseURL string
}

// Built is everything a start-payment call needs for one purchase: the
// ledger record (already stored), the gateway order payload, and the
// callback URLs carrying the purchase type and order id.
type Built struct {
	Record      *models.TransactionRecord
	Order       ports.OrderData
	NotifyURL   string
	RedirectURL string
}

// Builder assembles gateway orders from purchase intents: it prices the
// purchase, snapshots billing data, generates the order id and writes the
// in-flight record to the ledger.
type Builder struct {
	pricing  PricingConfig
	urls     URLConfig
	currency string
	packages ports.PackageCatalog
	users    ports.UserProfileRepository
	titles   ports.ListingTitleResolver
	ledger   ports.TransactionLedger
	logger   *zap.Logger

	now    func() time.Time
	suffix func() string
}

// NewBuilder creates an order builder.
func NewBuilder(
	pricing PricingConfig,
	urls URLConfig,
	currency string,
	packages ports.PackageCatalog,
	users ports.UserProfileRepository,
	titles ports.ListingTitleResolver,
	ledger ports.TransactionLedger,
	logger *zap.Logger,
) *Builder {
	return &Builder{
		pricing:  pricing,
		urls:     urls,
		currency: currency,
		packages: packages,
		users:    users,
		titles:   titles,
		ledger:   ledger,
		logger:   logger,
		now:      time.Now,
		suffix:   func() string { return uuid.NewString()[:8] },
	}
}

// WithClock overrides the time source. Test hook.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithSuffix overrides the order-id suffix source. Test hook.
func (b *Builder) WithSuffix(suffix func() string) *Builder {
	b.suffix = suffix
	return b
}

// Build prices the intent, writes the ledger record and returns the order
// payload for the gateway.
func (b *Builder) Build(ctx context.Context, intent models.PurchaseIntent) (*Built, error) {
	switch intent.Type {
	case models.PurchaseTypePackage:
		return b.buildPackage(ctx, intent)
	case models.PurchaseTypeListing:
		return b.buildListing(ctx, intent)
	default:
		return nil, pkgerrors.New(pkgerrors.CategoryInvalidInput, fmt.Sprintf("unknown purchase type %q", intent.Type))
	}
}

func (b *Builder) buildPackage(ctx context.Context, intent models.PurchaseIntent) (*Built, error) {
	pkg, err := b.packages.GetPackage(ctx, intent.PackageID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CategoryInvalidInput, fmt.Sprintf("membership package %d not found", intent.PackageID))
	}

	tax := taxOf(pkg.Price, pkg.TaxPercent)
	total := pkg.Price.Add(tax).Round(2)

	orderID := models.NewOrderID(models.OrderPrefixPackage, intent.PackageID, intent.UserID, b.now(), b.suffix())

	billing, err := b.billingFor(ctx, intent.UserID)
	if err != nil {
		return nil, err
	}

	rec := &models.TransactionRecord{
		OrderID:   orderID,
		Type:      models.PurchaseTypePackage,
		EntityID:  intent.PackageID,
		UserID:    intent.UserID,
		Amount:    total,
		TaxAmount: tax,
		CreatedAt: b.now(),
	}
	if err := b.ledger.Put(ctx, rec, ports.LedgerTTL); err != nil {
		return nil, fmt.Errorf("failed to store transaction record: %w", err)
	}

	b.logger.Info("Order built",
		zap.String("order_id", orderID),
		zap.String("type", string(models.PurchaseTypePackage)),
		zap.String("amount", total.String()),
	)

	return &Built{
		Record: rec,
		Order: ports.OrderData{
			OrderID:     orderID,
			Description: "Membership Package: " + pkg.Name,
			Amount:      total,
			Currency:    b.currency,
			Billing:     billing,
			Shipping:    billing,
			Products: []models.Product{
				{
					Name:     pkg.Name,
					Code:     fmt.Sprintf("PKG-%d", pkg.ID),
					Category: "Membership",
					Price:    total,
					VAT:      tax,
				},
			},
		},
		NotifyURL: b.notifyURL(models.PurchaseTypePackage),
		RedirectURL: b.redirectURL(models.PurchaseTypePackage, url.Values{
			"package_id": {fmt.Sprint(intent.PackageID)},
			"order_id":   {orderID},
		}),
	}, nil
}

func (b *Builder) buildListing(ctx context.Context, intent models.PurchaseIntent) (*Built, error) {
	listingTax := taxOf(b.pricing.ListingPrice, b.pricing.ListingTaxPercent)
	featuredTax := taxOf(b.pricing.FeaturedPrice, b.pricing.FeaturedTaxPercent)

	var total, taxes decimal.Decimal
	var description string
	var products []models.Product

	switch {
	case intent.IsUpgrade:
		total = b.pricing.FeaturedPrice.Add(featuredTax)
		taxes = featuredTax
		description = "Upgrade to Featured"
		products = []models.Product{
			{Name: "Featured Listing Upgrade", Code: "FEATURED-UPGRADE", Category: "Listing", Price: b.pricing.FeaturedPrice.Round(2), VAT: featuredTax},
		}
	case intent.IsFeatured:
		total = b.pricing.ListingPrice.Add(listingTax).Add(b.pricing.FeaturedPrice).Add(featuredTax)
		taxes = listingTax.Add(featuredTax)
		description = "Publish Listing with Featured"
		products = []models.Product{
			{Name: "Property Listing", Code: "LISTING", Category: "Listing", Price: b.pricing.ListingPrice.Round(2), VAT: listingTax},
			{Name: "Featured Listing", Code: "FEATURED", Category: "Listing", Price: b.pricing.FeaturedPrice.Round(2), VAT: featuredTax},
		}
	default:
		total = b.pricing.ListingPrice.Add(listingTax)
		taxes = listingTax
		description = "Listing"
		products = []models.Product{
			{Name: "Property Listing", Code: "LISTING", Category: "Listing", Price: b.pricing.ListingPrice.Round(2), VAT: listingTax},
		}
	}
	total = total.Round(2)

	orderID := models.NewOrderID(models.OrderPrefixListing, intent.ListingID, intent.UserID, b.now(), b.suffix())

	billing, err := b.billingFor(ctx, intent.UserID)
	if err != nil {
		return nil, err
	}

	title := b.listingTitle(ctx, intent.ListingID)

	rec := &models.TransactionRecord{
		OrderID:    orderID,
		Type:       models.PurchaseTypeListing,
		EntityID:   intent.ListingID,
		UserID:     intent.UserID,
		Amount:     total,
		TaxAmount:  taxes,
		IsFeatured: intent.IsFeatured,
		IsUpgrade:  intent.IsUpgrade,
		CreatedAt:  b.now(),
	}
	if err := b.ledger.Put(ctx, rec, ports.LedgerTTL); err != nil {
		return nil, fmt.Errorf("failed to store transaction record: %w", err)
	}

	b.logger.Info("Order built",
		zap.String("order_id", orderID),
		zap.String("type", string(models.PurchaseTypeListing)),
		zap.String("amount", total.String()),
		zap.Bool("is_featured", intent.IsFeatured),
		zap.Bool("is_upgrade", intent.IsUpgrade),
	)

	return &Built{
		Record: rec,
		Order: ports.OrderData{
			OrderID:     orderID,
			Description: description + ": " + title,
			Amount:      total,
			Currency:    b.currency,
			Billing:     billing,
			Shipping:    billing,
			Products:    products,
		},
		NotifyURL: b.notifyURL(models.PurchaseTypeListing),
		RedirectURL: b.redirectURL(models.PurchaseTypeListing, url.Values{
			"listing_id":  {fmt.Sprint(intent.ListingID)},
			"is_featured": {boolFlag(intent.IsFeatured)},
			"is_upgrade":  {boolFlag(intent.IsUpgrade)},
			"order_id":    {orderID},
		}),
	}, nil
}

// billingFor snapshots the user's billing data, substituting placeholders
// for anything the profile lacks. The gateway rejects empty billing fields.
func (b *Builder) billingFor(ctx context.Context, userID int64) (models.BillingInfo, error) {
	profile, err := b.users.GetProfile(ctx, userID)
	if err != nil {
		return models.BillingInfo{}, pkgerrors.New(pkgerrors.CategoryInvalidInput, fmt.Sprintf("user %d not found", userID))
	}

	return models.BillingInfo{
		Email:      profile.Email,
		Phone:      orDefault(profile.Phone, defaultPhone),
		FirstName:  orDefault(profile.FirstName, defaultFirstName),
		LastName:   orDefault(profile.LastName, defaultLastName),
		City:       orDefault(profile.City, defaultCity),
		State:      orDefault(profile.State, defaultState),
		Country:    countryRomania,
		PostalCode: orDefault(profile.PostalCode, defaultPostalCode),
	}, nil
}

func (b *Builder) listingTitle(ctx context.Context, listingID int64) string {
	if b.titles == nil {
		return fmt.Sprintf("Listing %d", listingID)
	}
	title, err := b.titles.ListingTitle(ctx, listingID)
	if err != nil || title == "" {
		return fmt.Sprintf("Listing %d", listingID)
	}
	return title
}

func (b *Builder) notifyURL(typ models.PurchaseType) string {
	return fmt.Sprintf("%s/payments/netopia/ipn?type=%s", b.urls.BaseURL, typ)
}

func (b *Builder) redirectURL(typ models.PurchaseType, params url.Values) string {
	params.Set("type", string(typ))
	return fmt.Sprintf("%s/payments/netopia/return?%s", b.urls.BaseURL, params.Encode())
}

func taxOf(price, percent decimal.Decimal) decimal.Decimal {
	if price.IsZero() || percent.IsZero() {
		return decimal.Zero
	}
	return percent.Div(oneHundred).Mul(price).Round(2)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
