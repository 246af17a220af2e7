package ports

import (
	"context"

	"github.com/listhub/payment-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// MembershipService grants a membership package to a user. Invoked by the
// completion applier; internals are out of the orchestrator's scope.
type MembershipService interface {
	GrantMembership(ctx context.Context, userID, packageID int64) error
}

// ListingPublishPolicy controls what happens to a paid listing.
type ListingPublishPolicy struct {
	// AdminApproval forces paid listings into a pending state for review.
	AdminApproval bool
	// PerListingSubmission is true when paid submission is billed per
	// listing; only then does a paid listing publish immediately.
	PerListingSubmission bool
}

// ListingService applies listing side effects after an approved payment.
type ListingService interface {
	// MarkPaid flags the listing's payment as settled and transitions it
	// to published or pending per the policy.
	MarkPaid(ctx context.Context, listingID int64, policy ListingPublishPolicy) error

	// MarkFeatured flags the listing as featured.
	MarkFeatured(ctx context.Context, listingID int64) error
}

// InvoiceRepository persists invoices. FindByGatewayTransactionID backs the
// second idempotency guard: no two invoices for one gateway transaction.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *models.Invoice) error
	FindByGatewayTransactionID(ctx context.Context, ntpID string) (*models.Invoice, error)
}

// CompletionMarkerRepository stores, per subject, the id of the last gateway
// transaction whose side effect was applied. The marker is read before and
// written after the side effect; SetLastTransactionID is a compare-and-set
// that reports whether the marker actually changed.
type CompletionMarkerRepository interface {
	LastTransactionID(ctx context.Context, subject models.Subject) (string, error)
	SetLastTransactionID(ctx context.Context, subject models.Subject, ntpID string) (bool, error)
}

// PackageInfo is the catalog entry for a membership package.
type PackageInfo struct {
	ID         int64
	Name       string
	Price      decimal.Decimal
	TaxPercent decimal.Decimal
}

// PackageCatalog resolves membership packages for the order builder.
type PackageCatalog interface {
	GetPackage(ctx context.Context, packageID int64) (*PackageInfo, error)
}

// UserProfile is the billing-relevant slice of a user account.
type UserProfile struct {
	ID         int64
	Email      string
	Phone      string
	FirstName  string
	LastName   string
	City       string
	State      string
	PostalCode string
}

// UserProfileRepository resolves user billing data for the order builder.
type UserProfileRepository interface {
	GetProfile(ctx context.Context, userID int64) (*UserProfile, error)
}

// ListingTitleResolver names a listing for order descriptions. Optional:
// builders fall back to a generic description when nil or failing.
type ListingTitleResolver interface {
	ListingTitle(ctx context.Context, listingID int64) (string, error)
}
