package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/listhub/payment-service/internal/domain/ports"
	"go.uber.org/zap"
)

// Store implements the fulfillment-side collaborator ports over the shared
// application schema: membership grants, listing state transitions, the
// package catalog, and user billing profiles. The orchestrator treats these
// as opaque capabilities; this is the service's own thin implementation.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates a new fulfillment store
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

var (
	_ ports.MembershipService     = (*Store)(nil)
	_ ports.ListingService        = (*Store)(nil)
	_ ports.PackageCatalog        = (*Store)(nil)
	_ ports.UserProfileRepository = (*Store)(nil)
	_ ports.ListingTitleResolver  = (*Store)(nil)
)

// GrantMembership assigns the package to the user, replacing any previous
// membership.
func (s *Store) GrantMembership(ctx context.Context, userID, packageID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_memberships (user_id, package_id, granted_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET package_id = EXCLUDED.package_id,
		    granted_at = now()`,
		userID, packageID,
	)
	if err != nil {
		return fmt.Errorf("grant membership: %w", err)
	}

	s.logger.Info("membership granted",
		zap.Int64("user_id", userID),
		zap.Int64("package_id", packageID),
	)
	return nil
}

// MarkPaid settles the listing's payment and moves it to published or
// pending depending on the approval policy.
func (s *Store) MarkPaid(ctx context.Context, listingID int64, policy ports.ListingPublishPolicy) error {
	status := "pending"
	if !policy.AdminApproval && policy.PerListingSubmission {
		status = "published"
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE listings
		SET payment_status = 'paid',
		    status = $2,
		    updated_at = now()
		WHERE id = $1`,
		listingID, status,
	)
	if err != nil {
		return fmt.Errorf("mark listing paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark listing paid: listing %d not found", listingID)
	}

	s.logger.Info("listing marked paid",
		zap.Int64("listing_id", listingID),
		zap.String("status", status),
	)
	return nil
}

// MarkFeatured flags the listing as featured.
func (s *Store) MarkFeatured(ctx context.Context, listingID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE listings
		SET is_featured = TRUE,
		    updated_at = now()
		WHERE id = $1`,
		listingID,
	)
	if err != nil {
		return fmt.Errorf("mark listing featured: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark listing featured: listing %d not found", listingID)
	}
	return nil
}

// GetPackage loads a membership package from the catalog.
func (s *Store) GetPackage(ctx context.Context, packageID int64) (*ports.PackageInfo, error) {
	var info ports.PackageInfo
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, price, tax_percent
		FROM membership_packages
		WHERE id = $1`,
		packageID,
	).Scan(&info.ID, &info.Name, &info.Price, &info.TaxPercent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("membership package %d not found", packageID)
	}
	if err != nil {
		return nil, fmt.Errorf("load membership package: %w", err)
	}
	return &info, nil
}

// GetProfile loads the billing-relevant user fields.
func (s *Store) GetProfile(ctx context.Context, userID int64) (*ports.UserProfile, error) {
	var p ports.UserProfile
	err := s.pool.QueryRow(ctx, `
		SELECT id, email,
		       COALESCE(phone, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
		       COALESCE(city, ''), COALESCE(state, ''), COALESCE(postal_code, '')
		FROM users
		WHERE id = $1`,
		userID,
	).Scan(&p.ID, &p.Email, &p.Phone, &p.FirstName, &p.LastName, &p.City, &p.State, &p.PostalCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load user profile: %w", err)
	}
	return &p, nil
}

// ListingTitle returns the title of a listing for order descriptions.
func (s *Store) ListingTitle(ctx context.Context, listingID int64) (string, error) {
	var title string
	err := s.pool.QueryRow(ctx, `SELECT title FROM listings WHERE id = $1`, listingID).Scan(&title)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("listing %d not found", listingID)
	}
	if err != nil {
		return "", fmt.Errorf("load listing title: %w", err)
	}
	return title, nil
}
