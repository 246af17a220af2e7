package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseType discriminates what an order is paying for
type PurchaseType string

const (
	PurchaseTypePackage PurchaseType = "package"
	PurchaseTypeListing PurchaseType = "listing"
)

// Order id prefixes, the first segment of every order id
const (
	OrderPrefixPackage = "PKG"
	OrderPrefixListing = "LST"
)

// Gateway payment status codes (provider-defined)
const (
	PaymentStatusNew       = 1
	PaymentStatusPending   = 2
	PaymentStatusPaid      = 3
	PaymentStatusCancelled = 4
	PaymentStatusRejected  = 5
)

// ApprovalCodeOK is the provider's approval code for a fully approved payment
const ApprovalCodeOK = "00"

// PurchaseIntent describes what the caller is buying. Exactly one of the
// two shapes is valid: a membership package, or a listing publish/upgrade.
type PurchaseIntent struct {
	Type       PurchaseType
	PackageID  int64 // set when Type == PurchaseTypePackage
	ListingID  int64 // set when Type == PurchaseTypeListing
	UserID     int64
	IsFeatured bool
	IsUpgrade  bool
}

// EntityID returns the package or listing id, depending on the intent type.
func (p PurchaseIntent) EntityID() int64 {
	if p.Type == PurchaseTypePackage {
		return p.PackageID
	}
	return p.ListingID
}

// OrderPrefix returns the order-id prefix for the intent type.
func (p PurchaseIntent) OrderPrefix() string {
	if p.Type == PurchaseTypePackage {
		return OrderPrefixPackage
	}
	return OrderPrefixListing
}

// CardInput is the raw card data from the payment form. Validation here is
// shape-only; the gateway performs the real card checks.
type CardInput struct {
	Number   string
	ExpMonth int
	ExpYear  int
	CVV      string
}

// Validate checks that all card fields are present.
func (c CardInput) Validate() error {
	if strings.TrimSpace(c.Number) == "" {
		return fmt.Errorf("card number is required")
	}
	if c.ExpMonth == 0 {
		return fmt.Errorf("expiry month is required")
	}
	if c.ExpYear == 0 {
		return fmt.Errorf("expiry year is required")
	}
	if strings.TrimSpace(c.CVV) == "" {
		return fmt.Errorf("cvv is required")
	}
	return nil
}

// OrderIDParts is the result of parsing an order id.
type OrderIDParts struct {
	Type     PurchaseType
	EntityID int64
	UserID   int64
}

// NewOrderID builds an order id of the form {TYPE}_{entityID}_{userID}_{unix}_{suffix}.
// The suffix guards against two submissions for the same entity within the
// same second; parsers only rely on the first three segments.
func NewOrderID(prefix string, entityID, userID int64, now time.Time, suffix string) string {
	id := fmt.Sprintf("%s_%d_%d_%d", prefix, entityID, userID, now.Unix())
	if suffix != "" {
		id += "_" + suffix
	}
	return id
}

// ParseOrderID recovers the purchase type and the entity/user ids from an
// order id. Ids with fewer than 3 underscore-delimited segments are invalid.
func ParseOrderID(orderID string) (OrderIDParts, error) {
	parts := strings.Split(orderID, "_")
	if len(parts) < 3 {
		return OrderIDParts{}, fmt.Errorf("malformed order id %q: want at least 3 segments, got %d", orderID, len(parts))
	}

	var typ PurchaseType
	switch parts[0] {
	case OrderPrefixPackage:
		typ = PurchaseTypePackage
	case OrderPrefixListing:
		typ = PurchaseTypeListing
	default:
		return OrderIDParts{}, fmt.Errorf("malformed order id %q: unknown prefix %q", orderID, parts[0])
	}

	entityID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || entityID <= 0 {
		return OrderIDParts{}, fmt.Errorf("malformed order id %q: bad entity id", orderID)
	}
	userID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || userID <= 0 {
		return OrderIDParts{}, fmt.Errorf("malformed order id %q: bad user id", orderID)
	}

	return OrderIDParts{Type: typ, EntityID: entityID, UserID: userID}, nil
}

// TransactionRecord is the in-flight transaction context held in the ledger
// between payment start and completion. The order builder creates it, the
// orchestrator mutates it once when a 3DS challenge is issued, and both
// completion paths only read it.
type TransactionRecord struct {
	OrderID    string          `json:"order_id"`
	Type       PurchaseType    `json:"type"`
	EntityID   int64           `json:"entity_id"`
	UserID     int64           `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	IsFeatured bool            `json:"is_featured,omitempty"`
	IsUpgrade  bool            `json:"is_upgrade,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`

	// Set once, when the gateway issues a 3DS challenge
	AuthToken            string            `json:"auth_token,omitempty"`
	GatewayTransactionID string            `json:"ntp_id,omitempty"`
	ChallengeForm        map[string]string `json:"challenge_form,omitempty"`
}

// PaymentOutcome is the normalized result of a finished gateway operation.
type PaymentOutcome struct {
	GatewayTransactionID string
	StatusCode           int
	ApprovalCode         string
}

// Approved reports whether the outcome permits the purchase side effect:
// status Paid and approval code "00", nothing else.
func (o PaymentOutcome) Approved() bool {
	return o.StatusCode == PaymentStatusPaid && o.ApprovalCode == ApprovalCodeOK
}

// Subject identifies what a completed purchase is applied to: the user for
// memberships, the listing for listing payments. The completion marker is
// stored per subject.
type Subject struct {
	Kind string // "user" or "listing"
	ID   int64
}

// SubjectFor returns the completion subject for a purchase type.
func SubjectFor(typ PurchaseType, entityID, userID int64) Subject {
	if typ == PurchaseTypePackage {
		return Subject{Kind: "user", ID: userID}
	}
	return Subject{Kind: "listing", ID: entityID}
}

// InvoiceKind mirrors the storefront's invoice categories.
type InvoiceKind string

const (
	InvoiceKindPackage         InvoiceKind = "package"
	InvoiceKindListing         InvoiceKind = "Listing"
	InvoiceKindListingFeatured InvoiceKind = "Publish Listing with Featured"
	InvoiceKindUpgradeFeatured InvoiceKind = "Upgrade to Featured"
)

// PaymentMethodName tags invoices with the gateway they were paid through.
const PaymentMethodName = "Netopia Payments"

// Invoice is the billing record created once per approved transaction.
type Invoice struct {
	ID                   string
	Kind                 InvoiceKind
	SubjectID            int64
	UserID               int64
	Amount               decimal.Decimal
	IsFeatured           bool
	IsUpgrade            bool
	PaymentMethod        string
	GatewayTransactionID string
	IssuedAt             time.Time
}

// BillingInfo is the billing snapshot attached to an order.
type BillingInfo struct {
	Email      string
	Phone      string
	FirstName  string
	LastName   string
	City       string
	State      string
	Country    int
	PostalCode string
	Details    string
}

// Product is a single order line item.
type Product struct {
	Name     string
	Code     string
	Category string
	Price    decimal.Decimal
	VAT      decimal.Decimal
}
