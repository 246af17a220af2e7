package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies a payment failure for handling and reporting
type ErrorCategory string

const (
	CategoryInvalidInput       ErrorCategory = "invalid_input"
	CategoryAuthRequired       ErrorCategory = "auth_required"
	CategoryNotConfigured      ErrorCategory = "not_configured"
	CategoryGatewayError       ErrorCategory = "gateway_error"
	CategoryVerificationFailed ErrorCategory = "verification_failed"
)

// PaymentError represents a payment processing error with enough context to
// decide how to report it to the caller
type PaymentError struct {
	Category       ErrorCategory
	Message        string
	GatewayMessage string
}

func (e *PaymentError) Error() string {
	if e.GatewayMessage != "" {
		return fmt.Sprintf("%s: %s (gateway: %s)", e.Category, e.Message, e.GatewayMessage)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// New creates a payment error in the given category.
func New(category ErrorCategory, message string) *PaymentError {
	return &PaymentError{Category: category, Message: message}
}

// NewGateway creates a gateway error carrying the provider's message.
func NewGateway(message, gatewayMessage string) *PaymentError {
	return &PaymentError{
		Category:       CategoryGatewayError,
		Message:        message,
		GatewayMessage: gatewayMessage,
	}
}

// CategoryOf extracts the category from err, or CategoryGatewayError when
// err is not a PaymentError.
func CategoryOf(err error) ErrorCategory {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return CategoryGatewayError
}

// IsCategory reports whether err is a PaymentError of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var pe *PaymentError
	return errors.As(err, &pe) && pe.Category == category
}
