package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Payment flow metrics
	paymentsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_started_total",
		Help: "Total number of payment attempts started",
	}, []string{
		"purchase_type", // package, listing
	})

	paymentOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes_total",
		Help: "Final outcomes of payment attempts by completion path",
	}, []string{
		"purchase_type",
		"path",    // start, return, ipn
		"outcome", // approved, declined, cancelled, expired, error
	})

	paymentChallengesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_3ds_challenges_total",
		Help: "Total number of 3D Secure challenges issued by the gateway",
	}, []string{
		"purchase_type",
	})

	completionsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_completions_applied_total",
		Help: "Approved payments whose side effect was applied",
	}, []string{
		"purchase_type",
	})

	completionsSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_completions_suppressed_total",
		Help: "Approved payments suppressed as duplicates",
	}, []string{
		"purchase_type",
		"guard", // marker, invoice
	})

	paymentRevenue = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_revenue_total",
		Help: "Total approved payment amount, in currency units",
	}, []string{
		"purchase_type",
		"currency",
	})

	ipnRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_ipn_requests_total",
		Help: "Total IPN requests received from the gateway",
	}, []string{
		"result", // processed, duplicate, rejected, ignored
	})
)

// RecordPaymentStarted records a new payment attempt.
func RecordPaymentStarted(purchaseType string) {
	paymentsStartedTotal.WithLabelValues(purchaseType).Inc()
}

// RecordPaymentOutcome records the final outcome of an attempt on one of the
// three completion paths.
func RecordPaymentOutcome(purchaseType, path, outcome string) {
	paymentOutcomesTotal.WithLabelValues(purchaseType, path, outcome).Inc()
}

// RecordChallengeIssued records a 3DS challenge round trip being started.
func RecordChallengeIssued(purchaseType string) {
	paymentChallengesTotal.WithLabelValues(purchaseType).Inc()
}

// RecordCompletionApplied records an applied side effect and its revenue.
// Only approved transactions count toward revenue.
func RecordCompletionApplied(purchaseType, currency string, amount float64) {
	completionsAppliedTotal.WithLabelValues(purchaseType).Inc()
	paymentRevenue.WithLabelValues(purchaseType, currency).Add(amount)
}

// RecordCompletionSuppressed records a duplicate completion attempt stopped
// by the named idempotency guard.
func RecordCompletionSuppressed(purchaseType, guard string) {
	completionsSuppressedTotal.WithLabelValues(purchaseType, guard).Inc()
}

// RecordIPNRequest records an IPN request and how it was handled.
func RecordIPNRequest(result string) {
	ipnRequestsTotal.WithLabelValues(result).Inc()
}
