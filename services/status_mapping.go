package services

import (
	"checkout-service/models"

	"github.com/stripe/stripe-go/v80"
)

// MapSubscriptionStatus translates a Stripe subscription status into the
// local payment status. Unknown values map to pending.
func MapSubscriptionStatus(status stripe.SubscriptionStatus) string {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return models.PaymentStatusSucceeded
	case stripe.SubscriptionStatusIncomplete, stripe.SubscriptionStatusPaused:
		return models.PaymentStatusPending
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
		return models.PaymentStatusFailed
	case stripe.SubscriptionStatusCanceled:
		return models.PaymentStatusCanceled
	default:
		return models.PaymentStatusPending
	}
}
