package services

import (
	"testing"

	"checkout-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v80"
)

func TestMapSubscriptionStatus_Total(t *testing.T) {
	local := map[string]bool{
		models.PaymentStatusPending:   true,
		models.PaymentStatusPastDue:   true,
		models.PaymentStatusSucceeded: true,
		models.PaymentStatusFailed:    true,
		models.PaymentStatusCanceled:  true,
	}
	cases := map[stripe.SubscriptionStatus]string{
		stripe.SubscriptionStatusActive:            models.PaymentStatusSucceeded,
		stripe.SubscriptionStatusTrialing:          models.PaymentStatusSucceeded,
		stripe.SubscriptionStatusIncomplete:        models.PaymentStatusPending,
		stripe.SubscriptionStatusPaused:            models.PaymentStatusPending,
		stripe.SubscriptionStatusPastDue:           models.PaymentStatusFailed,
		stripe.SubscriptionStatusUnpaid:            models.PaymentStatusFailed,
		stripe.SubscriptionStatusIncompleteExpired: models.PaymentStatusFailed,
		stripe.SubscriptionStatusCanceled:          models.PaymentStatusCanceled,
		"":                                         models.PaymentStatusPending,
		"something_new":                            models.PaymentStatusPending,
	}
	for in, want := range cases {
		got := MapSubscriptionStatus(in)
		assert.Equal(t, want, got, "status %q", in)
		assert.True(t, local[got], "status %q mapped outside the local vocabulary", in)
	}
}
