package services

import (
	"context"
	"errors"
	"testing"

	"checkout-service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

func dispatchOrder() *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		TotalAmount: 2500,
		Currency:    "jpy",
		Shipping:    &models.OrderShipping{ShippingFee: 500},
	}
}

func TestDispatch_PaidSendsConfirmationWithCardBrand(t *testing.T) {
	gw := newFakeGateway()
	gw.intents["pi_1"] = &stripe.PaymentIntent{ID: "pi_1", PaymentMethod: &stripe.PaymentMethod{
		Card: &stripe.PaymentMethodCard{Brand: "visa"},
	}}
	mailer := &fakeMailer{}
	d := NewNotificationDispatcher(mailer, gw, "https://shop.example", zap.NewNop())

	sess := &stripe.CheckoutSession{
		Mode:          stripe.CheckoutSessionModePayment,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
	}
	user := &models.User{Email: "buyer@example.com", Name: "Buyer"}

	require.NoError(t, d.Dispatch(context.Background(), sess, dispatchOrder(), nil, user))
	require.Len(t, mailer.confirmations, 1)
	assert.Empty(t, mailer.requests)
	assert.Equal(t, "visa", mailer.confirmations[0].CardBrand)
	assert.Equal(t, "buyer@example.com", mailer.confirmations[0].To)
	assert.Equal(t, int64(500), mailer.confirmations[0].ShippingFee)
}

func TestDispatch_UnpaidSendsPaymentRequestWithGenericBrand(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewNotificationDispatcher(mailer, newFakeGateway(), "https://shop.example", zap.NewNop())
	sess := &stripe.CheckoutSession{
		Mode:            stripe.CheckoutSessionModePayment,
		PaymentStatus:   stripe.CheckoutSessionPaymentStatusUnpaid,
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{Email: "guest@example.com"},
	}

	require.NoError(t, d.Dispatch(context.Background(), sess, dispatchOrder(), nil, nil))
	require.Len(t, mailer.requests, 1)
	assert.Equal(t, "card", mailer.requests[0].CardBrand)
	assert.Equal(t, "guest@example.com", mailer.requests[0].To)
}

func TestDispatch_SubscriptionModeSkipped(t *testing.T) {
	mailer := &fakeMailer{}
	gw := newFakeGateway()
	d := NewNotificationDispatcher(mailer, gw, "", zap.NewNop())
	sess := &stripe.CheckoutSession{
		Mode:        stripe.CheckoutSessionModeSubscription,
		PaymentLink: &stripe.PaymentLink{ID: "plink_1"},
	}

	require.NoError(t, d.Dispatch(context.Background(), sess, dispatchOrder(), nil, nil))
	assert.Empty(t, mailer.confirmations)
	assert.Empty(t, mailer.requests)
	assert.Empty(t, gw.deactivatedLinks)
}

func TestDispatch_DeactivatesPaymentLink(t *testing.T) {
	gw := newFakeGateway()
	d := NewNotificationDispatcher(&fakeMailer{}, gw, "", zap.NewNop())
	sess := &stripe.CheckoutSession{
		Mode:          stripe.CheckoutSessionModePayment,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		PaymentLink:   &stripe.PaymentLink{ID: "plink_1"},
	}

	require.NoError(t, d.Dispatch(context.Background(), sess, dispatchOrder(), nil, &models.User{Email: "a@b.c"}))
	assert.Equal(t, []string{"plink_1"}, gw.deactivatedLinks)
}

func TestDispatch_FailuresAreReported(t *testing.T) {
	gw := newFakeGateway()
	gw.deactivateLinkErr = errors.New("link api down")
	mailer := &fakeMailer{err: errors.New("smtp down")}
	d := NewNotificationDispatcher(mailer, gw, "", zap.NewNop())
	sess := &stripe.CheckoutSession{
		Mode:          stripe.CheckoutSessionModePayment,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		PaymentLink:   &stripe.PaymentLink{ID: "plink_1"},
	}

	err := d.Dispatch(context.Background(), sess, dispatchOrder(), nil, &models.User{Email: "a@b.c"})
	require.Error(t, err)
	assert.Equal(t, CodeEmailSendFailed, CodeOf(err))
	assert.Equal(t, []string{"plink_1"}, gw.deactivatedLinks, "link is still retired when mail fails")
}
