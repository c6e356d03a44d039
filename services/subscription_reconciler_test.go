package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"checkout-service/models"
	awspkg "checkout-service/pkg/aws"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

type reconcilerFixture struct {
	gw       *fakeGateway
	payments *fakePayments
	store    *memOrderStore
	mailer   *fakeMailer
	sns      *fakeSNS
	metrics  *fakeMetrics
	user     *models.User
	r        *SubscriptionReconciler
}

func newReconcilerFixture(gatewayStatus stripe.SubscriptionStatus) *reconcilerFixture {
	user := &models.User{ID: uuid.New(), Email: "sub@example.com", Name: "Subscriber"}
	gw := newFakeGateway()
	gw.subscriptions["sub_1"] = &stripe.Subscription{
		ID:               "sub_1",
		Status:           gatewayStatus,
		CurrentPeriodEnd: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC).Unix(),
		Metadata:         map[string]string{"user_id": user.ID.String()},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			Quantity: 1,
			Price: &stripe.Price{
				ID:         "price_sub",
				UnitAmount: 2000,
				Product:    &stripe.Product{ID: "prod_sub"},
				Recurring:  &stripe.PriceRecurring{Interval: "month", IntervalCount: 1},
			},
		}}},
	}
	gw.products["prod_sub"] = &stripe.Product{ID: "prod_sub", Name: "Monthly box"}

	f := &reconcilerFixture{
		gw:       gw,
		payments: &fakePayments{},
		store:    newMemOrderStore(),
		mailer:   &fakeMailer{},
		sns:      &fakeSNS{},
		metrics:  &fakeMetrics{},
		user:     user,
	}
	events := NewEventSink(f.sns, "arn:aws:sns:ap-northeast-1:000000000000:checkout", f.metrics, zap.NewNop())
	f.r = NewSubscriptionReconciler(f.payments, f.store, newFakeUsers(user), gw, f.mailer, events, "https://shop.example", zap.NewNop())
	return f
}

func cycleInvoice() *stripe.Invoice {
	return &stripe.Invoice{
		ID:            "in_1",
		BillingReason: stripe.InvoiceBillingReasonSubscriptionCycle,
		Subscription:  &stripe.Subscription{ID: "sub_1"},
		Currency:      "jpy",
		AmountDue:     2000,
		Created:       time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}
}

func TestHandleInvoice_PaymentFailedScenario(t *testing.T) {
	f := newReconcilerFixture(stripe.SubscriptionStatusPastDue)

	require.NoError(t, f.r.HandleInvoice(context.Background(), cycleInvoice()))
	require.Len(t, f.payments.rows, 1)
	row := f.payments.rows[0]
	assert.Equal(t, models.PaymentStatusFailed, row.Status)
	assert.Equal(t, "sub_1", row.SubscriptionID)
	assert.Equal(t, f.user.ID, row.UserID)

	require.Len(t, f.mailer.subRequests, 1)
	mail := f.mailer.subRequests[0]
	assert.Equal(t, "sub@example.com", mail.To)
	require.Len(t, mail.Items, 1)
	assert.Equal(t, "Monthly box", mail.Items[0].Name)

	assert.Len(t, f.sns.messages, 1)
	assert.Equal(t, 1, f.metrics.counts[awspkg.MetricSubscriptionPayments])
	assert.Empty(t, f.store.nextPayment)
}

func TestHandleInvoice_EmailFailureKeepsLedgerRow(t *testing.T) {
	f := newReconcilerFixture(stripe.SubscriptionStatusPastDue)
	f.mailer.err = errors.New("smtp down")

	err := f.r.HandleInvoice(context.Background(), cycleInvoice())
	require.Error(t, err)
	assert.Equal(t, CodeEmailSendFailed, CodeOf(err))
	assert.Len(t, f.payments.rows, 1)
	assert.Len(t, f.mailer.subRequests, 1)
}

func TestHandleInvoice_RedeliveryRetriesEmailWithoutSecondRow(t *testing.T) {
	f := newReconcilerFixture(stripe.SubscriptionStatusPastDue)
	f.mailer.err = errors.New("smtp down")

	err := f.r.HandleInvoice(context.Background(), cycleInvoice())
	assert.Equal(t, CodeEmailSendFailed, CodeOf(err))

	f.mailer.err = nil
	require.NoError(t, f.r.HandleInvoice(context.Background(), cycleInvoice()))
	require.Len(t, f.payments.rows, 1)
	require.NotNil(t, f.payments.rows[0].InvoiceID)
	assert.Equal(t, "in_1", *f.payments.rows[0].InvoiceID)
	assert.Len(t, f.mailer.subRequests, 2)
	assert.Len(t, f.sns.messages, 1)
	assert.Equal(t, 1, f.metrics.counts[awspkg.MetricSubscriptionPayments])
}

func TestHandleInvoice_ActiveRecordsSuccessAndRefreshesNextPayment(t *testing.T) {
	f := newReconcilerFixture(stripe.SubscriptionStatusActive)

	require.NoError(t, f.r.HandleInvoice(context.Background(), cycleInvoice()))
	require.Len(t, f.payments.rows, 1)
	assert.Equal(t, models.PaymentStatusSucceeded, f.payments.rows[0].Status)
	assert.Empty(t, f.mailer.subRequests)
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), f.store.nextPayment["sub_1"])
}

func TestHandleInvoice_IgnoresNonCycleInvoices(t *testing.T) {
	f := newReconcilerFixture(stripe.SubscriptionStatusPastDue)
	inv := cycleInvoice()
	inv.BillingReason = stripe.InvoiceBillingReasonManual

	require.NoError(t, f.r.HandleInvoice(context.Background(), inv))
	assert.Empty(t, f.payments.rows)
	assert.Empty(t, f.mailer.subRequests)
}

func TestHandleInvoice_MissingSubscriptionID(t *testing.T) {
	f := newReconcilerFixture(stripe.SubscriptionStatusActive)
	inv := cycleInvoice()
	inv.Subscription = nil

	err := f.r.HandleInvoice(context.Background(), inv)
	assert.Equal(t, CodeNoSubscriptionID, CodeOf(err))
	assert.Empty(t, f.payments.rows)
}

func TestHandleInvoice_FallsBackToCustomerID(t *testing.T) {
	f := newReconcilerFixture(stripe.SubscriptionStatusActive)
	cid := "cus_9"
	f.user.StripeCustomerID = &cid
	sub := f.gw.subscriptions["sub_1"]
	sub.Metadata = nil
	sub.Customer = &stripe.Customer{ID: "cus_9"}

	require.NoError(t, f.r.HandleInvoice(context.Background(), cycleInvoice()))
	require.Len(t, f.payments.rows, 1)
	assert.Equal(t, f.user.ID, f.payments.rows[0].UserID)
}

func TestHandleInvoice_SubscriptionFetchFailure(t *testing.T) {
	f := newReconcilerFixture(stripe.SubscriptionStatusActive)
	f.gw.getSubscriptionErr = errors.New("stripe down")

	err := f.r.HandleInvoice(context.Background(), cycleInvoice())
	assert.Equal(t, CodeSubscriptionFetchFailed, CodeOf(err))
	assert.Empty(t, f.payments.rows)
}

func TestHandleSubscriptionUpdated_NoopCases(t *testing.T) {
	cases := []struct {
		name     string
		previous map[string]interface{}
		current  stripe.SubscriptionStatus
	}{
		{"equal status", map[string]interface{}{"status": "active"}, stripe.SubscriptionStatusActive},
		{"no previous status", map[string]interface{}{"cancel_at_period_end": false}, stripe.SubscriptionStatusActive},
		{"nil previous attributes", nil, stripe.SubscriptionStatusActive},
		{"empty current", map[string]interface{}{"status": "active"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newReconcilerFixture(stripe.SubscriptionStatusActive)
			sub := &stripe.Subscription{ID: "sub_1", Status: tc.current}

			require.NoError(t, f.r.HandleSubscriptionUpdated(context.Background(), sub, tc.previous))
			assert.Zero(t, f.payments.updateCalls)
		})
	}
}

func TestHandleSubscriptionUpdated_StatusChange(t *testing.T) {
	f := newReconcilerFixture(stripe.SubscriptionStatusActive)
	f.payments.rows = []models.SubscriptionPayment{{ID: uuid.New(), UserID: f.user.ID, SubscriptionID: "sub_1", Status: models.PaymentStatusFailed}}
	sub := &stripe.Subscription{ID: "sub_1", Status: stripe.SubscriptionStatusCanceled}

	require.NoError(t, f.r.HandleSubscriptionUpdated(context.Background(), sub, map[string]interface{}{"status": "past_due"}))
	assert.Equal(t, 1, f.payments.updateCalls)
	assert.Equal(t, models.PaymentStatusCanceled, f.payments.updatedStatus)
	assert.Equal(t, models.ItemSubscriptionCancelled, f.store.subStatus["sub_1"])
	require.Len(t, f.payments.rows, 1)
	assert.Equal(t, models.PaymentStatusCanceled, f.payments.rows[0].Status)
}

func TestHandleSubscriptionUpdated_CancelledBeforeFirstRenewalOpensLedger(t *testing.T) {
	f := newReconcilerFixture(stripe.SubscriptionStatusActive)
	sub := &stripe.Subscription{
		ID:       "sub_1",
		Status:   stripe.SubscriptionStatusCanceled,
		Metadata: map[string]string{"user_id": f.user.ID.String()},
	}

	require.NoError(t, f.r.HandleSubscriptionUpdated(context.Background(), sub, map[string]interface{}{"status": "active"}))
	require.Len(t, f.payments.rows, 1)
	row := f.payments.rows[0]
	assert.Equal(t, models.PaymentStatusCanceled, row.Status)
	assert.Equal(t, f.user.ID, row.UserID)
	assert.Nil(t, row.InvoiceID)
	assert.Equal(t, models.ItemSubscriptionCancelled, f.store.subStatus["sub_1"])
}

func TestHandleSubscriptionUpdated_UnknownSubscriberStillCancelsItems(t *testing.T) {
	f := newReconcilerFixture(stripe.SubscriptionStatusActive)
	sub := &stripe.Subscription{ID: "sub_1", Status: stripe.SubscriptionStatusCanceled}

	require.NoError(t, f.r.HandleSubscriptionUpdated(context.Background(), sub, map[string]interface{}{"status": "active"}))
	assert.Empty(t, f.payments.rows)
	assert.Equal(t, models.ItemSubscriptionCancelled, f.store.subStatus["sub_1"])
}

func TestHandleSubscriptionUpdated_UpdateFailureIsFatal(t *testing.T) {
	f := newReconcilerFixture(stripe.SubscriptionStatusActive)
	f.payments.updateErr = errors.New("no rows")
	sub := &stripe.Subscription{ID: "sub_1", Status: stripe.SubscriptionStatusPastDue}

	err := f.r.HandleSubscriptionUpdated(context.Background(), sub, map[string]interface{}{"status": "active"})
	assert.Equal(t, CodeSubscriptionPaymentUpdate, CodeOf(err))
}
