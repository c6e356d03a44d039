package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"checkout-service/models"
	awspkg "checkout-service/pkg/aws"
	"checkout-service/providers"
	"checkout-service/repository"
	"checkout-service/sender"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

// SubscriptionReconciler keeps the SubscriptionPayment ledger and
// OrderItemSubscription rows in step with Stripe billing webhooks.
type SubscriptionReconciler struct {
	payments    repository.SubscriptionPaymentRepository
	orders      repository.OrderRepository
	users       repository.UserRepository
	gateway     providers.PaymentGateway
	mailer      CheckoutMailer
	events      *EventSink
	frontendURL string
	logger      *zap.Logger
	now         func() time.Time
}

func NewSubscriptionReconciler(
	payments repository.SubscriptionPaymentRepository,
	orders repository.OrderRepository,
	users repository.UserRepository,
	gateway providers.PaymentGateway,
	mailer CheckoutMailer,
	events *EventSink,
	frontendURL string,
	logger *zap.Logger,
) *SubscriptionReconciler {
	return &SubscriptionReconciler{
		payments:    payments,
		orders:      orders,
		users:       users,
		gateway:     gateway,
		mailer:      mailer,
		events:      events,
		frontendURL: frontendURL,
		logger:      logger,
		now:         time.Now,
	}
}

// HandleInvoice records a renewal attempt. Only subscription_cycle invoices
// are considered; the ledger status comes from the subscription's current
// state, not from the invoice.
func (r *SubscriptionReconciler) HandleInvoice(ctx context.Context, inv *stripe.Invoice) error {
	if inv.BillingReason != stripe.InvoiceBillingReasonSubscriptionCycle {
		r.logger.Debug("Ignoring non-cycle invoice",
			zap.String("invoice_id", inv.ID),
			zap.String("billing_reason", string(inv.BillingReason)),
		)
		return nil
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return newServiceError(http.StatusBadRequest, CodeNoSubscriptionID, fmt.Errorf("invoice %s", inv.ID))
	}
	subID := inv.Subscription.ID
	log := r.logger.With(zap.String("subscription_id", subID), zap.String("invoice_id", inv.ID))

	sub, err := r.gateway.GetSubscription(ctx, subID)
	if err != nil {
		log.Error("Subscription lookup failed", zap.Error(err))
		return upstream(CodeSubscriptionFetchFailed, err)
	}

	user, err := r.resolveUser(ctx, sub, inv.Customer)
	if err != nil {
		log.Error("Cannot resolve subscriber", zap.Error(err))
		return newServiceError(http.StatusUnprocessableEntity, CodeNoUserID, err)
	}

	status := MapSubscriptionStatus(sub.Status)
	paidAt := r.now().UTC()
	if inv.Created > 0 {
		paidAt = time.Unix(inv.Created, 0).UTC()
	}
	invoiceID := inv.ID
	payment := &models.SubscriptionPayment{
		ID:             uuid.New(),
		UserID:         user.ID,
		SubscriptionID: subID,
		PaymentDate:    paidAt,
		Status:         status,
		InvoiceID:      &invoiceID,
	}
	err = r.payments.Create(ctx, payment)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		// Redelivery: the row exists, but the follow-up below may not have
		// completed last time.
		log.Info("Subscription payment already recorded")
	case err != nil:
		log.Error("Failed to record subscription payment", zap.Error(err))
		return internal(CodeSubscriptionPaymentCreate, err)
	default:
		log.Info("Subscription payment recorded",
			zap.String("gateway_status", string(sub.Status)),
			zap.String("status", status),
		)
		r.events.Count(ctx, awspkg.MetricSubscriptionPayments, map[string]string{"Status": status})
		r.events.Publish(ctx, models.CheckoutEvent{
			EventType: models.EventSubscriptionPaymentRecorded,
			UserID:    user.ID.String(),
			Reference: subID,
			Amount:    inv.AmountDue,
			Currency:  string(inv.Currency),
			Status:    status,
		})
	}

	if status == models.PaymentStatusSucceeded {
		if sub.CurrentPeriodEnd > 0 {
			next := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			if err := r.orders.UpdateItemSubscriptionNextPayment(ctx, subID, next); err != nil {
				log.Warn("Failed to refresh next payment date", zap.Error(err))
			}
		}
		return nil
	}

	// Not paid: ask the subscriber to fix their payment. The ledger row stays
	// even if the mail cannot be sent.
	details, err := r.subscriptionDetails(ctx, sub)
	if err != nil {
		log.Error("Failed to load subscription products", zap.Error(err))
		return upstream(CodeSubscriptionFetchFailed, err)
	}
	mail := sender.SubscriptionMail{
		To:             user.Email,
		CustomerName:   user.Name,
		SubscriptionID: subID,
		Status:         string(sub.Status),
		Items:          details,
		Currency:       string(inv.Currency),
		PaymentURL:     inv.HostedInvoiceURL,
	}
	if mail.PaymentURL == "" {
		mail.PaymentURL = r.frontendURL + "/account/subscriptions"
	}
	if err := r.mailer.SendSubscriptionPaymentRequest(ctx, mail); err != nil {
		log.Error("Subscription payment request email failed", zap.Error(err))
		return internal(CodeEmailSendFailed, err)
	}
	return nil
}

// HandleSubscriptionUpdated rewrites the latest ledger row when Stripe reports
// a status transition. Updates without a status change are ignored. Before the
// first renewal there is no row yet, so the transition opens the ledger.
func (r *SubscriptionReconciler) HandleSubscriptionUpdated(ctx context.Context, sub *stripe.Subscription, previous map[string]interface{}) error {
	prev, _ := previous["status"].(string)
	current := string(sub.Status)
	if prev == "" || current == "" || prev == current {
		return nil
	}
	log := r.logger.With(zap.String("subscription_id", sub.ID))

	status := MapSubscriptionStatus(sub.Status)
	err := r.payments.UpdateLatestStatus(ctx, sub.ID, status)
	if errors.Is(err, repository.ErrNotFound) {
		err = r.openLedger(ctx, sub, status, log)
	}
	if err != nil {
		log.Error("Failed to update subscription payment status", zap.Error(err))
		return internal(CodeSubscriptionPaymentUpdate, err)
	}
	log.Info("Subscription status changed",
		zap.String("from", prev),
		zap.String("to", current),
		zap.String("status", status),
	)

	if sub.Status == stripe.SubscriptionStatusCanceled {
		if err := r.orders.UpdateItemSubscriptionStatus(ctx, sub.ID, models.ItemSubscriptionCancelled); err != nil {
			log.Warn("Failed to mark item subscription cancelled", zap.Error(err))
		}
	}
	return nil
}

// openLedger writes the first SubscriptionPayment row for a subscription. When
// the subscriber cannot be resolved there is nothing to attach the row to, so
// the transition is only logged.
func (r *SubscriptionReconciler) openLedger(ctx context.Context, sub *stripe.Subscription, status string, log *zap.Logger) error {
	user, err := r.resolveUser(ctx, sub, nil)
	if errors.Is(err, errNoSubscriber) || errors.Is(err, repository.ErrNotFound) {
		log.Warn("No ledger row and no subscriber for status change", zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	err = r.payments.Create(ctx, &models.SubscriptionPayment{
		ID:             uuid.New(),
		UserID:         user.ID,
		SubscriptionID: sub.ID,
		PaymentDate:    r.now().UTC(),
		Status:         status,
	})
	if err != nil {
		return err
	}
	log.Info("Subscription ledger opened", zap.String("status", status))
	return nil
}

var errNoSubscriber = errors.New("subscription has neither user_id metadata nor customer")

// resolveUser reads user_id from subscription metadata, falling back to the
// Stripe customer id stored on the user.
func (r *SubscriptionReconciler) resolveUser(ctx context.Context, sub *stripe.Subscription, invoiceCustomer *stripe.Customer) (*models.User, error) {
	if raw := sub.Metadata[metaUserID]; raw != "" {
		id, err := uuid.Parse(raw)
		if err == nil {
			u, err := r.users.FindByID(ctx, id)
			if err == nil {
				return u, nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
		}
	}
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	if customerID == "" && invoiceCustomer != nil {
		customerID = invoiceCustomer.ID
	}
	if customerID == "" {
		return nil, errNoSubscriber
	}
	return r.users.FindByStripeCustomerID(ctx, customerID)
}

func (r *SubscriptionReconciler) subscriptionDetails(ctx context.Context, sub *stripe.Subscription) ([]models.ProductDetail, error) {
	if sub.Items == nil {
		return nil, nil
	}
	details := make([]models.ProductDetail, 0, len(sub.Items.Data))
	for _, it := range sub.Items.Data {
		if it.Price == nil {
			continue
		}
		d := models.ProductDetail{
			PriceID:        it.Price.ID,
			Quantity:       it.Quantity,
			UnitPrice:      it.Price.UnitAmount,
			AmountTotal:    it.Price.UnitAmount * it.Quantity,
			IsSubscription: true,
		}
		if it.Price.Recurring != nil {
			d.Interval = string(it.Price.Recurring.Interval)
			d.IntervalCount = it.Price.Recurring.IntervalCount
		}
		if it.Price.Product != nil && it.Price.Product.ID != "" {
			p, err := r.gateway.GetProduct(ctx, it.Price.Product.ID)
			if err != nil {
				return nil, fmt.Errorf("fetch product %s: %w", it.Price.Product.ID, err)
			}
			d.Name = p.Name
		}
		details = append(details, d)
	}
	return details, nil
}
