package services

import (
	"context"
	"errors"

	"checkout-service/models"
	"checkout-service/providers"
	"checkout-service/sender"

	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

// CheckoutMailer is implemented by sender.Mailer.
type CheckoutMailer interface {
	SendOrderConfirmation(ctx context.Context, mail sender.OrderMail) error
	SendPaymentRequest(ctx context.Context, mail sender.OrderMail) error
	SendSubscriptionPaymentRequest(ctx context.Context, mail sender.SubscriptionMail) error
}

const defaultCardBrand = "card"

type NotificationDispatcher struct {
	mailer      CheckoutMailer
	gateway     providers.PaymentGateway
	frontendURL string
	logger      *zap.Logger
}

func NewNotificationDispatcher(mailer CheckoutMailer, gateway providers.PaymentGateway, frontendURL string, logger *zap.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{mailer: mailer, gateway: gateway, frontendURL: frontendURL, logger: logger}
}

// Dispatch mails the buyer and retires a consumed payment link. Subscription
// sessions are skipped. The order already exists, so every error returned
// here is a follow-up, not a failed order.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, sess *stripe.CheckoutSession, order *models.Order, details []models.ProductDetail, user *models.User) error {
	if sess.Mode != stripe.CheckoutSessionModePayment {
		return nil
	}

	mail := sender.OrderMail{
		To:         recipient(sess, user),
		OrderID:    order.ID.String(),
		Items:      details,
		Total:      order.TotalAmount,
		Currency:   order.Currency,
		CardBrand:  d.cardBrand(ctx, sess),
		PaymentURL: d.frontendURL + "/orders/" + order.ID.String(),
	}
	if order.Shipping != nil {
		mail.ShippingFee = order.Shipping.ShippingFee
	}
	if user != nil {
		mail.CustomerName = user.Name
	}
	if mail.CustomerName == "" && sess.CustomerDetails != nil {
		mail.CustomerName = sess.CustomerDetails.Name
	}

	var errs []error
	var sendErr error
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		sendErr = d.mailer.SendOrderConfirmation(ctx, mail)
	} else {
		sendErr = d.mailer.SendPaymentRequest(ctx, mail)
	}
	if sendErr != nil {
		d.logger.Error("Order email failed", zap.String("order_id", mail.OrderID), zap.Error(sendErr))
		errs = append(errs, withCode(CodeEmailSendFailed, sendErr))
	}

	if sess.PaymentLink != nil && sess.PaymentLink.ID != "" {
		if err := d.gateway.DeactivatePaymentLink(ctx, sess.PaymentLink.ID); err != nil {
			d.logger.Error("Payment link deactivation failed",
				zap.String("payment_link_id", sess.PaymentLink.ID),
				zap.Error(err),
			)
			errs = append(errs, withCode(CodePaymentLinkDeactivateFailed, err))
		}
	}

	// The first failure decides the reported code.
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (d *NotificationDispatcher) cardBrand(ctx context.Context, sess *stripe.CheckoutSession) string {
	if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
		return defaultCardBrand
	}
	pi, err := d.gateway.GetPaymentIntent(ctx, sess.PaymentIntent.ID)
	if err != nil {
		d.logger.Warn("Payment intent lookup failed", zap.String("payment_intent_id", sess.PaymentIntent.ID), zap.Error(err))
		return defaultCardBrand
	}
	if pi.PaymentMethod == nil || pi.PaymentMethod.Card == nil || pi.PaymentMethod.Card.Brand == "" {
		return defaultCardBrand
	}
	return string(pi.PaymentMethod.Card.Brand)
}

func recipient(sess *stripe.CheckoutSession, user *models.User) string {
	if user != nil && user.Email != "" {
		return user.Email
	}
	if sess.CustomerDetails != nil {
		return sess.CustomerDetails.Email
	}
	return ""
}
