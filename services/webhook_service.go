package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"checkout-service/models"
	awspkg "checkout-service/pkg/aws"
	"checkout-service/providers"
	"checkout-service/repository"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

// WebhookService dispatches verified Stripe events.
type WebhookService interface {
	HandleEvent(ctx context.Context, event stripe.Event) *ServiceError
}

type webhookServiceImpl struct {
	gateway      providers.PaymentGateway
	users        repository.UserRepository
	carts        repository.CartRepository
	materializer *OrderMaterializer
	addresses    *ShippingAddressSync
	notifier     *NotificationDispatcher
	reconciler   *SubscriptionReconciler
	events       *EventSink
	sagaTimeout  time.Duration
	logger       *zap.Logger
}

func NewWebhookService(
	gateway providers.PaymentGateway,
	users repository.UserRepository,
	carts repository.CartRepository,
	materializer *OrderMaterializer,
	addresses *ShippingAddressSync,
	notifier *NotificationDispatcher,
	reconciler *SubscriptionReconciler,
	events *EventSink,
	sagaTimeout time.Duration,
	logger *zap.Logger,
) WebhookService {
	return &webhookServiceImpl{
		gateway:      gateway,
		users:        users,
		carts:        carts,
		materializer: materializer,
		addresses:    addresses,
		notifier:     notifier,
		reconciler:   reconciler,
		events:       events,
		sagaTimeout:  sagaTimeout,
		logger:       logger,
	}
}

func (s *webhookServiceImpl) HandleEvent(ctx context.Context, event stripe.Event) *ServiceError {
	s.events.Count(ctx, awspkg.MetricWebhookEvents, map[string]string{"EventType": string(event.Type)})
	if event.Data == nil {
		return badRequest(CodeInvalidWebhook)
	}

	ctx, cancel := context.WithTimeout(ctx, s.sagaTimeout)
	defer cancel()

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil || sess.ID == "" {
			s.logger.Warn("Malformed checkout session payload", zap.String("event_id", event.ID), zap.Error(err))
			return badRequest(CodeInvalidWebhook)
		}
		return s.handleCheckoutCompleted(ctx, sess.ID)

	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			s.logger.Warn("Malformed invoice payload", zap.String("event_id", event.ID), zap.Error(err))
			return badRequest(CodeInvalidWebhook)
		}
		return s.finish(s.reconciler.HandleInvoice(ctx, &inv), CodeSubscriptionPaymentCreate)

	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			s.logger.Warn("Malformed subscription payload", zap.String("event_id", event.ID), zap.Error(err))
			return badRequest(CodeInvalidWebhook)
		}
		return s.finish(s.reconciler.HandleSubscriptionUpdated(ctx, &sub, event.Data.PreviousAttributes), CodeSubscriptionPaymentUpdate)

	default:
		s.logger.Info("Unhandled webhook event type", zap.String("event_type", string(event.Type)))
		return nil
	}
}

func (s *webhookServiceImpl) handleCheckoutCompleted(ctx context.Context, sessionID string) *ServiceError {
	log := s.logger.With(zap.String("session_id", sessionID))

	sess, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		log.Error("Checkout session lookup failed", zap.Error(err))
		return s.finish(upstream(CodeCheckoutSessionFetchFailed, err), CodeCheckoutSessionFetchFailed)
	}

	userID, user, err := s.resolveBuyer(ctx, sess)
	if err != nil {
		log.Error("Cannot resolve buyer", zap.Error(err))
		return newServiceError(http.StatusUnprocessableEntity, CodeNoUserID, err)
	}

	result, err := s.materializer.Materialize(ctx, sess, userID)
	if err != nil {
		if sagaAborted(err) {
			s.events.Count(ctx, awspkg.MetricOrderSagaCompensated, map[string]string{"Code": CodeOf(err)})
		}
		return s.finish(err, CodeOrderCreateFailed)
	}
	if result.AlreadyProcessed {
		return nil
	}
	order := result.Order
	log = log.With(zap.String("order_id", order.ID.String()))

	s.events.Count(ctx, awspkg.MetricOrdersMaterialized, map[string]string{"Mode": string(sess.Mode)})
	s.events.Publish(ctx, models.CheckoutEvent{
		EventType: models.EventOrderCreated,
		OrderID:   order.ID.String(),
		UserID:    userID.String(),
		SessionID: sess.ID,
		Amount:    order.TotalAmount,
		Currency:  order.Currency,
		Status:    order.Status,
	})

	s.linkCustomer(ctx, user, sess)
	if sess.Metadata[metaSource] == sourceCart {
		if err := s.carts.ClearByUser(ctx, userID); err != nil {
			log.Warn("Failed to clear cart", zap.Error(err))
		}
	}

	// Both run even if the first fails; the order is already recorded.
	addrErr := s.addresses.Sync(ctx, userID, sess)
	notifyErr := s.notifier.Dispatch(ctx, sess, order, result.Details, user)
	if err := errors.Join(addrErr, notifyErr); err != nil {
		code := CodeOf(err)
		if code == "" {
			code = CodeEmailSendFailed
		}
		se := followUp(code, err)
		log.Error("Order placed but follow-up required", zap.String("code", code), zap.Error(err))
		s.events.Count(ctx, awspkg.MetricCheckoutFollowUpRequired, map[string]string{"Code": code})
		s.events.Publish(ctx, models.CheckoutEvent{
			EventType: models.EventOrderFollowUpRequired,
			OrderID:   order.ID.String(),
			UserID:    userID.String(),
			SessionID: sess.ID,
			Code:      code,
		})
		return se
	}

	log.Info("Checkout completed")
	return nil
}

// resolveBuyer finds the local user behind a session: metadata first, then
// client_reference_id, then the Stripe customer id.
func (s *webhookServiceImpl) resolveBuyer(ctx context.Context, sess *stripe.CheckoutSession) (uuid.UUID, *models.User, error) {
	for _, raw := range []string{sess.Metadata[metaUserID], sess.ClientReferenceID} {
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		user, err := s.users.FindByID(ctx, id)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return uuid.Nil, nil, err
		}
		return id, user, nil
	}
	if sess.Customer != nil && sess.Customer.ID != "" {
		user, err := s.users.FindByStripeCustomerID(ctx, sess.Customer.ID)
		if err != nil {
			return uuid.Nil, nil, err
		}
		return user.ID, user, nil
	}
	return uuid.Nil, nil, errors.New("session carries no user reference")
}

// linkCustomer stores a customer id Stripe created during checkout.
func (s *webhookServiceImpl) linkCustomer(ctx context.Context, user *models.User, sess *stripe.CheckoutSession) {
	if user == nil || user.StripeCustomerID != nil || sess.Customer == nil || sess.Customer.ID == "" {
		return
	}
	if err := s.users.SetStripeCustomerID(ctx, user.ID, sess.Customer.ID); err != nil {
		s.logger.Warn("Failed to store Stripe customer id",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
	}
}

// finish converts a pipeline error into the public shape, turning an expired
// saga deadline into SAGA_TIMEOUT.
func (s *webhookServiceImpl) finish(err error, fallback string) *ServiceError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newServiceError(http.StatusGatewayTimeout, CodeSagaTimeout, err)
	}
	return AsServiceError(err, fallback)
}
