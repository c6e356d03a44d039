package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"checkout-service/models"
	awspkg "checkout-service/pkg/aws"
	"checkout-service/providers"
	"checkout-service/repository"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

// Session metadata keys read back by the webhook handler.
const (
	metaUserID = "user_id"
	metaSource = "source"

	sourceAdHoc = "adhoc"
	sourceCart  = "cart"
)

type CheckoutConfig struct {
	FreeShippingRateID    string
	RegularShippingRateID string
	FreeShippingThreshold int64
	Currency              string
	AllowedCountries      []string
	FrontendURL           string
}

// CheckoutService builds Stripe checkout sessions.
type CheckoutService interface {
	// CreateSession starts checkout for an ad-hoc list of prices.
	CreateSession(ctx context.Context, userID uuid.UUID, req *models.CreateCheckoutSessionRequest) (*models.CheckoutSessionResponse, *ServiceError)
	// CreateCartSession starts checkout for the caller's stored cart and
	// verifies the quoted total against independently fetched prices.
	CreateCartSession(ctx context.Context, userID uuid.UUID) (*models.CheckoutSessionResponse, *ServiceError)
}

type checkoutServiceImpl struct {
	gateway providers.PaymentGateway
	users   repository.UserRepository
	carts   repository.CartRepository
	cfg     CheckoutConfig
	metrics awspkg.MetricsRecorder
	logger  *zap.Logger
}

func NewCheckoutService(
	gateway providers.PaymentGateway,
	users repository.UserRepository,
	carts repository.CartRepository,
	cfg CheckoutConfig,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutServiceImpl{
		gateway: gateway,
		users:   users,
		carts:   carts,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *checkoutServiceImpl) CreateSession(ctx context.Context, userID uuid.UUID, req *models.CreateCheckoutSessionRequest) (*models.CheckoutSessionResponse, *ServiceError) {
	if userID == uuid.Nil {
		return nil, badRequest(CodeNoUserID)
	}
	if req == nil || len(req.LineItems) == 0 {
		return nil, badRequest(CodeEmptyLineItems)
	}
	if req.TotalQuantity <= 0 {
		return nil, badRequest(CodeInvalidQuantity)
	}
	lines := make([]checkoutLine, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		if li.PriceID == "" {
			return nil, badRequest(CodeMissingPriceID)
		}
		if li.Quantity <= 0 {
			return nil, badRequest(CodeInvalidQuantity)
		}
		lines = append(lines, checkoutLine{priceID: li.PriceID, quantity: li.Quantity})
	}

	mode := req.Mode
	if mode == "" {
		mode = models.CheckoutModePayment
	}

	params, se := s.buildParams(ctx, userID, lines, req.TotalQuantity, mode, sourceAdHoc)
	if se != nil {
		return nil, se
	}
	sess, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.logger.Error("Checkout session creation failed", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, upstream(CodeCheckoutSessionCreateFailed, err)
	}

	s.recordCount(ctx, awspkg.MetricCheckoutSessionsCreated, map[string]string{"Source": sourceAdHoc})
	return &models.CheckoutSessionResponse{SessionID: sess.ID, URL: sess.URL}, nil
}

func (s *checkoutServiceImpl) CreateCartSession(ctx context.Context, userID uuid.UUID) (*models.CheckoutSessionResponse, *ServiceError) {
	if userID == uuid.Nil {
		return nil, badRequest(CodeNoUserID)
	}
	items, err := s.carts.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load cart", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, internal(CodeCheckoutSessionCreateFailed, err)
	}
	if len(items) == 0 {
		return nil, badRequest(CodeEmptyLineItems)
	}

	entries := make([]models.CartEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, models.CartEntry{Product: it.Product, PriceID: it.PriceID, Quantity: it.Quantity})
	}

	lines, totalQty, se := validateCart(entries)
	if se != nil {
		return nil, se
	}

	// Mode follows the billed prices, not Product.IsSubscription.
	subtotal, recurring, se := s.verifyPrices(ctx, entries)
	if se != nil {
		return nil, se
	}
	mode := models.CheckoutModePayment
	if recurring {
		mode = models.CheckoutModeSubscription
	}

	params, se := s.buildParams(ctx, userID, lines, totalQty, mode, sourceCart)
	if se != nil {
		return nil, se
	}

	expected := subtotal
	if mode == models.CheckoutModePayment {
		fee, se := s.shippingFee(ctx, s.selectShippingRate(totalQty))
		if se != nil {
			return nil, se
		}
		expected += fee
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.logger.Error("Checkout session creation failed", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, upstream(CodeCheckoutSessionCreateFailed, err)
	}

	if sess.AmountTotal != expected {
		s.logger.Error("Checkout amount mismatch",
			zap.String("session_id", sess.ID),
			zap.Int64("expected", expected),
			zap.Int64("quoted", sess.AmountTotal),
		)
		s.recordCount(ctx, awspkg.MetricCheckoutAmountMismatch, nil)
		if err := s.gateway.ExpireCheckoutSession(ctx, sess.ID); err != nil {
			s.logger.Warn("Failed to expire mismatched session", zap.String("session_id", sess.ID), zap.Error(err))
		}
		return nil, newServiceError(http.StatusConflict, CodeAmountTotalMismatch,
			fmt.Errorf("expected %d, gateway quoted %d", expected, sess.AmountTotal))
	}

	s.recordCount(ctx, awspkg.MetricCheckoutSessionsCreated, map[string]string{"Source": sourceCart})
	return &models.CheckoutSessionResponse{SessionID: sess.ID, URL: sess.URL}, nil
}

type checkoutLine struct {
	priceID  string
	quantity int64
}

// validateCart checks quantities, price ids and local stock before any
// gateway call.
func validateCart(entries []models.CartEntry) ([]checkoutLine, int64, *ServiceError) {
	lines := make([]checkoutLine, 0, len(entries))
	var total int64
	for _, e := range entries {
		if e.Quantity <= 0 {
			return nil, 0, badRequest(CodeInvalidQuantity)
		}
		if e.PriceID == "" {
			return nil, 0, badRequest(CodeMissingPriceID)
		}
		if e.Quantity > e.Product.Stock {
			return nil, 0, newServiceError(http.StatusConflict, CodeOutOfStock,
				fmt.Errorf("product %s: want %d, have %d", e.Product.ID, e.Quantity, e.Product.Stock))
		}
		lines = append(lines, checkoutLine{priceID: e.PriceID, quantity: e.Quantity})
		total += e.Quantity
	}
	return lines, total, nil
}

// selectShippingRate picks the free rate once totalQty reaches the threshold.
// It returns "" when the selected rate is not configured.
func (s *checkoutServiceImpl) selectShippingRate(totalQty int64) string {
	if totalQty >= s.cfg.FreeShippingThreshold {
		return s.cfg.FreeShippingRateID
	}
	return s.cfg.RegularShippingRateID
}

// verifyPrices recomputes the line subtotal from the gateway's own price
// objects and reports whether any of them is recurring.
func (s *checkoutServiceImpl) verifyPrices(ctx context.Context, entries []models.CartEntry) (int64, bool, *ServiceError) {
	var (
		total     int64
		recurring bool
	)
	for _, e := range entries {
		price, err := s.gateway.GetPrice(ctx, e.PriceID)
		if err != nil {
			s.logger.Error("Price lookup failed", zap.String("price_id", e.PriceID), zap.Error(err))
			return 0, false, upstream(CodePriceFetchFailed, err)
		}
		if e.Product.StripeProductID != "" && (price.Product == nil || price.Product.ID != e.Product.StripeProductID) {
			return 0, false, newServiceError(http.StatusConflict, CodePriceProductMismatch,
				fmt.Errorf("price %s does not belong to product %s", e.PriceID, e.Product.StripeProductID))
		}
		if price.Recurring != nil {
			recurring = true
		}
		total += price.UnitAmount * e.Quantity
	}
	return total, recurring, nil
}

func (s *checkoutServiceImpl) shippingFee(ctx context.Context, shippingRateID string) (int64, *ServiceError) {
	rate, err := s.gateway.GetShippingRate(ctx, shippingRateID)
	if err != nil {
		s.logger.Error("Shipping rate lookup failed", zap.String("shipping_rate_id", shippingRateID), zap.Error(err))
		return 0, upstream(CodePriceFetchFailed, err)
	}
	if rate.FixedAmount == nil {
		return 0, nil
	}
	return rate.FixedAmount.Amount, nil
}

func (s *checkoutServiceImpl) buildParams(ctx context.Context, userID uuid.UUID, lines []checkoutLine, totalQty int64, mode, source string) (*stripe.CheckoutSessionParams, *ServiceError) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(mode),
		SuccessURL:        stripe.String(s.cfg.FrontendURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.cfg.FrontendURL + "/cart"),
		ClientReferenceID: stripe.String(userID.String()),
	}
	for _, l := range lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(l.priceID),
			Quantity: stripe.Int64(l.quantity),
		})
	}
	params.AddMetadata(metaUserID, userID.String())
	params.AddMetadata(metaSource, source)
	params.AddMetadata("total_quantity", strconv.FormatInt(totalQty, 10))

	customerID, se := s.customerID(ctx, userID)
	if se != nil {
		return nil, se
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	} else if mode == models.CheckoutModePayment {
		params.CustomerCreation = stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways))
	}

	switch mode {
	case models.CheckoutModePayment:
		rateID := s.selectShippingRate(totalQty)
		if rateID == "" {
			s.logger.Error("Shipping rate not configured",
				zap.Int64("total_quantity", totalQty),
				zap.Int64("threshold", s.cfg.FreeShippingThreshold),
			)
			return nil, newServiceError(http.StatusServiceUnavailable, CodeShippingRateNotConfigured, nil)
		}
		params.ShippingOptions = []*stripe.CheckoutSessionShippingOptionParams{
			{ShippingRate: stripe.String(rateID)},
		}
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(s.cfg.AllowedCountries),
		}
	case models.CheckoutModeSubscription:
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metaUserID: userID.String()},
		}
	}
	return params, nil
}

// customerID returns the user's Stripe customer id, or "" for first-time buyers.
func (s *checkoutServiceImpl) customerID(ctx context.Context, userID uuid.UUID) (string, *ServiceError) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		s.logger.Error("Failed to load user", zap.String("user_id", userID.String()), zap.Error(err))
		return "", internal(CodeCheckoutSessionCreateFailed, err)
	}
	if user.StripeCustomerID == nil {
		return "", nil
	}
	return *user.StripeCustomerID, nil
}

func (s *checkoutServiceImpl) recordCount(ctx context.Context, name string, dims map[string]string) {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.RecordCount(ctx, name, dims); err != nil {
		s.logger.Debug("Metric not recorded", zap.String("metric", name), zap.Error(err))
	}
}
