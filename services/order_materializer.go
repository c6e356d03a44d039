package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"checkout-service/models"
	"checkout-service/providers"
	"checkout-service/repository"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

// MaterializeResult is what a completed checkout turned into.
type MaterializeResult struct {
	Order   *models.Order
	Details []models.ProductDetail
	// AlreadyProcessed is set when the session had been materialized by an
	// earlier delivery; Order is nil in that case.
	AlreadyProcessed bool
}

// OrderMaterializer turns a completed checkout session into the order record
// family: Order(+OrderShipping), OrderStripe, OrderItems, OrderItemStripes
// and, for subscription lines, OrderItemSubscriptions.
type OrderMaterializer struct {
	orders   repository.OrderRepository
	products repository.ProductRepository
	gateway  providers.PaymentGateway
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrderMaterializer(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	gateway providers.PaymentGateway,
	logger *zap.Logger,
) *OrderMaterializer {
	return &OrderMaterializer{orders: orders, products: products, gateway: gateway, logger: logger, now: time.Now}
}

// Materialize expects the session with line items expanded.
func (m *OrderMaterializer) Materialize(ctx context.Context, sess *stripe.CheckoutSession, userID uuid.UUID) (*MaterializeResult, error) {
	existing, err := m.orders.FindOrderStripeBySessionID(ctx, sess.ID)
	switch {
	case err == nil:
		m.logger.Info("Checkout session already materialized",
			zap.String("session_id", sess.ID),
			zap.String("order_id", existing.OrderID.String()),
		)
		return &MaterializeResult{AlreadyProcessed: true}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, withCode(CodeOrderCreateFailed, fmt.Errorf("lookup session %s: %w", sess.ID, err))
	}

	details, err := m.resolveDetails(ctx, sess)
	if err != nil {
		return nil, withCode(CodeCheckoutProductCreateFailed, err)
	}

	order, err := m.buildOrder(sess, userID)
	if err != nil {
		return nil, withCode(CodeOrderCreateFailed, err)
	}

	items := make([]models.OrderItem, len(details))
	for i, d := range details {
		items[i] = models.OrderItem{
			ID:         uuid.New(),
			OrderID:    order.ID,
			ProductID:  d.ProductID,
			Quantity:   d.Quantity,
			UnitPrice:  d.UnitPrice,
			TotalPrice: d.AmountTotal,
		}
	}
	itemIDs := make([]uuid.UUID, len(items))
	for i := range items {
		itemIDs[i] = items[i].ID
	}

	var subscriptionID string
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}

	itemStripes := make([]models.OrderItemStripe, len(details))
	var itemSubs []models.OrderItemSubscription
	for i, d := range details {
		itemStripes[i] = models.OrderItemStripe{ID: uuid.New(), OrderItemID: items[i].ID, PriceID: d.PriceID}
		if !d.IsSubscription {
			continue
		}
		if subscriptionID != "" {
			id := subscriptionID
			itemStripes[i].SubscriptionID = &id
		}
		next := nextPaymentDate(m.now(), d.Interval, d.IntervalCount)
		itemSubs = append(itemSubs, models.OrderItemSubscription{
			ID:              uuid.New(),
			OrderItemID:     items[i].ID,
			SubscriptionID:  subscriptionID,
			Status:          models.ItemSubscriptionActive,
			Interval:        d.Interval,
			IntervalCount:   d.IntervalCount,
			NextPaymentDate: next,
		})
	}

	s := newSaga(m.logger.With(zap.String("session_id", sess.ID), zap.String("order_id", order.ID.String())),
		sagaStep{
			name: "order",
			run: func(ctx context.Context) error {
				return wrapStep(CodeOrderCreateFailed, m.orders.CreateOrderWithShipping(ctx, order))
			},
			compensate: func(ctx context.Context) error { return m.orders.DeleteOrder(ctx, order.ID) },
		},
		sagaStep{
			name: "order_stripe",
			run: func(ctx context.Context) error {
				return wrapStep(CodeOrderStripeCreateFailed, m.orders.CreateOrderStripe(ctx, &models.OrderStripe{
					ID:              uuid.New(),
					OrderID:         order.ID,
					SessionID:       sess.ID,
					PaymentIntentID: paymentIntentID(sess),
				}))
			},
			compensate: func(ctx context.Context) error { return m.orders.DeleteOrderStripe(ctx, order.ID) },
		},
		sagaStep{
			name: "order_items",
			run: func(ctx context.Context) error {
				return wrapStep(CodeOrderItemCreateFailed, m.orders.CreateOrderItems(ctx, items))
			},
			compensate: func(ctx context.Context) error { return m.orders.DeleteOrderItems(ctx, order.ID) },
		},
		sagaStep{
			name: "order_item_stripes",
			run: func(ctx context.Context) error {
				return wrapStep(CodeOrderItemStripeCreateFailed, m.orders.CreateItemStripes(ctx, itemStripes))
			},
			compensate: func(ctx context.Context) error { return m.orders.DeleteItemStripes(ctx, itemIDs) },
		},
	)
	if len(itemSubs) > 0 {
		s.add(sagaStep{
			name: "order_item_subscriptions",
			run: func(ctx context.Context) error {
				if subscriptionID == "" {
					return withCode(CodeOrderItemSubscriptionFailed, errors.New("session has subscription lines but no subscription id"))
				}
				return wrapStep(CodeOrderItemSubscriptionFailed, m.orders.CreateItemSubscriptions(ctx, itemSubs))
			},
		})
	}

	if err := s.execute(ctx); err != nil {
		return nil, err
	}

	m.logger.Info("Order materialized",
		zap.String("order_id", order.ID.String()),
		zap.String("session_id", sess.ID),
		zap.Int("items", len(items)),
		zap.Int("subscriptions", len(itemSubs)),
	)
	return &MaterializeResult{Order: order, Details: details}, nil
}

// resolveDetails maps each gateway line item back to a local product. Nothing
// has been written yet, so a failure here needs no compensation.
func (m *OrderMaterializer) resolveDetails(ctx context.Context, sess *stripe.CheckoutSession) ([]models.ProductDetail, error) {
	if sess.LineItems == nil || len(sess.LineItems.Data) == 0 {
		return nil, errors.New("session has no line items")
	}
	details := make([]models.ProductDetail, 0, len(sess.LineItems.Data))
	for _, li := range sess.LineItems.Data {
		if li.Price == nil || li.Price.Product == nil {
			return nil, fmt.Errorf("line item %s has no price/product", li.ID)
		}
		gp, err := m.gateway.GetProduct(ctx, li.Price.Product.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch product %s: %w", li.Price.Product.ID, err)
		}
		local, err := m.localProduct(ctx, gp)
		if err != nil {
			return nil, err
		}

		d := models.ProductDetail{
			ProductID:   local.ID,
			Name:        local.Name,
			PriceID:     li.Price.ID,
			Quantity:    li.Quantity,
			UnitPrice:   li.Price.UnitAmount,
			AmountTotal: li.AmountTotal,
			// Only recurring prices are billed through a subscription.
			IsSubscription: li.Price.Recurring != nil,
		}
		if li.Price.Recurring != nil {
			d.Interval = string(li.Price.Recurring.Interval)
			d.IntervalCount = li.Price.Recurring.IntervalCount
		}
		details = append(details, d)
	}
	return details, nil
}

// localProduct prefers the product_id the provisioner stamped on the gateway
// product and falls back to matching the gateway product id.
func (m *OrderMaterializer) localProduct(ctx context.Context, gp *stripe.Product) (*models.Product, error) {
	if raw := gp.Metadata[metaProductID]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			p, err := m.products.FindByID(ctx, id)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("load product %s: %w", id, err)
			}
		}
	}
	p, err := m.products.FindByStripeProductID(ctx, gp.ID)
	if err != nil {
		return nil, fmt.Errorf("no local product for %s: %w", gp.ID, err)
	}
	return p, nil
}

func (m *OrderMaterializer) buildOrder(sess *stripe.CheckoutSession, userID uuid.UUID) (*models.Order, error) {
	var (
		name string
		addr models.AddressSnapshot
		fee  int64
	)
	if cd := sess.CustomerDetails; cd != nil {
		name = cd.Name
		addr = snapshotAddress(cd.Name, cd.Phone, cd.Address)
	}
	if sess.ShippingCost != nil {
		fee = sess.ShippingCost.AmountTotal
	}
	addrJSON, err := json.Marshal(addr)
	if err != nil {
		return nil, fmt.Errorf("encode address: %w", err)
	}

	status := models.OrderStatusPending
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		status = models.OrderStatusProcessing
	}
	method := "card"
	if len(sess.PaymentMethodTypes) > 0 {
		method = sess.PaymentMethodTypes[0]
	}

	orderID := uuid.New()
	return &models.Order{
		ID:            orderID,
		UserID:        userID,
		Status:        status,
		TotalAmount:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		PaymentMethod: method,
		Shipping: &models.OrderShipping{
			ID:          uuid.New(),
			OrderID:     orderID,
			Name:        name,
			Address:     string(addrJSON),
			ShippingFee: fee,
		},
	}, nil
}

func snapshotAddress(name, phone string, a *stripe.Address) models.AddressSnapshot {
	snap := models.AddressSnapshot{Name: name, Phone: phone}
	if a != nil {
		snap.PostalCode = a.PostalCode
		snap.State = a.State
		snap.City = a.City
		snap.Line1 = a.Line1
		snap.Line2 = a.Line2
		snap.Country = a.Country
	}
	return snap
}

func paymentIntentID(sess *stripe.CheckoutSession) string {
	if sess.PaymentIntent == nil {
		return ""
	}
	return sess.PaymentIntent.ID
}

func nextPaymentDate(from time.Time, interval string, count int64) *time.Time {
	if count <= 0 {
		count = 1
	}
	n := int(count)
	var next time.Time
	switch interval {
	case "day":
		next = from.AddDate(0, 0, n)
	case "week":
		next = from.AddDate(0, 0, 7*n)
	case "month":
		next = from.AddDate(0, n, 0)
	case "year":
		next = from.AddDate(n, 0, 0)
	default:
		return nil
	}
	return &next
}

func wrapStep(code string, err error) error {
	if err == nil {
		return nil
	}
	return withCode(code, err)
}
