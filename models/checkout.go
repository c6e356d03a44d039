package models

import "time"

const (
	CheckoutModePayment      = "payment"
	CheckoutModeSubscription = "subscription"
)

// CheckoutPriceItem is one ad-hoc line: a gateway price and a quantity.
type CheckoutPriceItem struct {
	PriceID  string `json:"price_id"`
	Quantity int64  `json:"quantity"`
}

// CreateCheckoutSessionRequest is the body of POST /checkout/session.
type CreateCheckoutSessionRequest struct {
	LineItems     []CheckoutPriceItem `json:"line_items"`
	TotalQuantity int64               `json:"total_quantity"`
	Mode          string              `json:"mode" binding:"omitempty,oneof=payment subscription"`
}

// CartEntry is a resolved cart line.
type CartEntry struct {
	Product  Product
	PriceID  string
	Quantity int64
}

type CheckoutSessionResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// ProvisionResult lists the gateway ids mirrored for a product.
type ProvisionResult struct {
	StripeProductID      string   `json:"stripe_product_id"`
	StripePriceID        string   `json:"stripe_price_id"`
	StripeSalePriceID    string   `json:"stripe_sale_price_id,omitempty"`
	SubscriptionPriceIDs []string `json:"subscription_price_ids,omitempty"`
}

// CheckoutEvent is published to SNS for downstream consumers and operators.
type CheckoutEvent struct {
	EventType string    `json:"event_type"` // order_created, order_followup_required, subscription_payment_recorded
	OrderID   string    `json:"order_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Reference string    `json:"reference,omitempty"` // subscription id for billing events
	Amount    int64     `json:"amount,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	Status    string    `json:"status,omitempty"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventOrderCreated                = "order_created"
	EventOrderFollowUpRequired       = "order_followup_required"
	EventSubscriptionPaymentRecorded = "subscription_payment_recorded"
)
