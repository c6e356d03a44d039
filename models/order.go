package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Order is one purchase. Its OrderShipping row is inserted in the same
// statement batch when Shipping is set.
type Order struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Status        string         `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	TotalAmount   int64          `gorm:"not null" json:"total_amount"`
	Currency      string         `gorm:"type:varchar(10);not null" json:"currency"`
	PaymentMethod string         `gorm:"type:varchar(32)" json:"payment_method"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	Shipping      *OrderShipping `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"shipping,omitempty"`
}

type OrderShipping struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	Name        string    `gorm:"type:varchar(255)" json:"name"`
	Address     string    `gorm:"type:jsonb" json:"address"` // AddressSnapshot as JSON
	ShippingFee int64     `gorm:"not null;default:0" json:"shipping_fee"`
}

// OrderStripe links an order to the checkout session that paid for it.
// SessionID is unique so a replayed webhook cannot produce a second order.
type OrderStripe struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	SessionID       string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"session_id"`
	PaymentIntentID string    `gorm:"type:varchar(255)" json:"payment_intent_id"`
}

type OrderItem struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID    uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID  uuid.UUID `gorm:"type:uuid;not null" json:"product_id"`
	Quantity   int64     `gorm:"not null" json:"quantity"`
	UnitPrice  int64     `gorm:"not null" json:"unit_price"`
	TotalPrice int64     `gorm:"not null" json:"total_price"`
}

type OrderItemStripe struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderItemID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"order_item_id"`
	PriceID        string    `gorm:"type:varchar(255);not null" json:"price_id"`
	SubscriptionID *string   `gorm:"type:varchar(255);index" json:"subscription_id,omitempty"`
}

const (
	ItemSubscriptionActive    = "active"
	ItemSubscriptionCancelled = "cancelled"
)

type OrderItemSubscription struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderItemID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"order_item_id"`
	SubscriptionID  string     `gorm:"type:varchar(255);not null;index" json:"subscription_id"`
	Status          string     `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	Interval        string     `gorm:"type:varchar(16)" json:"interval"`
	IntervalCount   int64      `gorm:"not null;default:1" json:"interval_count"`
	NextPaymentDate *time.Time `json:"next_payment_date,omitempty"`
	Remarks         string     `gorm:"type:text" json:"remarks"`
}

// AddressSnapshot is the frozen copy of the delivery address stored on OrderShipping.
type AddressSnapshot struct {
	Name       string `json:"name"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state"`
	City       string `json:"city"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// ProductDetail describes one purchased line once the gateway product has been
// resolved back to a local product.
type ProductDetail struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	PriceID        string    `json:"price_id"`
	Quantity       int64     `json:"quantity"`
	UnitPrice      int64     `json:"unit_price"`
	AmountTotal    int64     `json:"amount_total"`
	IsSubscription bool      `json:"is_subscription"`
	Interval       string    `json:"interval,omitempty"`
	IntervalCount  int64     `json:"interval_count,omitempty"`
}
