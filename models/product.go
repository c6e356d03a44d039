package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier is one recurring price offered for a subscription product.
type SubscriptionTier struct {
	Interval      string `json:"interval"` // day, week, month, year
	IntervalCount int64  `json:"interval_count"`
	Amount        int64  `json:"amount"`
	Nickname      string `json:"nickname"`
}

type Product struct {
	ID                   uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name                 string             `gorm:"type:varchar(255);not null" json:"name"`
	Description          string             `gorm:"type:text" json:"description"`
	Price                int64              `gorm:"not null" json:"price"`
	SalePrice            *int64             `json:"sale_price,omitempty"`
	Stock                int64              `gorm:"not null;default:0" json:"stock"`
	IsSubscription       bool               `gorm:"not null;default:false" json:"is_subscription"`
	SubscriptionTiers    []SubscriptionTier `gorm:"serializer:json;type:jsonb" json:"subscription_tiers"`
	StripeProductID      string             `gorm:"type:varchar(255);index" json:"stripe_product_id"`
	StripePriceID        string             `gorm:"type:varchar(255)" json:"stripe_price_id"`
	StripeSalePriceID    string             `gorm:"type:varchar(255)" json:"stripe_sale_price_id"`
	SubscriptionPriceIDs []string           `gorm:"serializer:json;type:jsonb" json:"subscription_price_ids"`
	CreatedAt            time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type CartItem struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null" json:"product_id"`
	PriceID   string    `gorm:"column:stripe_price_id;type:varchar(255);not null" json:"stripe_price_id"`
	Quantity  int64     `gorm:"not null" json:"quantity"`
	Product   Product   `gorm:"foreignKey:ProductID" json:"product"`
}
