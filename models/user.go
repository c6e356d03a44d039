package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email            string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	Name             string    `gorm:"type:varchar(255)" json:"name"`
	StripeCustomerID *string   `gorm:"type:varchar(255);uniqueIndex" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ShippingAddress is a saved address. At most one row per user has
// IsDefault=true; a partial unique index enforces it.
type ShippingAddress struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Name       string    `gorm:"type:varchar(255);not null;default:''" json:"name"`
	PostalCode string    `gorm:"type:varchar(32);not null;default:''" json:"postal_code"`
	State      string    `gorm:"type:varchar(255);not null;default:''" json:"state"`
	City       string    `gorm:"type:varchar(255);not null;default:''" json:"city"`
	Line1      string    `gorm:"type:varchar(255);not null;default:''" json:"line1"`
	Line2      string    `gorm:"type:varchar(255);not null;default:''" json:"line2"`
	Country    string    `gorm:"type:varchar(2);not null;default:''" json:"country"`
	Phone      string    `gorm:"type:varchar(32);not null;default:''" json:"phone"`
	IsDefault  bool      `gorm:"not null;default:false" json:"is_default"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
