package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionPayment statuses. The latest row per subscription is authoritative.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusPastDue   = "past_due"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusCanceled  = "canceled"
)

type SubscriptionPayment struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	SubscriptionID string    `gorm:"type:varchar(255);not null;index:idx_subscription_payments_sub_date,priority:1" json:"subscription_id"`
	PaymentDate    time.Time `gorm:"not null;index:idx_subscription_payments_sub_date,priority:2" json:"payment_date"`
	Status         string    `gorm:"type:varchar(20);not null" json:"status"`
	// InvoiceID is unique so a redelivered invoice event cannot append twice.
	// Rows opened from a subscription update carry no invoice.
	InvoiceID *string   `gorm:"type:varchar(255);uniqueIndex" json:"invoice_id,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
