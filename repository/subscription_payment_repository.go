package repository

import (
	"context"

	"checkout-service/models"

	"gorm.io/gorm"
)

type SubscriptionPaymentRepository interface {
	Create(ctx context.Context, payment *models.SubscriptionPayment) error
	// UpdateLatestStatus rewrites the status of the most recent payment row
	// for the subscription. Returns ErrNotFound when there is none.
	UpdateLatestStatus(ctx context.Context, subscriptionID, status string) error
}

type GormSubscriptionPaymentRepository struct {
	db *gorm.DB
}

func NewGormSubscriptionPaymentRepository(db *gorm.DB) SubscriptionPaymentRepository {
	return &GormSubscriptionPaymentRepository{db: db}
}

func (r *GormSubscriptionPaymentRepository) Create(ctx context.Context, payment *models.SubscriptionPayment) error {
	return translate(r.db.WithContext(ctx).Create(payment).Error)
}

func (r *GormSubscriptionPaymentRepository) UpdateLatestStatus(ctx context.Context, subscriptionID, status string) error {
	var latest models.SubscriptionPayment
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("payment_date DESC").
		First(&latest).Error; err != nil {
		return translate(err)
	}
	return translate(r.db.WithContext(ctx).
		Model(&models.SubscriptionPayment{}).
		Where("id = ?", latest.ID).
		Update("status", status).Error)
}
