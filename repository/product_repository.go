package repository

import (
	"context"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByStripeProductID(ctx context.Context, stripeProductID string) (*models.Product, error)
	UpdateStripeIDs(ctx context.Context, id uuid.UUID, ids models.ProvisionResult) error
}

type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) ProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormProductRepository) FindByStripeProductID(ctx context.Context, stripeProductID string) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).Where("stripe_product_id = ?", stripeProductID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormProductRepository) UpdateStripeIDs(ctx context.Context, id uuid.UUID, ids models.ProvisionResult) error {
	return translate(r.db.WithContext(ctx).
		Model(&models.Product{ID: id}).
		Select("StripeProductID", "StripePriceID", "StripeSalePriceID", "SubscriptionPriceIDs").
		Updates(models.Product{
			StripeProductID:      ids.StripeProductID,
			StripePriceID:        ids.StripePriceID,
			StripeSalePriceID:    ids.StripeSalePriceID,
			SubscriptionPriceIDs: ids.SubscriptionPriceIDs,
		}).Error)
}
