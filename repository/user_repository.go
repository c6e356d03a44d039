package repository

import (
	"context"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *GormUserRepository) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *GormUserRepository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return translate(r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("stripe_customer_id", customerID).Error)
}
