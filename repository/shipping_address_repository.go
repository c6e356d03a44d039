package repository

import (
	"context"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ShippingAddressRepository interface {
	FindDefaultByUser(ctx context.Context, userID uuid.UUID) (*models.ShippingAddress, error)
	// Create returns ErrDuplicate when a concurrent insert already claimed
	// the user's default slot.
	Create(ctx context.Context, addr *models.ShippingAddress) error
}

type GormShippingAddressRepository struct {
	db *gorm.DB
}

func NewGormShippingAddressRepository(db *gorm.DB) ShippingAddressRepository {
	return &GormShippingAddressRepository{db: db}
}

func (r *GormShippingAddressRepository) FindDefaultByUser(ctx context.Context, userID uuid.UUID) (*models.ShippingAddress, error) {
	var addr models.ShippingAddress
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ?", userID, true).
		First(&addr).Error; err != nil {
		return nil, translate(err)
	}
	return &addr, nil
}

func (r *GormShippingAddressRepository) Create(ctx context.Context, addr *models.ShippingAddress) error {
	return translate(r.db.WithContext(ctx).Create(addr).Error)
}
