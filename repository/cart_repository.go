package repository

import (
	"context"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CartRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	ClearByUser(ctx context.Context, userID uuid.UUID) error
}

type GormCartRepository struct {
	db *gorm.DB
}

func NewGormCartRepository(db *gorm.DB) CartRepository {
	return &GormCartRepository{db: db}
}

func (r *GormCartRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := r.db.WithContext(ctx).
		Preload("Product").
		Where("user_id = ?", userID).
		Find(&items).Error; err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (r *GormCartRepository) ClearByUser(ctx context.Context, userID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{}).Error)
}
