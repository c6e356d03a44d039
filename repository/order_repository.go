package repository

import (
	"context"
	"time"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderRepository persists the order record family. Every Create has a
// matching Delete so a failed materialization can be rolled back step by step.
type OrderRepository interface {
	CreateOrderWithShipping(ctx context.Context, order *models.Order) error
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	CreateOrderStripe(ctx context.Context, link *models.OrderStripe) error
	DeleteOrderStripe(ctx context.Context, orderID uuid.UUID) error
	FindOrderStripeBySessionID(ctx context.Context, sessionID string) (*models.OrderStripe, error)
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	DeleteOrderItems(ctx context.Context, orderID uuid.UUID) error
	CreateItemStripes(ctx context.Context, links []models.OrderItemStripe) error
	DeleteItemStripes(ctx context.Context, itemIDs []uuid.UUID) error
	CreateItemSubscriptions(ctx context.Context, subs []models.OrderItemSubscription) error
	UpdateItemSubscriptionStatus(ctx context.Context, subscriptionID, status string) error
	UpdateItemSubscriptionNextPayment(ctx context.Context, subscriptionID string, next time.Time) error
}

type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

// CreateOrderWithShipping inserts the order and, when set, its shipping row
// in a single transaction.
func (r *GormOrderRepository) CreateOrderWithShipping(ctx context.Context, order *models.Order) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		shipping := order.Shipping
		if err := tx.Omit("Shipping").Create(order).Error; err != nil {
			return err
		}
		if shipping == nil {
			return nil
		}
		shipping.OrderID = order.ID
		return tx.Create(shipping).Error
	}))
}

func (r *GormOrderRepository) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID).Delete(&models.OrderShipping{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", orderID).Delete(&models.Order{}).Error
	}))
}

func (r *GormOrderRepository) CreateOrderStripe(ctx context.Context, link *models.OrderStripe) error {
	return translate(r.db.WithContext(ctx).Create(link).Error)
}

func (r *GormOrderRepository) DeleteOrderStripe(ctx context.Context, orderID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.OrderStripe{}).Error)
}

func (r *GormOrderRepository) FindOrderStripeBySessionID(ctx context.Context, sessionID string) (*models.OrderStripe, error) {
	var link models.OrderStripe
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&link).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

func (r *GormOrderRepository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&items).Error)
}

func (r *GormOrderRepository) DeleteOrderItems(ctx context.Context, orderID uuid.UUID) error {
	return translate(r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.OrderItem{}).Error)
}

func (r *GormOrderRepository) CreateItemStripes(ctx context.Context, links []models.OrderItemStripe) error {
	if len(links) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&links).Error)
}

func (r *GormOrderRepository) DeleteItemStripes(ctx context.Context, itemIDs []uuid.UUID) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Where("order_item_id IN ?", itemIDs).Delete(&models.OrderItemStripe{}).Error)
}

func (r *GormOrderRepository) CreateItemSubscriptions(ctx context.Context, subs []models.OrderItemSubscription) error {
	if len(subs) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&subs).Error)
}

func (r *GormOrderRepository) UpdateItemSubscriptionStatus(ctx context.Context, subscriptionID, status string) error {
	return translate(r.db.WithContext(ctx).
		Model(&models.OrderItemSubscription{}).
		Where("subscription_id = ?", subscriptionID).
		Update("status", status).Error)
}

func (r *GormOrderRepository) UpdateItemSubscriptionNextPayment(ctx context.Context, subscriptionID string, next time.Time) error {
	return translate(r.db.WithContext(ctx).
		Model(&models.OrderItemSubscription{}).
		Where("subscription_id = ?", subscriptionID).
		Update("next_payment_date", next).Error)
}
