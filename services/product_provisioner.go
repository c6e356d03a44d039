package services

import (
	"context"
	"errors"
	"net/http"

	"checkout-service/models"
	"checkout-service/providers"
	"checkout-service/repository"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

const metaProductID = "product_id"

// ProductProvisioner mirrors a local product's prices into Stripe.
type ProductProvisioner struct {
	products repository.ProductRepository
	gateway  providers.PaymentGateway
	currency string
	logger   *zap.Logger
}

func NewProductProvisioner(products repository.ProductRepository, gateway providers.PaymentGateway, currency string, logger *zap.Logger) *ProductProvisioner {
	return &ProductProvisioner{products: products, gateway: gateway, currency: currency, logger: logger}
}

// Provision creates the gateway product (once), a regular price, an optional
// sale price and one recurring price per subscription tier, then stores the
// ids on the product. A failing tier keeps its previous id; any other failure
// aborts with nothing stored.
func (p *ProductProvisioner) Provision(ctx context.Context, productID uuid.UUID) (*models.ProvisionResult, *ServiceError) {
	product, err := p.products.FindByID(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newServiceError(http.StatusNotFound, CodeProductNotFound, err)
	}
	if err != nil {
		return nil, internal(CodeProductCreateFailed, err)
	}
	log := p.logger.With(zap.String("product_id", productID.String()))

	result := &models.ProvisionResult{StripeProductID: product.StripeProductID}
	if result.StripeProductID == "" {
		params := &stripe.ProductParams{
			Name: stripe.String(product.Name),
		}
		if product.Description != "" {
			params.Description = stripe.String(product.Description)
		}
		params.AddMetadata(metaProductID, product.ID.String())
		gp, err := p.gateway.CreateProduct(ctx, params)
		if err != nil {
			log.Error("Gateway product creation failed", zap.Error(err))
			return nil, upstream(CodeProductCreateFailed, err)
		}
		result.StripeProductID = gp.ID
	}

	regular, err := p.createPrice(ctx, result.StripeProductID, product.Price, nil, "")
	if err != nil {
		log.Error("Regular price creation failed", zap.Error(err))
		return nil, upstream(CodePriceCreateFailed, err)
	}
	result.StripePriceID = regular.ID

	if product.SalePrice != nil {
		sale, err := p.createPrice(ctx, result.StripeProductID, *product.SalePrice, nil, "sale")
		if err != nil {
			log.Error("Sale price creation failed", zap.Error(err))
			return nil, upstream(CodePriceCreateFailed, err)
		}
		result.StripeSalePriceID = sale.ID
	}

	if product.IsSubscription && len(product.SubscriptionTiers) > 0 {
		result.SubscriptionPriceIDs = make([]string, len(product.SubscriptionTiers))
		for i, tier := range product.SubscriptionTiers {
			if i < len(product.SubscriptionPriceIDs) {
				result.SubscriptionPriceIDs[i] = product.SubscriptionPriceIDs[i]
			}
			t := tier
			price, err := p.createPrice(ctx, result.StripeProductID, t.Amount, &t, t.Nickname)
			if err != nil {
				log.Warn("Skipping subscription tier",
					zap.String("interval", t.Interval),
					zap.Int64("interval_count", t.IntervalCount),
					zap.Error(err),
				)
				continue
			}
			result.SubscriptionPriceIDs[i] = price.ID
		}
	}

	if err := p.products.UpdateStripeIDs(ctx, product.ID, *result); err != nil {
		log.Error("Failed to store gateway ids", zap.Error(err))
		return nil, internal(CodeProductCreateFailed, err)
	}
	log.Info("Product provisioned",
		zap.String("stripe_product_id", result.StripeProductID),
		zap.String("stripe_price_id", result.StripePriceID),
	)
	return result, nil
}

func (p *ProductProvisioner) createPrice(ctx context.Context, gatewayProductID string, amount int64, tier *models.SubscriptionTier, nickname string) (*stripe.Price, error) {
	params := &stripe.PriceParams{
		Product:    stripe.String(gatewayProductID),
		Currency:   stripe.String(p.currency),
		UnitAmount: stripe.Int64(amount),
	}
	if nickname != "" {
		params.Nickname = stripe.String(nickname)
	}
	if tier != nil {
		count := tier.IntervalCount
		if count <= 0 {
			count = 1
		}
		params.Recurring = &stripe.PriceRecurringParams{
			Interval:      stripe.String(tier.Interval),
			IntervalCount: stripe.Int64(count),
		}
	}
	return p.gateway.CreatePrice(ctx, params)
}
