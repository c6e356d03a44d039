package providers

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"
)

// PaymentGateway is the subset of the Stripe API the checkout pipeline uses.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	// GetCheckoutSession returns the session with line items expanded.
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, id string) error
	GetPrice(ctx context.Context, id string) (*stripe.Price, error)
	CreatePrice(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error)
	GetProduct(ctx context.Context, id string) (*stripe.Product, error)
	CreateProduct(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error)
	GetShippingRate(ctx context.Context, id string) (*stripe.ShippingRate, error)
	UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) error
	// GetPaymentIntent returns the intent with its payment method expanded.
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	DeactivatePaymentLink(ctx context.Context, id string) error
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

// StripeGateway talks to Stripe through a per-instance client; it never
// touches the package-level stripe.Key.
type StripeGateway struct {
	api        *client.API
	webhookKey string
}

func NewStripeGateway(secretKey, webhookKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{api: sc, webhookKey: webhookKey}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return g.api.CheckoutSessions.New(params)
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")
	return g.api.CheckoutSessions.Get(id, params)
}

func (g *StripeGateway) ExpireCheckoutSession(ctx context.Context, id string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	_, err := g.api.CheckoutSessions.Expire(id, params)
	return err
}

func (g *StripeGateway) GetPrice(ctx context.Context, id string) (*stripe.Price, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx
	return g.api.Prices.Get(id, params)
}

func (g *StripeGateway) CreatePrice(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error) {
	params.Context = ctx
	return g.api.Prices.New(params)
}

func (g *StripeGateway) GetProduct(ctx context.Context, id string) (*stripe.Product, error) {
	params := &stripe.ProductParams{}
	params.Context = ctx
	return g.api.Products.Get(id, params)
}

func (g *StripeGateway) CreateProduct(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error) {
	params.Context = ctx
	return g.api.Products.New(params)
}

func (g *StripeGateway) GetShippingRate(ctx context.Context, id string) (*stripe.ShippingRate, error) {
	params := &stripe.ShippingRateParams{}
	params.Context = ctx
	return g.api.ShippingRates.Get(id, params)
}

func (g *StripeGateway) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) error {
	params.Context = ctx
	_, err := g.api.Customers.Update(id, params)
	return err
}

func (g *StripeGateway) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("payment_method")
	return g.api.PaymentIntents.Get(id, params)
}

func (g *StripeGateway) DeactivatePaymentLink(ctx context.Context, id string) error {
	params := &stripe.PaymentLinkParams{Active: stripe.Bool(false)}
	params.Context = ctx
	_, err := g.api.PaymentLinks.Update(id, params)
	return err
}

func (g *StripeGateway) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return g.api.Subscriptions.Get(id, params)
}

// ConstructEvent verifies the Stripe-Signature header against the endpoint secret.
func (g *StripeGateway) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookKey,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("verify webhook signature: %w", err)
	}
	return event, nil
}
