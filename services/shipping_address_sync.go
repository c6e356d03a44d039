package services

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/models"
	"checkout-service/providers"
	"checkout-service/repository"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

// ShippingAddressSync gives a user a default shipping address from their
// first checkout and mirrors it onto the Stripe customer.
type ShippingAddressSync struct {
	addresses repository.ShippingAddressRepository
	gateway   providers.PaymentGateway
	logger    *zap.Logger
}

func NewShippingAddressSync(addresses repository.ShippingAddressRepository, gateway providers.PaymentGateway, logger *zap.Logger) *ShippingAddressSync {
	return &ShippingAddressSync{addresses: addresses, gateway: gateway, logger: logger}
}

// Sync is a no-op when the session carries no customer or address, when the
// user already has a default, or when a concurrent checkout won the insert.
func (s *ShippingAddressSync) Sync(ctx context.Context, userID uuid.UUID, sess *stripe.CheckoutSession) error {
	if userID == uuid.Nil {
		return badRequest(CodeNoUserID)
	}
	if sess.Customer == nil || sess.Customer.ID == "" || sess.CustomerDetails == nil || sess.CustomerDetails.Address == nil {
		return nil
	}

	_, err := s.addresses.FindDefaultByUser(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return withCode(CodeShippingAddressCreateFailed, fmt.Errorf("lookup default address: %w", err))
	}

	cd := sess.CustomerDetails
	snap := snapshotAddress(cd.Name, cd.Phone, cd.Address)
	addr := &models.ShippingAddress{
		ID:         uuid.New(),
		UserID:     userID,
		Name:       snap.Name,
		PostalCode: snap.PostalCode,
		State:      snap.State,
		City:       snap.City,
		Line1:      snap.Line1,
		Line2:      snap.Line2,
		Country:    snap.Country,
		Phone:      snap.Phone,
		IsDefault:  true,
	}
	if err := s.addresses.Create(ctx, addr); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.logger.Info("Default shipping address created concurrently", zap.String("user_id", userID.String()))
			return nil
		}
		return withCode(CodeShippingAddressCreateFailed, err)
	}

	// The local row stays even if this fails; the next checkout prefills from
	// the gateway's own collected address instead.
	params := &stripe.CustomerParams{
		Shipping: &stripe.CustomerShippingParams{
			Name:  stripe.String(snap.Name),
			Phone: stripe.String(snap.Phone),
			Address: &stripe.AddressParams{
				PostalCode: stripe.String(snap.PostalCode),
				State:      stripe.String(snap.State),
				City:       stripe.String(snap.City),
				Line1:      stripe.String(snap.Line1),
				Line2:      stripe.String(snap.Line2),
				Country:    stripe.String(snap.Country),
			},
		},
	}
	if err := s.gateway.UpdateCustomer(ctx, sess.Customer.ID, params); err != nil {
		return withCode(CodeCustomerUpdateFailed, err)
	}

	s.logger.Info("Default shipping address saved",
		zap.String("user_id", userID.String()),
		zap.String("customer_id", sess.Customer.ID),
	)
	return nil
}
