package services

import (
	"context"
	"errors"
	"testing"

	"checkout-service/models"
	"checkout-service/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

func addressSession() *stripe.CheckoutSession {
	return &stripe.CheckoutSession{
		ID:       "cs_addr",
		Customer: &stripe.Customer{ID: "cus_1"},
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{
			Name:    "Hanako",
			Address: &stripe.Address{PostalCode: "530-0001", City: "Osaka", Line1: "2-2", Country: "JP"},
		},
	}
}

func TestSync_CreatesDefaultAndPushesToGateway(t *testing.T) {
	addrs := &fakeAddresses{}
	gw := newFakeGateway()
	s := NewShippingAddressSync(addrs, gw, zap.NewNop())

	require.NoError(t, s.Sync(context.Background(), uuid.New(), addressSession()))
	require.NotNil(t, addrs.def)
	assert.True(t, addrs.def.IsDefault)
	assert.Equal(t, "Osaka", addrs.def.City)
	assert.Equal(t, "", addrs.def.State)
	assert.Equal(t, "", addrs.def.Line2)
	assert.Equal(t, []string{"cus_1"}, gw.customerUpdates)
}

func TestSync_ExistingDefaultIsNoopEveryTime(t *testing.T) {
	addrs := &fakeAddresses{def: &models.ShippingAddress{ID: uuid.New(), IsDefault: true}}
	gw := newFakeGateway()
	s := NewShippingAddressSync(addrs, gw, zap.NewNop())
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Sync(context.Background(), userID, addressSession()))
	}
	assert.Zero(t, addrs.createCalls)
	assert.Empty(t, gw.customerUpdates)
}

func TestSync_NoCustomerOrAddressIsNoop(t *testing.T) {
	addrs := &fakeAddresses{}
	gw := newFakeGateway()
	s := NewShippingAddressSync(addrs, gw, zap.NewNop())

	noCustomer := addressSession()
	noCustomer.Customer = nil
	noAddress := addressSession()
	noAddress.CustomerDetails.Address = nil

	require.NoError(t, s.Sync(context.Background(), uuid.New(), noCustomer))
	require.NoError(t, s.Sync(context.Background(), uuid.New(), noAddress))
	assert.Zero(t, addrs.createCalls)
	assert.Empty(t, gw.customerUpdates)
}

func TestSync_MissingUser(t *testing.T) {
	addrs := &fakeAddresses{}
	s := NewShippingAddressSync(addrs, newFakeGateway(), zap.NewNop())

	err := s.Sync(context.Background(), uuid.Nil, addressSession())
	assert.Equal(t, CodeNoUserID, CodeOf(err))
	assert.Zero(t, addrs.createCalls)
}

func TestSync_ConcurrentDefaultInsertIsNoop(t *testing.T) {
	addrs := &fakeAddresses{createErr: repository.ErrDuplicate}
	gw := newFakeGateway()
	s := NewShippingAddressSync(addrs, gw, zap.NewNop())

	require.NoError(t, s.Sync(context.Background(), uuid.New(), addressSession()))
	assert.Equal(t, 1, addrs.createCalls)
	assert.Empty(t, gw.customerUpdates)
}

func TestSync_Failures(t *testing.T) {
	addrs := &fakeAddresses{createErr: errors.New("db down")}
	s := NewShippingAddressSync(addrs, newFakeGateway(), zap.NewNop())
	err := s.Sync(context.Background(), uuid.New(), addressSession())
	assert.Equal(t, CodeShippingAddressCreateFailed, CodeOf(err))

	addrs = &fakeAddresses{}
	gw := newFakeGateway()
	gw.updateCustomerErr = errors.New("stripe down")
	s = NewShippingAddressSync(addrs, gw, zap.NewNop())
	err = s.Sync(context.Background(), uuid.New(), addressSession())
	assert.Equal(t, CodeCustomerUpdateFailed, CodeOf(err))
	assert.NotNil(t, addrs.def, "local address stays after gateway failure")
}
