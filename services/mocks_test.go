package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"checkout-service/models"
	"checkout-service/repository"
	"checkout-service/sender"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
)

// ---- gateway ----

type fakeGateway struct {
	mu sync.Mutex

	createSessionFn func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	sessions        map[string]*stripe.CheckoutSession
	prices          map[string]*stripe.Price
	products        map[string]*stripe.Product
	shippingRates   map[string]*stripe.ShippingRate
	subscriptions   map[string]*stripe.Subscription
	intents         map[string]*stripe.PaymentIntent

	getProductErr      error
	createProductErr   error
	createPriceErrs    map[string]error // keyed by nickname ("" for regular)
	updateCustomerErr  error
	deactivateLinkErr  error
	getSubscriptionErr error

	createSessionCalls  []*stripe.CheckoutSessionParams
	expiredSessions     []string
	priceLookups        []string
	createdPrices       []*stripe.PriceParams
	createdProducts     []*stripe.ProductParams
	customerUpdates     []string
	deactivatedLinks    []string
	shippingRateLookups []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions:        map[string]*stripe.CheckoutSession{},
		prices:          map[string]*stripe.Price{},
		products:        map[string]*stripe.Product{},
		shippingRates:   map[string]*stripe.ShippingRate{},
		subscriptions:   map[string]*stripe.Subscription{},
		intents:         map[string]*stripe.PaymentIntent{},
		createPriceErrs: map[string]error{},
	}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	g.mu.Lock()
	g.createSessionCalls = append(g.createSessionCalls, p)
	g.mu.Unlock()
	if g.createSessionFn != nil {
		return g.createSessionFn(p)
	}
	return &stripe.CheckoutSession{ID: "cs_test", URL: "https://checkout.example/cs_test"}, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, id string) (*stripe.CheckoutSession, error) {
	if s, ok := g.sessions[id]; ok {
		return s, nil
	}
	return nil, errors.New("no such session")
}

func (g *fakeGateway) ExpireCheckoutSession(_ context.Context, id string) error {
	g.expiredSessions = append(g.expiredSessions, id)
	return nil
}

func (g *fakeGateway) GetPrice(_ context.Context, id string) (*stripe.Price, error) {
	g.priceLookups = append(g.priceLookups, id)
	if p, ok := g.prices[id]; ok {
		return p, nil
	}
	return nil, errors.New("no such price")
}

func (g *fakeGateway) CreatePrice(_ context.Context, p *stripe.PriceParams) (*stripe.Price, error) {
	nick := ""
	if p.Nickname != nil {
		nick = *p.Nickname
	}
	if err := g.createPriceErrs[nick]; err != nil {
		return nil, err
	}
	g.createdPrices = append(g.createdPrices, p)
	return &stripe.Price{ID: "price_new_" + nick + "_" + uuid.NewString()[:8]}, nil
}

func (g *fakeGateway) GetProduct(_ context.Context, id string) (*stripe.Product, error) {
	if g.getProductErr != nil {
		return nil, g.getProductErr
	}
	if p, ok := g.products[id]; ok {
		return p, nil
	}
	return nil, errors.New("no such product")
}

func (g *fakeGateway) CreateProduct(_ context.Context, p *stripe.ProductParams) (*stripe.Product, error) {
	if g.createProductErr != nil {
		return nil, g.createProductErr
	}
	g.createdProducts = append(g.createdProducts, p)
	return &stripe.Product{ID: "prod_new"}, nil
}

func (g *fakeGateway) GetShippingRate(_ context.Context, id string) (*stripe.ShippingRate, error) {
	g.shippingRateLookups = append(g.shippingRateLookups, id)
	if r, ok := g.shippingRates[id]; ok {
		return r, nil
	}
	return nil, errors.New("no such shipping rate")
}

func (g *fakeGateway) UpdateCustomer(_ context.Context, id string, _ *stripe.CustomerParams) error {
	g.customerUpdates = append(g.customerUpdates, id)
	return g.updateCustomerErr
}

func (g *fakeGateway) GetPaymentIntent(_ context.Context, id string) (*stripe.PaymentIntent, error) {
	if pi, ok := g.intents[id]; ok {
		return pi, nil
	}
	return nil, errors.New("no such payment intent")
}

func (g *fakeGateway) DeactivatePaymentLink(_ context.Context, id string) error {
	g.deactivatedLinks = append(g.deactivatedLinks, id)
	return g.deactivateLinkErr
}

func (g *fakeGateway) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	if g.getSubscriptionErr != nil {
		return nil, g.getSubscriptionErr
	}
	if s, ok := g.subscriptions[id]; ok {
		return s, nil
	}
	return nil, errors.New("no such subscription")
}

func (g *fakeGateway) ConstructEvent(_ []byte, _ string) (stripe.Event, error) {
	return stripe.Event{}, errors.New("not used")
}

// ---- order store ----

// memOrderStore keeps rows in memory and records every call so saga tests can
// check exactly which creates and deletes happened.
type memOrderStore struct {
	calls []string

	failOn map[string]error
	// blockOn names a create call that waits for the context to end.
	blockOn string

	orders        map[uuid.UUID]*models.Order
	shippings     map[uuid.UUID]*models.OrderShipping
	stripes       map[uuid.UUID]*models.OrderStripe
	items         []models.OrderItem
	itemStripes   []models.OrderItemStripe
	subscriptions []models.OrderItemSubscription

	nextPayment map[string]time.Time
	subStatus   map[string]string
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{
		failOn:      map[string]error{},
		orders:      map[uuid.UUID]*models.Order{},
		shippings:   map[uuid.UUID]*models.OrderShipping{},
		stripes:     map[uuid.UUID]*models.OrderStripe{},
		nextPayment: map[string]time.Time{},
		subStatus:   map[string]string{},
	}
}

func (m *memOrderStore) record(call string) error {
	m.calls = append(m.calls, call)
	return m.failOn[call]
}

func (m *memOrderStore) CreateOrderWithShipping(_ context.Context, o *models.Order) error {
	if err := m.record("CreateOrderWithShipping"); err != nil {
		return err
	}
	m.orders[o.ID] = o
	if o.Shipping != nil {
		m.shippings[o.ID] = o.Shipping
	}
	return nil
}

func (m *memOrderStore) DeleteOrder(_ context.Context, id uuid.UUID) error {
	if err := m.record("DeleteOrder"); err != nil {
		return err
	}
	delete(m.orders, id)
	delete(m.shippings, id)
	return nil
}

func (m *memOrderStore) CreateOrderStripe(_ context.Context, l *models.OrderStripe) error {
	if err := m.record("CreateOrderStripe"); err != nil {
		return err
	}
	m.stripes[l.OrderID] = l
	return nil
}

func (m *memOrderStore) DeleteOrderStripe(_ context.Context, orderID uuid.UUID) error {
	if err := m.record("DeleteOrderStripe"); err != nil {
		return err
	}
	delete(m.stripes, orderID)
	return nil
}

func (m *memOrderStore) FindOrderStripeBySessionID(_ context.Context, sessionID string) (*models.OrderStripe, error) {
	for _, l := range m.stripes {
		if l.SessionID == sessionID {
			return l, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memOrderStore) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if err := m.record("CreateOrderItems"); err != nil {
		return err
	}
	if m.blockOn == "CreateOrderItems" {
		<-ctx.Done()
		return ctx.Err()
	}
	m.items = append(m.items, items...)
	return nil
}

func (m *memOrderStore) DeleteOrderItems(_ context.Context, orderID uuid.UUID) error {
	if err := m.record("DeleteOrderItems"); err != nil {
		return err
	}
	kept := m.items[:0]
	for _, it := range m.items {
		if it.OrderID != orderID {
			kept = append(kept, it)
		}
	}
	m.items = kept
	return nil
}

func (m *memOrderStore) CreateItemStripes(_ context.Context, links []models.OrderItemStripe) error {
	if err := m.record("CreateItemStripes"); err != nil {
		return err
	}
	m.itemStripes = append(m.itemStripes, links...)
	return nil
}

func (m *memOrderStore) DeleteItemStripes(_ context.Context, itemIDs []uuid.UUID) error {
	if err := m.record("DeleteItemStripes"); err != nil {
		return err
	}
	drop := map[uuid.UUID]bool{}
	for _, id := range itemIDs {
		drop[id] = true
	}
	kept := m.itemStripes[:0]
	for _, l := range m.itemStripes {
		if !drop[l.OrderItemID] {
			kept = append(kept, l)
		}
	}
	m.itemStripes = kept
	return nil
}

func (m *memOrderStore) CreateItemSubscriptions(_ context.Context, subs []models.OrderItemSubscription) error {
	if err := m.record("CreateItemSubscriptions"); err != nil {
		return err
	}
	m.subscriptions = append(m.subscriptions, subs...)
	return nil
}

func (m *memOrderStore) UpdateItemSubscriptionStatus(_ context.Context, subID, status string) error {
	m.subStatus[subID] = status
	return m.record("UpdateItemSubscriptionStatus")
}

func (m *memOrderStore) UpdateItemSubscriptionNextPayment(_ context.Context, subID string, next time.Time) error {
	m.nextPayment[subID] = next
	return m.record("UpdateItemSubscriptionNextPayment")
}

func (m *memOrderStore) rowCount() int {
	return len(m.orders) + len(m.shippings) + len(m.stripes) + len(m.items) + len(m.itemStripes) + len(m.subscriptions)
}

// ---- other repositories ----

type fakeProducts struct {
	byID          map[uuid.UUID]*models.Product
	updated       *models.ProvisionResult
	updateErr     error
	findErr       error
	byStripeCalls int
}

func (f *fakeProducts) FindByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeProducts) FindByStripeProductID(_ context.Context, sid string) (*models.Product, error) {
	f.byStripeCalls++
	for _, p := range f.byID {
		if p.StripeProductID == sid {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeProducts) UpdateStripeIDs(_ context.Context, _ uuid.UUID, ids models.ProvisionResult) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = &ids
	return nil
}

type fakeUsers struct {
	byID    map[uuid.UUID]*models.User
	findErr error
	linked  map[uuid.UUID]string
	setErr  error
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byID: map[uuid.UUID]*models.User{}, linked: map[uuid.UUID]string{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) FindByStripeCustomerID(_ context.Context, cid string) (*models.User, error) {
	for _, u := range f.byID {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == cid {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) SetStripeCustomerID(_ context.Context, id uuid.UUID, cid string) error {
	f.linked[id] = cid
	return f.setErr
}

type fakeCarts struct {
	items   []models.CartItem
	listErr error
	cleared []uuid.UUID
}

func (f *fakeCarts) ListByUser(_ context.Context, _ uuid.UUID) ([]models.CartItem, error) {
	return f.items, f.listErr
}

func (f *fakeCarts) ClearByUser(_ context.Context, id uuid.UUID) error {
	f.cleared = append(f.cleared, id)
	return nil
}

type fakeAddresses struct {
	def         *models.ShippingAddress
	findErr     error
	createErr   error
	createCalls int
}

func (f *fakeAddresses) FindDefaultByUser(_ context.Context, _ uuid.UUID) (*models.ShippingAddress, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.def == nil {
		return nil, repository.ErrNotFound
	}
	return f.def, nil
}

func (f *fakeAddresses) Create(_ context.Context, a *models.ShippingAddress) error {
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	f.def = a
	return nil
}

type fakePayments struct {
	rows          []models.SubscriptionPayment
	createErr     error
	updateErr     error
	updateCalls   int
	updatedStatus string
}

func (f *fakePayments) Create(_ context.Context, p *models.SubscriptionPayment) error {
	if f.createErr != nil {
		return f.createErr
	}
	if p.InvoiceID != nil {
		for _, row := range f.rows {
			if row.InvoiceID != nil && *row.InvoiceID == *p.InvoiceID {
				return repository.ErrDuplicate
			}
		}
	}
	f.rows = append(f.rows, *p)
	return nil
}

// UpdateLatestStatus treats the last appended row as the latest one.
func (f *fakePayments) UpdateLatestStatus(_ context.Context, subID string, status string) error {
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].SubscriptionID == subID {
			f.rows[i].Status = status
			f.updatedStatus = status
			return nil
		}
	}
	return repository.ErrNotFound
}

// ---- mail, SNS, metrics ----

type fakeMailer struct {
	confirmations []sender.OrderMail
	requests      []sender.OrderMail
	subRequests   []sender.SubscriptionMail
	err           error
}

func (f *fakeMailer) SendOrderConfirmation(_ context.Context, m sender.OrderMail) error {
	f.confirmations = append(f.confirmations, m)
	return f.err
}

func (f *fakeMailer) SendPaymentRequest(_ context.Context, m sender.OrderMail) error {
	f.requests = append(f.requests, m)
	return f.err
}

func (f *fakeMailer) SendSubscriptionPaymentRequest(_ context.Context, m sender.SubscriptionMail) error {
	f.subRequests = append(f.subRequests, m)
	return f.err
}

type fakeSNS struct{ messages [][]byte }

func (f *fakeSNS) Publish(_ context.Context, _ string, msg []byte) error {
	f.messages = append(f.messages, msg)
	return nil
}

type fakeMetrics struct{ counts map[string]int }

func (f *fakeMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[name]++
	return nil
}
