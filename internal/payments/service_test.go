package payments

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gallery-app/internal/apperr"
	"gallery-app/internal/domain/access"
	"gallery-app/internal/domain/catalog"
	"gallery-app/internal/domain/orders"
	"gallery-app/internal/domain/users"
	stripeinfra "gallery-app/internal/infra/stripe"
	"gallery-app/internal/ledger"
	"gallery-app/internal/logger"
	"gallery-app/internal/testutil"
	"gallery-app/internal/workflow"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCheckout(ctx context.Context, in stripeinfra.CheckoutInput) (*stripeinfra.Checkout, error) {
	args := m.Called(ctx, in)
	co, _ := args.Get(0).(*stripeinfra.Checkout)
	return co, args.Error(1)
}

type env struct {
	db    *gorm.DB
	svc   *Service
	gw    *mockGateway
	buyer *users.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	gate := access.MustNewGate()
	log := logger.Discard()
	wf := workflow.NewController(db, gate, workflow.Options{Timeout: 5 * time.Second, Logger: log})
	l := ledger.New(db, gate, wf, ledger.Options{Timeout: 5 * time.Second, Logger: log})
	gw := &mockGateway{}
	return &env{
		db:    db,
		svc:   NewService(l, gate, gw, log),
		gw:    gw,
		buyer: testutil.CreateUser(t, db, "buyer", users.RoleUser),
	}
}

func (e *env) pending(t *testing.T) (*catalog.Artwork, *orders.Order) {
	t.Helper()
	art := testutil.CreateArtwork(t, e.db, "Dawn", 120, testutil.WithArtist("Ada"), testutil.WithStatus(catalog.StatusReserved))
	return art, testutil.CreateOrder(t, e.db, e.buyer, art, orders.StatusPending)
}

func TestStartCheckout(t *testing.T) {
	e := newEnv(t)
	_, o := e.pending(t)

	e.gw.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(in stripeinfra.CheckoutInput) bool {
		return in.OrderID == o.ID && in.Title == "Dawn by Ada" && in.BuyerEmail == "buyer@example.com" && in.Amount.IntPart() == 120
	})).Return(&stripeinfra.Checkout{SessionID: "cs_1", URL: "https://pay.test/cs_1"}, nil).Once()

	co, err := e.svc.StartCheckout(context.Background(), testutil.CallerFor(e.buyer), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/cs_1", co.URL)
	e.gw.AssertExpectations(t)
}

func TestStartCheckout_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, o := e.pending(t)
	done := testutil.CreateArtwork(t, e.db, "Sold", 10, testutil.WithStatus(catalog.StatusSold))
	completed := testutil.CreateOrder(t, e.db, e.buyer, done, orders.StatusCompleted)
	stranger := testutil.CreateUser(t, e.db, "stranger", users.RoleUser)

	_, err := e.svc.StartCheckout(ctx, testutil.CallerFor(stranger), o.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = e.svc.StartCheckout(ctx, testutil.CallerFor(e.buyer), completed.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	e.gw.On("CreateCheckout", mock.Anything, mock.Anything).Return(nil, errors.New("stripe down")).Once()
	_, err = e.svc.StartCheckout(ctx, testutil.CallerFor(e.buyer), o.ID)
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))

	unconfigured := NewService(nil, access.MustNewGate(), nil, logger.Discard())
	_, err = unconfigured.StartCheckout(ctx, testutil.CallerFor(e.buyer), o.ID)
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))
}

func TestSettle_Paid(t *testing.T) {
	e := newEnv(t)
	art, o := e.pending(t)
	ev := &stripeinfra.Event{ID: "evt_1", Kind: stripeinfra.EventPaid, OrderID: o.ID, PaymentIntentID: "pi_1"}

	require.NoError(t, e.svc.Settle(context.Background(), ev))
	stored := testutil.ReloadOrder(t, e.db, o.ID)
	assert.Equal(t, orders.StatusCompleted, stored.Status)
	require.NotNil(t, stored.TransactionRef)
	assert.Equal(t, "pi_1", *stored.TransactionRef)
	assert.Equal(t, PaymentMethod, stored.PaymentMethod)
	assert.Equal(t, catalog.StatusSold, testutil.ReloadArtwork(t, e.db, art.ID).Status)

	// redelivery is a no-op
	require.NoError(t, e.svc.Settle(context.Background(), ev))
	assert.Equal(t, 2, testutil.ReloadOrder(t, e.db, o.ID).Version)
}

func TestSettle_Failed(t *testing.T) {
	e := newEnv(t)
	art, o := e.pending(t)

	err := e.svc.Settle(context.Background(), &stripeinfra.Event{ID: "evt_2", Kind: stripeinfra.EventFailed, OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, testutil.ReloadOrder(t, e.db, o.ID).Status)
	assert.Equal(t, catalog.StatusAvailable, testutil.ReloadArtwork(t, e.db, art.ID).Status)
}

func TestSettle_Ignored(t *testing.T) {
	e := newEnv(t)
	_, o := e.pending(t)
	ctx := context.Background()

	require.NoError(t, e.svc.Settle(ctx, &stripeinfra.Event{Kind: stripeinfra.EventIgnored, OrderID: o.ID}))
	require.NoError(t, e.svc.Settle(ctx, &stripeinfra.Event{Kind: stripeinfra.EventPaid}))
	require.NoError(t, e.svc.Settle(ctx, &stripeinfra.Event{Kind: stripeinfra.EventPaid, OrderID: "00000000-0000-0000-0000-000000000000"}))
	assert.Equal(t, orders.StatusPending, testutil.ReloadOrder(t, e.db, o.ID).Status)
}

func TestSettle_DuplicatePaymentIntent(t *testing.T) {
	e := newEnv(t)
	_, first := e.pending(t)
	_, second := e.pending(t)
	ctx := context.Background()

	require.NoError(t, e.svc.Settle(ctx, &stripeinfra.Event{Kind: stripeinfra.EventPaid, OrderID: first.ID, PaymentIntentID: "pi_dup"}))
	err := e.svc.Settle(ctx, &stripeinfra.Event{Kind: stripeinfra.EventPaid, OrderID: second.ID, PaymentIntentID: "pi_dup"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, orders.StatusPending, testutil.ReloadOrder(t, e.db, second.ID).Status)
}

func TestSettle_PaidAfterExpiry(t *testing.T) {
	e := newEnv(t)
	art, o := e.pending(t)
	ctx := context.Background()

	require.NoError(t, e.svc.Settle(ctx, &stripeinfra.Event{ID: "evt_1", Kind: stripeinfra.EventFailed, OrderID: o.ID, SessionID: "cs_1"}))
	require.Equal(t, orders.StatusCancelled, testutil.ReloadOrder(t, e.db, o.ID).Status)

	paid := &stripeinfra.Event{ID: "evt_2", Kind: stripeinfra.EventPaid, OrderID: o.ID, SessionID: "cs_2", PaymentIntentID: "pi_1"}
	require.NoError(t, e.svc.Settle(ctx, paid))

	stored := testutil.ReloadOrder(t, e.db, o.ID)
	assert.Equal(t, orders.StatusCompleted, stored.Status)
	require.NotNil(t, stored.TransactionRef)
	assert.Equal(t, "pi_1", *stored.TransactionRef)
	assert.Equal(t, catalog.StatusSold, testutil.ReloadArtwork(t, e.db, art.ID).Status)

	// a late expiry of the first session leaves the paid order alone
	require.NoError(t, e.svc.Settle(ctx, &stripeinfra.Event{ID: "evt_3", Kind: stripeinfra.EventFailed, OrderID: o.ID, SessionID: "cs_1"}))
	assert.Equal(t, orders.StatusCompleted, testutil.ReloadOrder(t, e.db, o.ID).Status)
}

func TestSettle_PaidAfterArtworkResold(t *testing.T) {
	e := newEnv(t)
	var logs bytes.Buffer
	e.svc.log = slog.New(slog.NewJSONHandler(&logs, nil))
	art, o := e.pending(t)
	ctx := context.Background()

	require.NoError(t, e.svc.Settle(ctx, &stripeinfra.Event{ID: "evt_1", Kind: stripeinfra.EventFailed, OrderID: o.ID}))
	other := testutil.CreateUser(t, e.db, "other", users.RoleUser)
	testutil.CreateOrder(t, e.db, other, testutil.ReloadArtwork(t, e.db, art.ID), orders.StatusPending)

	require.NoError(t, e.svc.Settle(ctx, &stripeinfra.Event{ID: "evt_2", Kind: stripeinfra.EventPaid, OrderID: o.ID, PaymentIntentID: "pi_1"}))
	assert.Equal(t, orders.StatusCancelled, testutil.ReloadOrder(t, e.db, o.ID).Status)
	assert.Contains(t, logs.String(), `"level":"ERROR"`)
	assert.Contains(t, logs.String(), "refund required")
	assert.Contains(t, logs.String(), "pi_1")
}

func TestSettle_SecondPaymentForCompletedOrder(t *testing.T) {
	e := newEnv(t)
	var logs bytes.Buffer
	e.svc.log = slog.New(slog.NewJSONHandler(&logs, nil))
	_, o := e.pending(t)
	ctx := context.Background()

	require.NoError(t, e.svc.Settle(ctx, &stripeinfra.Event{ID: "evt_1", Kind: stripeinfra.EventPaid, OrderID: o.ID, PaymentIntentID: "pi_1"}))
	require.NoError(t, e.svc.Settle(ctx, &stripeinfra.Event{ID: "evt_2", Kind: stripeinfra.EventPaid, OrderID: o.ID, PaymentIntentID: "pi_2"}))

	stored := testutil.ReloadOrder(t, e.db, o.ID)
	require.NotNil(t, stored.TransactionRef)
	assert.Equal(t, "pi_1", *stored.TransactionRef)
	assert.Contains(t, logs.String(), "pi_2")
	assert.Contains(t, logs.String(), "refund required")
}
