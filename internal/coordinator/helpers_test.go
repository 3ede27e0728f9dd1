package coordinator_test

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator"
	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
	inventoryservice "github.com/jcmexdev/storefront-sagas/internal/inventory-service"
	"github.com/jcmexdev/storefront-sagas/internal/notify"
	orderapp "github.com/jcmexdev/storefront-sagas/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentapp "github.com/jcmexdev/storefront-sagas/internal/payment-service/app"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/gateway/vnpay"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/linktoken"
	"github.com/jcmexdev/storefront-sagas/internal/storage/sqlstore"
)

type fakeGateway struct {
	mu        sync.Mutex
	calls     int
	refundErr error
	query     *vnpay.QueryResult
	queryErr  error
}

func (g *fakeGateway) BuildPaymentURL(context.Context, vnpay.PaymentIntent) (string, error) {
	return "https://pay.example/redirect", nil
}

func (g *fakeGateway) VerifyCallback(url.Values) vnpay.CallbackResult { return vnpay.CallbackResult{} }

func (g *fakeGateway) Refund(_ context.Context, in vnpay.RefundRequest) (*vnpay.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &vnpay.RefundResult{ResponseCode: "00", TransactionNo: "R" + in.TransactionNo, Amount: in.Amount}, nil
}

func (g *fakeGateway) QueryTransaction(context.Context, vnpay.QueryRequest) (*vnpay.QueryResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	if g.query == nil {
		return &vnpay.QueryResult{}, nil
	}
	q := *g.query
	return &q, nil
}

func (g *fakeGateway) BankList(context.Context) ([]vnpay.Bank, error) { return nil, nil }

func (g *fakeGateway) refundCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type mailbox struct {
	mu        sync.Mutex
	refunds   []notify.RefundMessage
	refundErr error
}

func (m *mailbox) PaymentSucceeded(context.Context, notify.PaymentMessage) error { return nil }

func (m *mailbox) RefundConfirmed(_ context.Context, msg notify.RefundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds = append(m.refunds, msg)
	return m.refundErr
}

func (m *mailbox) sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.refunds)
}

// flakyOrders fails CancelWithRestock while cancelErr is set.
type flakyOrders struct {
	*orderapp.Service
	cancelErr error
}

func (f *flakyOrders) CancelWithRestock(ctx context.Context, id string, reason orderdomain.CancelReason) (bool, error) {
	if f.cancelErr != nil {
		return false, f.cancelErr
	}
	return f.Service.CancelWithRestock(ctx, id, reason)
}

// cancelingPayments cancels the caller's context as soon as the gateway has
// returned the money.
type cancelingPayments struct {
	*paymentapp.Service
	cancel context.CancelFunc
}

func (c *cancelingPayments) RefundAtGateway(ctx context.Context, p *paymentdomain.Payment, in paymentapp.RefundInput) (*paymentdomain.RefundReceipt, error) {
	r, err := c.Service.RefundAtGateway(ctx, p, in)
	c.cancel()
	return r, err
}

type memoryLog struct {
	mu      sync.Mutex
	entries []*sagalog.SagaLog
}

func (l *memoryLog) Save(_ context.Context, e *sagalog.SagaLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *memoryLog) statuses() []sagalog.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]sagalog.Status, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Status)
	}
	return out
}

type fixture struct {
	store      *sqlstore.Store
	orders     *flakyOrders
	payments   *paymentapp.Service
	gw         *fakeGateway
	mail       *mailbox
	codec      *linktoken.Codec
	log        *memoryLog
	saga       *coordinator.RefundSaga
	reconciler *coordinator.Reconciler
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlstore.Open("sqlite", filepath.Join(t.TempDir(), "refund.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.UpsertProduct(context.Background(), "p1", "Dune", decimal.NewFromInt(10), 10))

	f := &fixture{
		store: store,
		gw:    &fakeGateway{},
		mail:  &mailbox{},
		codec: linktoken.New("test-secret"),
		log:   &memoryLog{},
		now:   time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.orders = &flakyOrders{Service: orderapp.NewService(store, inventoryservice.NewClient(nil), orderapp.WithClock(clock))}
	f.payments = paymentapp.NewService(store, f.orders, f.gw, f.mail, paymentapp.WithClock(clock))
	f.saga = coordinator.NewRefundSaga(f.orders, f.payments, f.mail,
		coordinator.NewResolver(f.codec, f.orders, 0),
		coordinator.WithClock(clock), coordinator.WithSagaLog(f.log))
	f.reconciler = coordinator.NewReconciler(f.orders, f.payments, f.log, nil)
	return f
}

// paidOrder places an order for two units of p1 and records a payment of
// 500000 VND completed ago before now.
func (f *fixture) paidOrder(t *testing.T, ago time.Duration, method paymentdomain.Method) (*orderdomain.Order, *paymentdomain.Payment) {
	t.Helper()
	ctx := context.Background()
	o, err := f.orders.Place(ctx, orderapp.PlaceOrder{
		PaymentMethod:   string(method),
		Items:           []orderdomain.OrderItem{{ProductID: "p1", Title: "Dune", Quantity: 2, UnitPrice: decimal.NewFromInt(10)}},
		ShippingAddress: orderdomain.ShippingAddress{FullName: "Lan", Email: "lan@example.com"},
	})
	require.NoError(t, err)

	completed := f.now.Add(-ago)
	p := &paymentdomain.Payment{
		ID:            uuid.NewString(),
		OrderID:       o.ID,
		Method:        method,
		Amount:        decimal.NewFromInt(500000),
		Status:        paymentdomain.StatusCompleted,
		TransactionNo: "14012345",
		PaidAt:        &completed,
		CompletedAt:   &completed,
		CreatedAt:     completed,
		UpdatedAt:     completed,
	}
	require.NoError(t, f.store.InsertPayment(ctx, p))
	_, err = f.orders.HandlePaymentCompleted(ctx, o.ID, p.ID)
	require.NoError(t, err)
	return o, p
}

func (f *fixture) insertPayment(t *testing.T, orderID string, status paymentdomain.Status) *paymentdomain.Payment {
	t.Helper()
	p := &paymentdomain.Payment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Method:    paymentdomain.MethodVNPay,
		Amount:    decimal.NewFromInt(500000),
		Status:    status,
		CreatedAt: f.now,
		UpdatedAt: f.now,
	}
	require.NoError(t, f.store.InsertPayment(context.Background(), p))
	return p
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	n, err := f.store.ProductStock(context.Background(), "p1")
	require.NoError(t, err)
	return n
}

func placeUnpaid() orderapp.PlaceOrder {
	return orderapp.PlaceOrder{
		PaymentMethod: "VNPAY",
		Items:         []orderdomain.OrderItem{{ProductID: "p1", Title: "Dune", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
	}
}
