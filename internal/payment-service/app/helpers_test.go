package app_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	inventoryservice "github.com/jcmexdev/storefront-sagas/internal/inventory-service"
	"github.com/jcmexdev/storefront-sagas/internal/notify"
	orderapp "github.com/jcmexdev/storefront-sagas/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/app"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/gateway/vnpay"
	"github.com/jcmexdev/storefront-sagas/internal/storage/sqlstore"
)

const (
	tmnCode    = "DEMOV210"
	hashSecret = "SECRETKEY123"
)

// gateway wraps the real adapter and replaces the network calls.
type gateway struct {
	*vnpay.Client
	mu          sync.Mutex
	refundCalls int
	refundErr   error
}

func (g *gateway) Refund(_ context.Context, in vnpay.RefundRequest) (*vnpay.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &vnpay.RefundResult{ResponseCode: "00", TransactionNo: "R-" + in.TransactionNo, Amount: in.Amount}, nil
}

type mailbox struct {
	mu       sync.Mutex
	payments []notify.PaymentMessage
}

func (m *mailbox) PaymentSucceeded(_ context.Context, msg notify.PaymentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, msg)
	return nil
}

type fixture struct {
	svc    *app.Service
	orders *orderapp.Service
	store  *sqlstore.Store
	gw     *gateway
	mail   *mailbox
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlstore.Open("sqlite", filepath.Join(t.TempDir(), "payments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.UpsertProduct(context.Background(), "p1", "Mug", decimal.NewFromInt(10), 10))

	f := &fixture{store: store, mail: &mailbox{}, now: time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.orders = orderapp.NewService(store, inventoryservice.NewClient(nil), orderapp.WithClock(clock))
	f.gw = &gateway{Client: vnpay.New(vnpay.Config{
		TmnCode:    tmnCode,
		HashSecret: hashSecret,
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		APIURL:     "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction",
		ReturnURL:  "http://localhost/payments/vnpay/callback",
	}, nil, vnpay.WithClock(clock), vnpay.WithAudit(app.NewGatewayAudit(store, nil)))}
	f.svc = app.NewService(store, f.orders, f.gw, f.mail, app.WithClock(clock), app.WithRate(25000))
	return f
}

// placeOrder creates a pending 20 USD order (500000 VND).
func (f *fixture) placeOrder(t *testing.T) *orderdomain.Order {
	t.Helper()
	o, err := f.orders.Place(context.Background(), orderapp.PlaceOrder{
		PaymentMethod:   "VNPAY",
		Items:           []orderdomain.OrderItem{{ProductID: "p1", Title: "Mug", Quantity: 2, UnitPrice: decimal.NewFromInt(10)}},
		ShippingAddress: orderdomain.ShippingAddress{Email: "lan@example.com"},
	})
	require.NoError(t, err)
	return o
}

func signedCallback(paymentID, amount, code string) url.Values {
	params := map[string]string{
		"vnp_TmnCode":           tmnCode,
		"vnp_TxnRef":            paymentID,
		"vnp_Amount":            amount,
		"vnp_OrderInfo":         "Thanh toan don hang",
		"vnp_ResponseCode":      code,
		"vnp_TransactionStatus": code,
		"vnp_TransactionNo":     "14012345",
		"vnp_BankCode":          "NCB",
		"vnp_PayDate":           "20260301100500",
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	values := url.Values{}
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
		values.Set(k, params[k])
	}
	mac := hmac.New(sha512.New, []byte(hashSecret))
	mac.Write([]byte(strings.Join(parts, "&")))
	values.Set("vnp_SecureHash", hex.EncodeToString(mac.Sum(nil)))
	return values
}
