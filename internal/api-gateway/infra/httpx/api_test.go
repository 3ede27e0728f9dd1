package httpx_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-sagas/internal/api-gateway/infra/httpx"
	"github.com/jcmexdev/storefront-sagas/internal/coordinator"
	orderapp "github.com/jcmexdev/storefront-sagas/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentapp "github.com/jcmexdev/storefront-sagas/internal/payment-service/app"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/gateway/vnpay"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
	"github.com/jcmexdev/storefront-sagas/internal/scheduler"
)

func TestAuth(t *testing.T) {
	e := newEnv()
	e.payments.getFn = func(_ context.Context, id string) (*paymentdomain.Payment, error) {
		return &paymentdomain.Payment{ID: id, Status: paymentdomain.StatusPending, Amount: decimal.NewFromInt(1)}, nil
	}
	srv := e.server(t)

	res, _ := do(t, http.MethodGet, srv.URL+"/payments/p1", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = do(t, http.MethodGet, srv.URL+"/payments/p1", "Bearer not-a-jwt", "", "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, body := do(t, http.MethodGet, srv.URL+"/payments/p1", bearer(t, "u1", "customer"), "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"id":"p1"`)
	assert.NotEmpty(t, res.Header.Get("X-Request-Id"))

	res, _ = do(t, http.MethodPost, srv.URL+"/admin/orders/expire", bearer(t, "u1", "customer"), "", "")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestCreatePayment(t *testing.T) {
	e := newEnv()
	var got paymentapp.CreatePayment
	e.payments.createFn = func(_ context.Context, in paymentapp.CreatePayment) (*paymentapp.CreateResult, error) {
		got = in
		return &paymentapp.CreateResult{
			Payment:     &paymentdomain.Payment{ID: "p1", OrderID: in.OrderID, Method: in.Method, Status: paymentdomain.StatusPending, Amount: decimal.NewFromInt(500000)},
			RedirectURL: "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?vnp_TxnRef=p1",
		}, nil
	}
	srv := e.server(t)

	res, body := do(t, http.MethodPost, srv.URL+"/payments", bearer(t, "u1", ""), "application/json",
		`{"orderId":"o1","paymentMethod":"vnpay","description":"Order o1"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var out httpx.CreatePaymentResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "p1", out.Payment.ID)
	assert.Contains(t, out.RedirectURL, "vnp_TxnRef=p1")
	assert.Equal(t, paymentdomain.MethodVNPay, got.Method)
	assert.Equal(t, "127.0.0.1", got.ClientIP)

	res, _ = do(t, http.MethodPost, srv.URL+"/payments", bearer(t, "u1", ""), "application/json", `{"orderId":"o1","paymentMethod":"card"}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	e.payments.createFn = func(context.Context, paymentapp.CreatePayment) (*paymentapp.CreateResult, error) {
		return nil, apperr.NotFound("orders.Get", "order not found")
	}
	res, body = do(t, http.MethodPost, srv.URL+"/payments", bearer(t, "u1", ""), "application/json", `{"orderId":"nope","paymentMethod":"COD"}`)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body, "order not found")
}

func TestProcessPayment_AlreadyProcessed(t *testing.T) {
	e := newEnv()
	res, _ := do(t, http.MethodPost, e.server(t).URL+"/payments/p1/process", bearer(t, "u1", ""), "", "")
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestRefundPayment_UsesPaymentTarget(t *testing.T) {
	e := newEnv()
	var got coordinator.RefundRequest
	e.refunds.runFn = func(_ context.Context, req coordinator.RefundRequest) (*coordinator.RefundResult, error) {
		got = req
		r := refundResult()
		r.Success = false
		r.AlreadyRefunded = true
		r.Message = "This order has already been refunded"
		return r, nil
	}
	res, body := do(t, http.MethodPost, e.server(t).URL+"/payments/p1/refund", bearer(t, "staff-7", "admin"), "application/json", `{"reason":"damaged"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "p1", got.Target.PaymentID)
	assert.Empty(t, got.Target.Token)
	assert.Equal(t, "damaged", got.Reason)
	assert.Equal(t, "staff-7", got.Actor)

	var out httpx.RefundResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.False(t, out.Success)
	assert.True(t, out.AlreadyRefunded)
}

func TestCreateOrder(t *testing.T) {
	e := newEnv()
	var got orderapp.PlaceOrder
	e.orders.placeFn = func(_ context.Context, in orderapp.PlaceOrder) (*orderdomain.Order, error) {
		got = in
		return &orderdomain.Order{ID: "o1", OrderNumber: "ORD-202604-0001", Status: orderdomain.StatusPending, Items: in.Items, Total: decimal.NewFromInt(20)}, nil
	}
	srv := e.server(t)

	res, body := do(t, http.MethodPost, srv.URL+"/orders", bearer(t, "cust-1", ""), "application/json",
		`{"payment_method":"COD","items":[{"product_id":"p1","title":"Dune","quantity":2,"price":"10"}],"shipping_address":{"email":"a@example.com"}}`)
	require.Equal(t, http.StatusCreated, res.StatusCode, body)
	assert.Equal(t, "cust-1", got.CustomerID)
	assert.Equal(t, "a@example.com", got.ShippingAddress.Email)
	require.Len(t, got.Items, 1)
	assert.True(t, decimal.NewFromInt(10).Equal(got.Items[0].UnitPrice))

	res, _ = do(t, http.MethodPost, srv.URL+"/orders", bearer(t, "cust-1", ""), "application/json",
		`{"payment_method":"COD","items":[{"product_id":"p1","quantity":0,"price":"10"}]}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestVNPayCallback_PassesFormFields(t *testing.T) {
	e := newEnv()
	var got url.Values
	e.payments.callbackFn = func(_ context.Context, values url.Values) (*paymentapp.CallbackOutcome, error) {
		got = values
		return &paymentapp.CallbackOutcome{
			Payment: &paymentdomain.Payment{ID: "p1", Status: paymentdomain.StatusCompleted, Amount: decimal.NewFromInt(500000)},
			Applied: true,
		}, nil
	}
	srv := e.server(t)

	form := url.Values{"vnp_TxnRef": {"p1"}, "vnp_ResponseCode": {"00"}, "vnp_SecureHash": {"abc"}}
	res, body := do(t, http.MethodPost, srv.URL+"/payments/callback/vnpay", "", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "p1", got.Get("vnp_TxnRef"))
	assert.Contains(t, body, `"applied":true`)

	res, _ = do(t, http.MethodPost, srv.URL+"/payments/callback/vnpay", "", "application/json", `{"vnp_TxnRef":"p2","vnp_Amount":"50000000"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "p2", got.Get("vnp_TxnRef"))
	assert.Equal(t, "50000000", got.Get("vnp_Amount"))

	e.payments.callbackFn = func(context.Context, url.Values) (*paymentapp.CallbackOutcome, error) {
		return nil, vnpay.ErrInvalidSignature
	}
	res, _ = do(t, http.MethodPost, srv.URL+"/payments/callback/vnpay", "", "application/x-www-form-urlencoded", form.Encode())
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestVNPayReturn_RedirectsToFrontend(t *testing.T) {
	e := newEnv()
	e.frontend = "https://shop.example.com/"
	e.payments.callbackFn = func(context.Context, url.Values) (*paymentapp.CallbackOutcome, error) {
		return &paymentapp.CallbackOutcome{Payment: &paymentdomain.Payment{ID: "p1", OrderID: "o1", Status: paymentdomain.StatusCompleted}}, nil
	}
	res, _ := do(t, http.MethodGet, e.server(t).URL+"/payments/vnpay/callback?vnp_TxnRef=p1", "", "", "")
	require.Equal(t, http.StatusFound, res.StatusCode)
	loc := res.Header.Get("Location")
	assert.True(t, strings.HasPrefix(loc, "https://shop.example.com/payment/result?"), loc)
	assert.Contains(t, loc, "status=COMPLETED")
}

func TestVNPayIPN(t *testing.T) {
	e := newEnv()
	e.payments.ipnFn = func(context.Context, url.Values) paymentapp.IPNResponse {
		return paymentapp.IPNResponse{RspCode: "97", Message: "Invalid signature"}
	}
	res, body := do(t, http.MethodGet, e.server(t).URL+"/payments/vnpay/ipn?vnp_TxnRef=p1", "", "", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"RspCode":"97","Message":"Invalid signature"}`, body)
}

func TestAdminRoutes(t *testing.T) {
	e := newEnv()
	e.sweep = func(context.Context) (int, error) { return 3, nil }
	e.reconciler.pendingFn = func(context.Context) ([]paymentdomain.ReconciliationItem, error) {
		return []paymentdomain.ReconciliationItem{{PaymentID: "p1", OrderID: "o1", PaymentStatus: paymentdomain.StatusRefunded, OrderStatus: "RECEIVED", ReconciliationPending: true}}, nil
	}
	e.reconciler.resumeFn = func(_ context.Context, id string) (*coordinator.RefundResult, error) {
		r := refundResult()
		r.PaymentID = id
		return r, nil
	}
	srv := e.server(t)
	admin := bearer(t, "ops", "admin")

	res, body := do(t, http.MethodPost, srv.URL+"/admin/orders/expire", admin, "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"canceled":3}`, body)

	res, body = do(t, http.MethodGet, srv.URL+"/admin/refunds/reconciliation", admin, "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"reconciliationPending":true`)

	res, body = do(t, http.MethodPost, srv.URL+"/admin/refunds/reconciliation/p9/resume", admin, "", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"paymentId":"p9"`)

	e.sweep = func(context.Context) (int, error) { return 0, scheduler.ErrSweepInProgress }
	srv = e.server(t)
	res, body = do(t, http.MethodPost, srv.URL+"/admin/orders/expire", admin, "", "")
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Contains(t, body, "already running")
}

func TestUpdatePaymentStatus(t *testing.T) {
	e := newEnv()
	var gotStatus paymentdomain.Status
	var gotTxn string
	e.payments.updateFn = func(_ context.Context, id string, status paymentdomain.Status, txn string) (*paymentdomain.Payment, error) {
		gotStatus, gotTxn = status, txn
		if !status.Valid() {
			return nil, paymentapp.ErrInvalidStatus
		}
		return &paymentdomain.Payment{ID: id, OrderID: "o1", Status: status, Amount: decimal.NewFromInt(500000)}, nil
	}
	srv := e.server(t)
	admin := bearer(t, "ops", "admin")

	res, body := do(t, http.MethodPut, srv.URL+"/admin/payments/p1/status", admin, "application/json",
		`{"status":"failed","transactionId":" 1400 "}`)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Equal(t, paymentdomain.StatusFailed, gotStatus)
	assert.Equal(t, "1400", gotTxn)
	assert.Contains(t, body, `"status":"FAILED"`)

	res, _ = do(t, http.MethodPut, srv.URL+"/admin/payments/p1/status", admin, "application/json", `{"status":"lost"}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = do(t, http.MethodPut, srv.URL+"/admin/payments/p1/status", bearer(t, "u1", ""), "application/json", `{"status":"FAILED"}`)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}
