package app_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/app"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/gateway/vnpay"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

func TestCreate_VNPayReturnsSignedRedirect(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)

	res, err := f.svc.Create(context.Background(), app.CreatePayment{OrderID: o.ID, Method: domain.MethodVNPay, ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, res.Payment.Status)
	assert.Equal(t, "500000", res.Payment.Amount.String())

	u, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "50000000", u.Query().Get("vnp_Amount"))
	assert.Equal(t, res.Payment.ID, u.Query().Get("vnp_TxnRef"))

	logs, err := f.svc.LogsByOrder(context.Background(), o.ID)
	require.NoError(t, err)
	types := map[domain.LogType]bool{}
	for _, l := range logs {
		types[l.Type] = true
	}
	assert.True(t, types[domain.LogPaymentCreated])
	assert.True(t, types[domain.LogVNPayRequest])
}

func TestCreate_CashOnDeliveryCompletesImmediately(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)

	res, err := f.svc.Create(context.Background(), app.CreatePayment{OrderID: o.ID, Method: domain.MethodCOD})
	require.NoError(t, err)
	assert.Empty(t, res.RedirectURL)
	assert.Equal(t, domain.StatusCompleted, res.Payment.Status)
	assert.NotNil(t, res.Payment.CompletedAt)

	got, err := f.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusReceived, got.Status)
	assert.Len(t, f.mail.payments, 1)

	_, err = f.svc.Process(context.Background(), res.Payment.ID, "")
	assert.ErrorIs(t, err, app.ErrAlreadyProcessed)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)

	_, err := f.svc.Create(context.Background(), app.CreatePayment{OrderID: o.ID, Method: "PAYPAL"})
	assert.ErrorIs(t, err, app.ErrInvalidMethod)

	_, err = f.svc.Create(context.Background(), app.CreatePayment{OrderID: "missing", Method: domain.MethodVNPay})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestHandleCallback_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	res, err := f.svc.Create(context.Background(), app.CreatePayment{OrderID: o.ID, Method: domain.MethodVNPay})
	require.NoError(t, err)
	cb := signedCallback(res.Payment.ID, "50000000", "00")

	first, err := f.svc.HandleCallback(context.Background(), cb)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, domain.StatusCompleted, first.Payment.Status)
	assert.Equal(t, "14012345", first.Payment.TransactionNo)

	second, err := f.svc.HandleCallback(context.Background(), cb)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, domain.StatusCompleted, second.Payment.Status)

	assert.Len(t, f.mail.payments, 1, "success email is sent once")
	txs, err := f.svc.Transactions(context.Background(), res.Payment.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	got, err := f.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusReceived, got.Status)
}

func TestHandleCallback_Rejections(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	res, err := f.svc.Create(context.Background(), app.CreatePayment{OrderID: o.ID, Method: domain.MethodVNPay})
	require.NoError(t, err)

	tampered := signedCallback(res.Payment.ID, "50000000", "00")
	tampered.Set("vnp_ResponseCode", "24")
	_, err = f.svc.HandleCallback(context.Background(), tampered)
	assert.ErrorIs(t, err, vnpay.ErrInvalidSignature)

	_, err = f.svc.HandleCallback(context.Background(), signedCallback(res.Payment.ID, "100", "00"))
	assert.ErrorIs(t, err, app.ErrAmountMismatch)

	_, err = f.svc.HandleCallback(context.Background(), signedCallback("unknown", "50000000", "00"))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	p, err := f.svc.Get(context.Background(), res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, p.Status)
}

func TestHandleCallback_FailedThenSuccessConflicts(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	res, err := f.svc.Create(context.Background(), app.CreatePayment{OrderID: o.ID, Method: domain.MethodVNPay})
	require.NoError(t, err)

	out, err := f.svc.HandleCallback(context.Background(), signedCallback(res.Payment.ID, "50000000", "24"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, out.Payment.Status)

	_, err = f.svc.HandleCallback(context.Background(), signedCallback(res.Payment.ID, "50000000", "00"))
	assert.ErrorIs(t, err, app.ErrAlreadyProcessed)
	assert.Empty(t, f.mail.payments)
}

func TestHandleIPN_Codes(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	res, err := f.svc.Create(context.Background(), app.CreatePayment{OrderID: o.ID, Method: domain.MethodVNPay})
	require.NoError(t, err)
	ctx := context.Background()

	bad := signedCallback(res.Payment.ID, "50000000", "00")
	bad.Set("vnp_SecureHash", "00")
	assert.Equal(t, "97", f.svc.HandleIPN(ctx, bad).RspCode)
	assert.Equal(t, "01", f.svc.HandleIPN(ctx, signedCallback("nope", "50000000", "00")).RspCode)
	assert.Equal(t, "04", f.svc.HandleIPN(ctx, signedCallback(res.Payment.ID, "1", "00")).RspCode)
	assert.Equal(t, "00", f.svc.HandleIPN(ctx, signedCallback(res.Payment.ID, "50000000", "00")).RspCode)
	assert.Equal(t, "02", f.svc.HandleIPN(ctx, signedCallback(res.Payment.ID, "50000000", "00")).RspCode)
	assert.Len(t, f.mail.payments, 1)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	res, err := f.svc.Create(context.Background(), app.CreatePayment{OrderID: o.ID, Method: domain.MethodVNPay})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), res.Payment.ID, "DONE", "")
	assert.ErrorIs(t, err, app.ErrInvalidStatus)

	p, err := f.svc.UpdateStatus(context.Background(), res.Payment.ID, domain.StatusCompleted, "TX1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, p.Status)
	assert.Equal(t, "TX1", p.TransactionNo)
	assert.NotNil(t, p.CompletedAt)

	_, err = f.svc.UpdateStatus(context.Background(), "missing", domain.StatusFailed, "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRefundPrimitives(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	res, err := f.svc.Create(context.Background(), app.CreatePayment{OrderID: o.ID, Method: domain.MethodVNPay})
	require.NoError(t, err)
	_, err = f.svc.HandleCallback(context.Background(), signedCallback(res.Payment.ID, "50000000", "00"))
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := f.svc.ClaimRefund(ctx, res.Payment.ID, "run-1")
	require.NoError(t, err)
	require.True(t, ok)

	p, err := f.svc.Get(ctx, res.Payment.ID)
	require.NoError(t, err)
	receipt, err := f.svc.RefundAtGateway(ctx, p, app.RefundInput{Reason: "changed mind"})
	require.NoError(t, err)
	assert.Equal(t, "R-14012345", receipt.TransactionNo)
	assert.Equal(t, 1, f.gw.refundCalls)

	_, err = f.svc.CommitRefund(ctx, p, "other-run", receipt)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	refunded, err := f.svc.CommitRefund(ctx, p, "run-1", receipt)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	assert.True(t, refunded.ReconciliationPending)

	items, err := f.svc.ListReconciliation(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, f.svc.ClearReconciliation(ctx, p.ID))
	_, err = f.orders.CancelWithRestock(ctx, o.ID, orderdomain.CancelRefund)
	require.NoError(t, err)
	items, err = f.svc.ListReconciliation(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
