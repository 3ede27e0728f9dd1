package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
	paymentapp "github.com/jcmexdev/storefront-sagas/internal/payment-service/app"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

// Reconciler finds refunds whose payment and order halves disagree and
// finishes them.
type Reconciler struct {
	orders   Orders
	payments Payments
	log      sagalog.Repository
	logger   *slog.Logger
}

func NewReconciler(orders Orders, payments Payments, log sagalog.Repository, logger *slog.Logger) *Reconciler {
	if log == nil {
		log = sagalog.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{orders: orders, payments: payments, log: log, logger: logger}
}

// Pending lists refunded payments whose order is not canceled or whose
// reconciliation flag is still set, and refund claims that never finished.
func (r *Reconciler) Pending(ctx context.Context) ([]paymentdomain.ReconciliationItem, error) {
	return r.payments.ListReconciliation(ctx)
}

func (r *Reconciler) isPending(ctx context.Context, paymentID string) (bool, error) {
	items, err := r.payments.ListReconciliation(ctx)
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.PaymentID == paymentID {
			return true, nil
		}
	}
	return false, nil
}

// Resume finishes the refund of paymentID.
//
// A REFUNDED payment gets its order canceled and restocked, once. A
// COMPLETED payment with a stale claim is checked against the gateway
// first: a refund the gateway already made is committed and the order
// canceled, and only a confirmed plain payment has its claim released so
// the refund can be requested again. A claim that is not stale yet belongs
// to a running saga and is left alone.
func (r *Reconciler) Resume(ctx context.Context, paymentID string) (*RefundResult, error) {
	p, err := r.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	switch {
	case p.Status == paymentdomain.StatusCompleted && p.RefundClaim != "":
		stale, err := r.isPending(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if !stale {
			return nil, fmt.Errorf("%w: payment %s", paymentapp.ErrRefundInProgress, p.ID)
		}
		committed, err := r.settleClaim(ctx, p)
		if err != nil {
			return nil, err
		}
		if committed == nil {
			return r.released(ctx, p)
		}
		p = committed
	case p.Status != paymentdomain.StatusRefunded:
		return nil, apperr.BadRequest("coordinator.Resume", "payment has no refund to reconcile")
	}

	o, err := r.orders.Get(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	run := &refundRun{
		saga:      &RefundSaga{orders: r.orders, payments: r.payments},
		claim:     uuid.NewString(),
		order:     o,
		payment:   p,
		committed: true,
	}
	payload, _ := json.Marshal(map[string]string{"target": "reconcile", "payment_id": p.ID})
	err = NewOrchestrator(run.claim, []Step{&cancelOrderStep{run}}, r.log, r.logger).Start(ctx, string(payload))
	if err != nil {
		r.logger.ErrorContext(ctx, "reconciliation failed", "payment_id", p.ID, "order_id", o.ID, "error", err)
		return nil, apperr.Inconsistency("coordinator.Resume", "order could not be canceled", err)
	}
	r.logger.InfoContext(ctx, "refund reconciled", "payment_id", p.ID, "order_id", o.ID)
	return run.result(), nil
}

// settleClaim decides a stale claim on p. It returns the payment committed
// as REFUNDED when the gateway already returned the money, or nil after
// releasing the claim when the gateway shows no refund.
func (r *Reconciler) settleClaim(ctx context.Context, p *paymentdomain.Payment) (*paymentdomain.Payment, error) {
	if !p.Method.UsesGateway() {
		return nil, r.release(ctx, p)
	}
	q, err := r.payments.GatewayStatus(ctx, p.ID, "")
	if err != nil {
		r.logger.WarnContext(ctx, "gateway status unavailable, claim kept", "payment_id", p.ID, "error", err)
		return nil, err
	}
	switch {
	case q.Refunded():
		raw, _ := json.Marshal(q)
		receipt := &paymentdomain.RefundReceipt{
			TransactionNo: q.TransactionNo,
			ResponseCode:  q.ResponseCode,
			Message:       q.Message,
			Amount:        p.Amount,
			Raw:           string(raw),
		}
		sctx, cancel := settleContext(ctx)
		defer cancel()
		committed, err := r.payments.CommitRefund(sctx, p, p.RefundClaim, receipt)
		if err != nil {
			return nil, err
		}
		r.logger.WarnContext(ctx, "gateway refund recovered from stale claim", "payment_id", p.ID, "claim", p.RefundClaim)
		return committed, nil
	case q.PaidOnly():
		return nil, r.release(ctx, p)
	default:
		return nil, apperr.Conflict("coordinator.Resume",
			fmt.Sprintf("gateway reports transaction status %q type %q; claim kept", q.TransactionStatus, q.TransactionType))
	}
}

func (r *Reconciler) release(ctx context.Context, p *paymentdomain.Payment) error {
	if err := r.payments.ReleaseRefundClaim(ctx, p.ID, p.RefundClaim); err != nil {
		return err
	}
	r.logger.WarnContext(ctx, "stale refund claim released", "payment_id", p.ID, "claim", p.RefundClaim)
	return nil
}

func (r *Reconciler) released(ctx context.Context, p *paymentdomain.Payment) (*RefundResult, error) {
	o, err := r.orders.Get(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	return &RefundResult{
		Message:       "Refund claim released; the payment can be refunded again",
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		PaymentID:     p.ID,
		RefundAmount:  p.Amount,
		OrderStatus:   o.Status,
		PaymentStatus: p.Status,
	}, nil
}
