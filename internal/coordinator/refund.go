package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/linktoken"
)

// DefaultLinkReason is the reason recorded for refunds posted from an
// email link without one.
const DefaultLinkReason = "Customer requested refund via email link"

// Target selects the order and payment to refund. Exactly one field is set.
type Target struct {
	OrderID   string
	PaymentID string
	Token     string
}

func ByOrderID(id string) Target   { return Target{OrderID: id} }
func ByPaymentID(id string) Target { return Target{PaymentID: id} }
func ByToken(token string) Target  { return Target{Token: token} }

func (t Target) kind() string {
	switch {
	case t.Token != "":
		return "token"
	case t.PaymentID != "":
		return "payment"
	default:
		return "order"
	}
}

type RefundRequest struct {
	Target Target
	// Reason is optional. Empty means none was given.
	Reason   string
	Actor    string
	ClientIP string
}

type RefundResult struct {
	Success         bool
	AlreadyRefunded bool
	Message         string
	OrderID         string
	OrderNumber     string
	PaymentID       string
	RefundAmount    decimal.Decimal
	OrderStatus     orderdomain.OrderStatus
	PaymentStatus   paymentdomain.Status
	// ReconciliationPending is set when the money was returned but the
	// order has not been canceled yet.
	ReconciliationPending bool
}

// RefundSaga returns a customer's money and unwinds the order. The API and
// the public email links share it; they differ only in how the target is
// resolved.
type RefundSaga struct {
	orders   Orders
	payments Payments
	notifier Notifier
	resolver *Resolver
	log      sagalog.Repository
	window   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*RefundSaga)

func WithWindow(d time.Duration) Option { return func(s *RefundSaga) { s.window = d } }

func WithClock(now func() time.Time) Option { return func(s *RefundSaga) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *RefundSaga) { s.logger = l } }

func WithSagaLog(r sagalog.Repository) Option { return func(s *RefundSaga) { s.log = r } }

func NewRefundSaga(orders Orders, payments Payments, notifier Notifier, resolver *Resolver, opts ...Option) *RefundSaga {
	s := &RefundSaga{
		orders:   orders,
		payments: payments,
		notifier: notifier,
		resolver: resolver,
		log:      sagalog.Discard{},
		window:   DefaultRefundWindow,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the refund. Validation failures return before any side
// effect. A gateway failure leaves the payment COMPLETED and retryable. A
// failure to cancel the order after the payment was marked refunded is
// reported through ReconciliationPending, not as an error.
func (s *RefundSaga) Run(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	run := &refundRun{saga: s, req: req, claim: uuid.NewString()}
	steps := []Step{
		&resolveStep{run},
		&guardStep{run},
		&eligibilityStep{run},
		&claimStep{run},
		&gatewayRefundStep{run},
		&commitPaymentStep{run},
		&cancelOrderStep{run},
		&notifyStep{run},
	}

	err := NewOrchestrator(run.claim, steps, s.log, s.logger).Start(ctx, run.payload())
	var serr *StepError
	switch {
	case err == nil:
		return run.result(), nil
	case errors.As(err, &serr) && serr.Policy == RecordInconsistency && run.committed:
		s.logger.ErrorContext(ctx, "refund recorded but order not canceled",
			"saga_id", run.claim, "order_id", run.order.ID, "payment_id", run.payment.ID, "error", serr.Err)
		return run.result(), nil
	case errors.As(err, &serr) && serr.Policy == RecordInconsistency:
		s.logger.ErrorContext(ctx, "gateway refunded but payment not recorded",
			"saga_id", run.claim, "order_id", run.order.ID, "payment_id", run.payment.ID, "error", serr.Err)
		return nil, apperr.Inconsistency("coordinator.Refund", "refund issued but not recorded", serr.Err)
	case errors.As(err, &serr):
		return nil, serr.Err
	default:
		return nil, err
	}
}

// Lookup resolves token and returns the order with its latest payment. The
// payment is nil when the order has none.
func (s *RefundSaga) Lookup(ctx context.Context, token string, purpose linktoken.Purpose) (*orderdomain.Order, *paymentdomain.Payment, error) {
	id, err := s.resolver.OrderID(ctx, token, purpose)
	if err != nil {
		return nil, nil, err
	}
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.payments.GetByOrder(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return o, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return o, p, nil
}

// RefundStatus describes whether a refund link can still be used.
type RefundStatus struct {
	OrderID         string
	OrderNumber     string
	PaymentID       string
	OrderStatus     orderdomain.OrderStatus
	PaymentStatus   paymentdomain.Status
	Amount          decimal.Decimal
	Eligible        bool
	AlreadyRefunded bool
	Reason          string
	Deadline        time.Time
}

// Status reports refund eligibility for the order behind a refund token.
func (s *RefundSaga) Status(ctx context.Context, token string) (*RefundStatus, error) {
	o, p, err := s.Lookup(ctx, token, linktoken.PurposeRefund)
	if err != nil {
		return nil, err
	}
	st := &RefundStatus{OrderID: o.ID, OrderNumber: o.OrderNumber, OrderStatus: o.Status}
	if p == nil {
		st.Reason = ErrNoPayment.Msg
		return st, nil
	}
	st.PaymentID = p.ID
	st.PaymentStatus = p.Status
	st.Amount = p.Amount
	st.AlreadyRefunded = p.Status == paymentdomain.StatusRefunded
	st.Deadline = RefundDeadline(o, p, s.window)
	if err := Eligibility(o, p, s.now(), s.window); err != nil {
		st.Reason = apperr.Message(err, "not eligible for refund")
		return st, nil
	}
	st.Eligible = true
	return st, nil
}

var ErrNoPayment = apperr.NotFound("", "no payment found for this order")

// refundRun is the state shared by the steps of one saga execution.
type refundRun struct {
	saga  *RefundSaga
	req   RefundRequest
	claim string

	order   *orderdomain.Order
	payment *paymentdomain.Payment
	receipt *paymentdomain.RefundReceipt

	alreadyRefunded bool
	committed       bool
	orderCanceled   bool
}

func (r *refundRun) payload() string {
	b, _ := json.Marshal(map[string]string{
		"target":     r.req.Target.kind(),
		"order_id":   r.req.Target.OrderID,
		"payment_id": r.req.Target.PaymentID,
		"reason":     r.req.Reason,
		"actor":      r.req.Actor,
	})
	return string(b)
}

func (r *refundRun) result() *RefundResult {
	res := &RefundResult{
		OrderID:       r.order.ID,
		OrderNumber:   r.order.OrderNumber,
		PaymentID:     r.payment.ID,
		RefundAmount:  r.payment.Amount,
		OrderStatus:   r.order.Status,
		PaymentStatus: r.payment.Status,
	}
	switch {
	case r.alreadyRefunded:
		res.AlreadyRefunded = true
		res.ReconciliationPending = r.payment.ReconciliationPending
		res.Message = "This order has already been refunded"
	case !r.orderCanceled:
		res.Success = true
		res.ReconciliationPending = true
		res.Message = "Refund issued; the order update is still pending"
	default:
		res.Success = true
		res.Message = "Refund processed successfully"
	}
	return res
}
