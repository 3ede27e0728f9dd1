package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/storefront-sagas/internal/notify"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentapp "github.com/jcmexdev/storefront-sagas/internal/payment-service/app"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/linktoken"
)

// --- resolveStep ---

type resolveStep struct{ *refundRun }

func (s *resolveStep) Name() string                     { return "resolve_target" }
func (s *resolveStep) Policy() Policy                   { return Abort }
func (s *resolveStep) Compensate(context.Context) error { return nil }

func (s *resolveStep) Execute(ctx context.Context) error {
	t := s.req.Target
	orders, payments := s.saga.orders, s.saga.payments

	orderID := t.OrderID
	switch {
	case t.Token != "":
		id, err := s.saga.resolver.OrderID(ctx, t.Token, linktoken.PurposeRefund)
		if err != nil {
			return err
		}
		orderID = id
	case t.PaymentID != "":
		p, err := payments.Get(ctx, t.PaymentID)
		if err != nil {
			return err
		}
		s.payment = p
		orderID = p.OrderID
	case orderID == "":
		return apperr.BadRequest("coordinator.resolve", "no refund target given")
	}

	o, err := orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	s.order = o
	if s.payment != nil {
		return nil
	}
	p, err := payments.GetByOrder(ctx, orderID)
	if apperr.Is(err, apperr.KindNotFound) {
		return ErrNoPayment
	}
	if err != nil {
		return err
	}
	s.payment = p
	return nil
}

// --- guardStep ---

// guardStep stops the saga when the payment is already refunded, so a
// repeated request never reaches the gateway.
type guardStep struct{ *refundRun }

func (s *guardStep) Name() string                     { return "idempotency_guard" }
func (s *guardStep) Policy() Policy                   { return Abort }
func (s *guardStep) Compensate(context.Context) error { return nil }

func (s *guardStep) Execute(context.Context) error {
	if s.payment.Status == paymentdomain.StatusRefunded {
		s.alreadyRefunded = true
		return ErrHalt
	}
	return nil
}

// --- eligibilityStep ---

type eligibilityStep struct{ *refundRun }

func (s *eligibilityStep) Name() string                     { return "eligibility" }
func (s *eligibilityStep) Policy() Policy                   { return Abort }
func (s *eligibilityStep) Compensate(context.Context) error { return nil }

func (s *eligibilityStep) Execute(context.Context) error {
	return Eligibility(s.order, s.payment, s.saga.now(), s.saga.window)
}

// --- claimStep ---

// claimStep takes the payment's refund claim. Only the holder calls the
// gateway; a concurrent run either sees the claim and backs off or finds
// the payment already refunded.
type claimStep struct{ *refundRun }

func (s *claimStep) Name() string   { return "claim_refund" }
func (s *claimStep) Policy() Policy { return Abort }

func (s *claimStep) Execute(ctx context.Context) error {
	ok, err := s.saga.payments.ClaimRefund(ctx, s.payment.ID, s.claim)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	cur, err := s.saga.payments.Get(ctx, s.payment.ID)
	if err != nil {
		return err
	}
	if cur.Status == paymentdomain.StatusRefunded {
		s.payment = cur
		s.alreadyRefunded = true
		return ErrHalt
	}
	return paymentapp.ErrRefundInProgress
}

func (s *claimStep) Compensate(ctx context.Context) error {
	return s.saga.payments.ReleaseRefundClaim(ctx, s.payment.ID, s.claim)
}

// settleTimeout bounds the work done once a refund claim reaches the
// gateway. That work no longer follows the caller's cancellation: a client
// that disconnects after the money moved must not leave the payment
// COMPLETED.
const settleTimeout = 30 * time.Second

func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// --- gatewayRefundStep ---

type gatewayRefundStep struct{ *refundRun }

func (s *gatewayRefundStep) Name() string                     { return "gateway_refund" }
func (s *gatewayRefundStep) Policy() Policy                   { return HardFail }
func (s *gatewayRefundStep) Compensate(context.Context) error { return nil }

func (s *gatewayRefundStep) Execute(ctx context.Context) error {
	ctx, cancel := settleContext(ctx)
	defer cancel()
	receipt, err := s.saga.payments.RefundAtGateway(ctx, s.payment, paymentapp.RefundInput{
		Reason:   s.req.Reason,
		Actor:    s.req.Actor,
		ClientIP: s.req.ClientIP,
	})
	if err != nil {
		var ae *apperr.Error
		if !errors.As(err, &ae) {
			err = apperr.Gateway("coordinator.refund", err)
		}
		return err
	}
	s.receipt = receipt
	return nil
}

// --- commitPaymentStep ---

// commitPaymentStep records the refund on the payment and flags it for
// reconciliation until the order side is done. The money has already moved,
// so a failure here cannot be compensated.
type commitPaymentStep struct{ *refundRun }

func (s *commitPaymentStep) Name() string                     { return "commit_payment" }
func (s *commitPaymentStep) Policy() Policy                   { return RecordInconsistency }
func (s *commitPaymentStep) Compensate(context.Context) error { return nil }

func (s *commitPaymentStep) Execute(ctx context.Context) error {
	ctx, cancel := settleContext(ctx)
	defer cancel()
	p, err := s.saga.payments.CommitRefund(ctx, s.payment, s.claim, s.receipt)
	if err != nil {
		return err
	}
	s.payment = p
	s.committed = true
	return nil
}

// --- cancelOrderStep ---

type cancelOrderStep struct{ *refundRun }

func (s *cancelOrderStep) Name() string                     { return "cancel_order" }
func (s *cancelOrderStep) Policy() Policy                   { return RecordInconsistency }
func (s *cancelOrderStep) Compensate(context.Context) error { return nil }

func (s *cancelOrderStep) Execute(ctx context.Context) error {
	ctx, cancel := settleContext(ctx)
	defer cancel()
	o, err := cancelAndRestock(ctx, s.saga.orders, s.saga.payments, s.order.ID, s.payment.ID)
	if o != nil {
		s.order = o
	}
	if err != nil {
		return err
	}
	s.orderCanceled = true
	s.payment.ReconciliationPending = false
	return nil
}

// cancelAndRestock cancels the order of a refunded payment, restores its
// stock and clears the payment's reconciliation flag. It is safe to repeat:
// an order that is already settled is not restocked again.
func cancelAndRestock(ctx context.Context, orders Orders, payments Payments, orderID, paymentID string) (*orderdomain.Order, error) {
	if _, err := orders.CancelWithRestock(ctx, orderID, orderdomain.CancelRefund); err != nil {
		return nil, err
	}
	o, err := orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Settled() {
		return o, apperr.Inconsistency("coordinator.cancelOrder", "order could not be canceled",
			fmt.Errorf("order %s is %s", o.ID, o.Status))
	}
	if err := payments.ClearReconciliation(ctx, paymentID); err != nil {
		return o, err
	}
	return o, nil
}

// --- notifyStep ---

type notifyStep struct{ *refundRun }

func (s *notifyStep) Name() string                     { return "notify" }
func (s *notifyStep) Policy() Policy                   { return BestEffort }
func (s *notifyStep) Compensate(context.Context) error { return nil }

func (s *notifyStep) Execute(ctx context.Context) error {
	if s.saga.notifier == nil {
		return nil
	}
	ctx, cancel := settleContext(ctx)
	defer cancel()
	return s.saga.notifier.RefundConfirmed(ctx, notify.RefundMessage{
		Order:   s.order,
		Payment: s.payment,
		Amount:  s.payment.Amount,
		Reason:  s.req.Reason,
	})
}
