package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/gateway/vnpay"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

var ErrRefundInProgress = apperr.Conflict("", "a refund for this payment is already in progress")

type RefundInput struct {
	Reason   string
	Actor    string
	ClientIP string
}

// ClaimRefund reserves the right to call the gateway for p. At most one
// claim is held per payment.
func (s *Service) ClaimRefund(ctx context.Context, paymentID, claim string) (bool, error) {
	return s.repo.ClaimRefund(ctx, paymentID, claim, s.now().UTC())
}

func (s *Service) ReleaseRefundClaim(ctx context.Context, paymentID, claim string) error {
	return s.repo.ReleaseRefundClaim(ctx, paymentID, claim)
}

// RefundAtGateway returns the money. Cash payments have nothing to return
// through the gateway and succeed immediately.
func (s *Service) RefundAtGateway(ctx context.Context, p *domain.Payment, in RefundInput) (*domain.RefundReceipt, error) {
	s.audit(ctx, p.ID, p.OrderID, domain.LogRefundRequest, domain.LevelInfo, "refund requested", map[string]string{
		"reason": in.Reason, "actor": in.Actor, "amount": p.Amount.String(),
	})
	if !p.Method.UsesGateway() {
		return &domain.RefundReceipt{Amount: p.Amount, Message: "refunded without gateway"}, nil
	}

	var paidAt = p.PaidAt
	if paidAt == nil {
		paidAt = p.CompletedAt
	}
	req := vnpay.RefundRequest{
		PaymentID:     p.ID,
		TransactionNo: p.TransactionNo,
		Amount:        p.Amount,
		CreatedBy:     in.Actor,
		ClientIP:      in.ClientIP,
		Reason:        in.Reason,
	}
	if paidAt != nil {
		req.TransactionDate = *paidAt
	}

	res, err := s.gateway.Refund(ctx, req)
	if err != nil {
		s.audit(ctx, p.ID, p.OrderID, domain.LogPaymentError, domain.LevelError, "gateway refund failed: "+err.Error(), responseCode(err))
		return nil, err
	}
	return &domain.RefundReceipt{
		TransactionNo: res.TransactionNo,
		ResponseCode:  res.ResponseCode,
		Message:       res.Message,
		Amount:        res.Amount,
		Raw:           string(res.Raw),
	}, nil
}

func responseCode(err error) map[string]string {
	var rerr *vnpay.ResponseError
	if errors.As(err, &rerr) {
		return map[string]string{"response_code": rerr.Code, "message": rerr.Message}
	}
	return nil
}

// CommitRefund moves p from COMPLETED to REFUNDED under the given claim and
// flags it for reconciliation until the order side is done.
func (s *Service) CommitRefund(ctx context.Context, p *domain.Payment, claim string, r *domain.RefundReceipt) (*domain.Payment, error) {
	ok, err := s.repo.ChangeStatus(ctx, domain.Change{
		PaymentID:          p.ID,
		From:               []domain.Status{domain.StatusCompleted},
		To:                 domain.StatusRefunded,
		At:                 s.now().UTC(),
		Claim:              claim,
		MarkReconciliation: true,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("payments.CommitRefund", fmt.Sprintf("refund claim %s no longer held", claim))
	}
	s.appendTransaction(ctx, p, domain.TransactionRefund, domain.TransactionCompleted, r.TransactionNo, r.Amount, r.Raw)
	return s.repo.GetPayment(ctx, p.ID)
}

func (s *Service) ClearReconciliation(ctx context.Context, paymentID string) error {
	return s.repo.ClearReconciliation(ctx, paymentID)
}

// ListReconciliation reports refunds whose payment and order halves
// disagree, including refund claims that never completed.
func (s *Service) ListReconciliation(ctx context.Context) ([]domain.ReconciliationItem, error) {
	return s.repo.ListReconciliation(ctx, s.now().UTC().Add(-staleClaimAge))
}
