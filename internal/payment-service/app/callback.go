package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/gateway/vnpay"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

type CallbackOutcome struct {
	Payment *domain.Payment
	// Applied is false when the payment already had the reported status.
	Applied bool
}

// IPNResponse is the body VNPay expects from the IPN endpoint.
type IPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// HandleCallback applies a gateway return-URL callback. Replaying a
// callback whose status the payment already has is a no-op.
func (s *Service) HandleCallback(ctx context.Context, values url.Values) (*CallbackOutcome, error) {
	res := s.gateway.VerifyCallback(values)
	s.audit(ctx, res.Fields.TxnRef, "", domain.LogVNPayCallback, domain.LevelInfo, "gateway callback received", res.Fields.Raw)
	if !res.Valid {
		s.logger.WarnContext(ctx, "callback signature rejected", "payment_id", res.Fields.TxnRef)
		return nil, vnpay.ErrInvalidSignature
	}
	upd, err := vnpay.ParseCallback(res.Fields)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetPayment(ctx, upd.PaymentID)
	if err != nil {
		return nil, err
	}
	if !upd.Amount.Equal(p.Amount) {
		s.audit(ctx, p.ID, p.OrderID, domain.LogPaymentError, domain.LevelError, "callback amount mismatch",
			map[string]string{"expected": p.Amount.String(), "got": upd.Amount.String()})
		return nil, ErrAmountMismatch
	}
	return s.apply(ctx, p, upd)
}

// HandleIPN applies a server-to-server notification and answers with the
// code VNPay expects.
func (s *Service) HandleIPN(ctx context.Context, values url.Values) IPNResponse {
	res := s.gateway.VerifyCallback(values)
	s.audit(ctx, res.Fields.TxnRef, "", domain.LogVNPayIPN, domain.LevelInfo, "gateway IPN received", res.Fields.Raw)
	if !res.Valid {
		return IPNResponse{RspCode: "97", Message: "Invalid signature"}
	}
	upd, err := vnpay.ParseCallback(res.Fields)
	if err != nil {
		return IPNResponse{RspCode: "99", Message: "Invalid request"}
	}
	p, err := s.repo.GetPayment(ctx, upd.PaymentID)
	if apperr.Is(err, apperr.KindNotFound) {
		return IPNResponse{RspCode: "01", Message: "Order not found"}
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "ipn: load payment failed", "payment_id", upd.PaymentID, "error", err)
		return IPNResponse{RspCode: "99", Message: "Unknown error"}
	}
	if !upd.Amount.Equal(p.Amount) {
		return IPNResponse{RspCode: "04", Message: "Invalid amount"}
	}
	if p.Status != domain.StatusPending {
		return IPNResponse{RspCode: "02", Message: "Order already confirmed"}
	}
	if _, err := s.apply(ctx, p, upd); err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			return IPNResponse{RspCode: "02", Message: "Order already confirmed"}
		}
		s.logger.ErrorContext(ctx, "ipn: apply failed", "payment_id", p.ID, "error", err)
		return IPNResponse{RspCode: "99", Message: "Unknown error"}
	}
	return IPNResponse{RspCode: "00", Message: "Confirm Success"}
}

func (s *Service) apply(ctx context.Context, p *domain.Payment, upd vnpay.StatusUpdate) (*CallbackOutcome, error) {
	ok, err := s.repo.ChangeStatus(ctx, domain.Change{
		PaymentID:     p.ID,
		From:          []domain.Status{domain.StatusPending},
		To:            upd.Status,
		At:            s.now().UTC(),
		TransactionNo: upd.TransactionNo,
		BankCode:      upd.BankCode,
		BankTranNo:    upd.BankTranNo,
		CardType:      upd.CardType,
		ResponseCode:  upd.ResponseCode,
		PaidAt:        upd.PaidAt,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := s.repo.GetPayment(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if cur.Status == upd.Status {
			s.logger.InfoContext(ctx, "duplicate gateway callback ignored", "payment_id", p.ID, "status", string(cur.Status))
			return &CallbackOutcome{Payment: cur, Applied: false}, nil
		}
		return nil, fmt.Errorf("%w: payment %s is %s", ErrAlreadyProcessed, p.ID, cur.Status)
	}

	txStatus := domain.TransactionFailed
	if upd.Status == domain.StatusCompleted {
		txStatus = domain.TransactionCompleted
	}
	s.appendTransaction(ctx, p, domain.TransactionPayment, txStatus, upd.TransactionNo, upd.Amount, upd.ResponseCode)

	cur, err := s.repo.GetPayment(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "payment status changed", "payment_id", p.ID, "order_id", p.OrderID, "status", string(cur.Status))
	if cur.Status == domain.StatusCompleted {
		s.onCompleted(ctx, cur)
	}
	return &CallbackOutcome{Payment: cur, Applied: true}, nil
}
