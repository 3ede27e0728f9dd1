package vnpay

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/money"
)

// CallbackFields are the vnp_* parameters VNPay sends to the return URL and
// the IPN endpoint.
type CallbackFields struct {
	TmnCode           string
	TxnRef            string
	Amount            string
	OrderInfo         string
	ResponseCode      string
	TransactionNo     string
	TransactionStatus string
	BankCode          string
	BankTranNo        string
	CardType          string
	PayDate           string
	Raw               map[string]string
}

type CallbackResult struct {
	Valid   bool
	Success bool
	Fields  CallbackFields
}

// StatusUpdate is the payment change a verified callback asks for.
type StatusUpdate struct {
	PaymentID     string
	Status        domain.Status
	Amount        decimal.Decimal
	TransactionNo string
	BankCode      string
	BankTranNo    string
	CardType      string
	ResponseCode  string
	PaidAt        *time.Time
}

// VerifyCallback recomputes the signature over every vnp_* parameter except
// the hash itself. A callback for another merchant code is invalid.
func (c *Client) VerifyCallback(values url.Values) CallbackResult {
	params := make(map[string]string, len(values))
	for k, v := range values {
		if strings.HasPrefix(k, "vnp_") && len(v) > 0 {
			params[k] = v[0]
		}
	}
	presented := params["vnp_SecureHash"]
	delete(params, "vnp_SecureHash")
	delete(params, "vnp_SecureHashType")

	f := CallbackFields{
		TmnCode:           params["vnp_TmnCode"],
		TxnRef:            params["vnp_TxnRef"],
		Amount:            params["vnp_Amount"],
		OrderInfo:         params["vnp_OrderInfo"],
		ResponseCode:      params["vnp_ResponseCode"],
		TransactionNo:     params["vnp_TransactionNo"],
		TransactionStatus: params["vnp_TransactionStatus"],
		BankCode:          params["vnp_BankCode"],
		BankTranNo:        params["vnp_BankTranNo"],
		CardType:          params["vnp_CardType"],
		PayDate:           params["vnp_PayDate"],
		Raw:               params,
	}

	valid := c.cfg.HashSecret != "" && c.checkSignature(signData(params), presented)
	if valid && c.cfg.TmnCode != "" && f.TmnCode != c.cfg.TmnCode {
		valid = false
	}
	return CallbackResult{
		Valid:   valid,
		Success: valid && f.paid(),
		Fields:  f,
	}
}

func (f CallbackFields) paid() bool {
	return f.ResponseCode == CodeSuccess && (f.TransactionStatus == "" || f.TransactionStatus == CodeSuccess)
}

// ParseCallback turns verified fields into a status update. The amount is
// converted back from minor units; vnp_PayDate is read in GMT+7.
func ParseCallback(f CallbackFields) (StatusUpdate, error) {
	if f.TxnRef == "" {
		return StatusUpdate{}, fmt.Errorf("%w: missing vnp_TxnRef", ErrPaymentValidation)
	}
	amount, err := money.FromMinorUnits(f.Amount)
	if err != nil {
		return StatusUpdate{}, fmt.Errorf("%w: %v", ErrPaymentValidation, err)
	}

	u := StatusUpdate{
		PaymentID:     f.TxnRef,
		Status:        domain.StatusFailed,
		Amount:        amount,
		TransactionNo: f.TransactionNo,
		BankCode:      f.BankCode,
		BankTranNo:    f.BankTranNo,
		CardType:      f.CardType,
		ResponseCode:  f.ResponseCode,
	}
	if f.paid() {
		u.Status = domain.StatusCompleted
	}
	if f.PayDate != "" {
		t, err := ParseDate(f.PayDate)
		if err != nil {
			return StatusUpdate{}, fmt.Errorf("%w: %v", ErrPaymentValidation, err)
		}
		u.PaidAt = &t
	}
	return u, nil
}
