package vnpay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/money"
)

const (
	refundFull    = "02"
	refundPartial = "03"
)

type RefundRequest struct {
	PaymentID       string
	TransactionNo   string
	Amount          decimal.Decimal
	TransactionDate time.Time
	CreatedBy       string
	ClientIP        string
	Reason          string
	Partial         bool
}

type RefundResult struct {
	ResponseID        string
	ResponseCode      string
	Message           string
	TransactionNo     string
	TransactionStatus string
	BankCode          string
	Amount            decimal.Decimal
	Raw               []byte
}

type refundBody struct {
	RequestID       string      `json:"vnp_RequestId"`
	Version         string      `json:"vnp_Version"`
	Command         string      `json:"vnp_Command"`
	TmnCode         string      `json:"vnp_TmnCode"`
	TransactionType string      `json:"vnp_TransactionType"`
	TxnRef          string      `json:"vnp_TxnRef"`
	Amount          json.Number `json:"vnp_Amount"`
	OrderInfo       string      `json:"vnp_OrderInfo"`
	TransactionNo   string      `json:"vnp_TransactionNo"`
	TransactionDate string      `json:"vnp_TransactionDate"`
	CreateBy        string      `json:"vnp_CreateBy"`
	CreateDate      string      `json:"vnp_CreateDate"`
	IPAddr          string      `json:"vnp_IpAddr"`
	SecureHash      string      `json:"vnp_SecureHash"`
}

type apiResponse struct {
	ResponseID        string      `json:"vnp_ResponseId"`
	Command           string      `json:"vnp_Command"`
	ResponseCode      string      `json:"vnp_ResponseCode"`
	Message           string      `json:"vnp_Message"`
	TmnCode           string      `json:"vnp_TmnCode"`
	TxnRef            string      `json:"vnp_TxnRef"`
	Amount            flexString  `json:"vnp_Amount"`
	BankCode          string      `json:"vnp_BankCode"`
	PayDate           string      `json:"vnp_PayDate"`
	TransactionNo     string      `json:"vnp_TransactionNo"`
	TransactionType   string      `json:"vnp_TransactionType"`
	TransactionStatus string      `json:"vnp_TransactionStatus"`
	OrderInfo         string      `json:"vnp_OrderInfo"`
	PromotionCode     string      `json:"vnp_PromotionCode"`
	PromotionAmount   flexString  `json:"vnp_PromotionAmount"`
	SecureHash        string      `json:"vnp_SecureHash"`
}

// Refund asks the gateway to return money for a completed payment. Any
// answer other than "00" is a gateway error carrying a *ResponseError.
func (c *Client) Refund(ctx context.Context, in RefundRequest) (*RefundResult, error) {
	if err := c.requireConfig(true); err != nil {
		return nil, err
	}
	switch {
	case in.PaymentID == "":
		return nil, fmt.Errorf("%w: missing payment reference", ErrPaymentValidation)
	case in.TransactionNo == "":
		return nil, fmt.Errorf("%w: payment %s has no gateway transaction", ErrPaymentValidation, in.PaymentID)
	case !in.Amount.IsPositive():
		return nil, fmt.Errorf("%w: refund amount must be positive", ErrPaymentValidation)
	case in.TransactionDate.IsZero():
		return nil, fmt.Errorf("%w: payment %s was never completed", ErrPaymentValidation, in.PaymentID)
	}

	txType := refundFull
	if in.Partial {
		txType = refundPartial
	}
	createdBy := in.CreatedBy
	if createdBy == "" {
		createdBy = "system"
	}
	ip := in.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	info := "Hoan tien giao dich " + in.PaymentID
	if in.Reason != "" {
		info += ": " + in.Reason
	}

	body := refundBody{
		RequestID:       requestID(),
		Version:         Version,
		Command:         "refund",
		TmnCode:         c.cfg.TmnCode,
		TransactionType: txType,
		TxnRef:          in.PaymentID,
		Amount:          json.Number(money.ToMinorUnits(in.Amount)),
		OrderInfo:       info,
		TransactionNo:   in.TransactionNo,
		TransactionDate: formatDate(in.TransactionDate),
		CreateBy:        createdBy,
		CreateDate:      formatDate(c.now()),
		IPAddr:          ip,
	}
	body.SecureHash = c.sign(pipeJoin(
		body.RequestID, body.Version, body.Command, body.TmnCode, body.TransactionType, body.TxnRef,
		body.Amount.String(), body.TransactionNo, body.TransactionDate, body.CreateBy, body.CreateDate,
		body.IPAddr, body.OrderInfo,
	))

	raw, err := c.postJSON(ctx, "refund", in.PaymentID, c.cfg.APIURL, body)
	if err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperr.Gateway("vnpay.refund", fmt.Errorf("decode response: %w", err))
	}
	if resp.SecureHash != "" && !c.checkSignature(resp.refundSignData(), resp.SecureHash) {
		return nil, apperr.Gateway("vnpay.refund", ErrInvalidSignature)
	}
	if resp.ResponseCode != CodeSuccess {
		return nil, apperr.Gateway("vnpay.refund", &ResponseError{Code: resp.ResponseCode, Message: resp.Message})
	}

	out := &RefundResult{
		ResponseID:        resp.ResponseID,
		ResponseCode:      resp.ResponseCode,
		Message:           resp.Message,
		TransactionNo:     resp.TransactionNo,
		TransactionStatus: resp.TransactionStatus,
		BankCode:          resp.BankCode,
		Amount:            in.Amount,
		Raw:               raw,
	}
	if resp.Amount != "" {
		if amt, err := money.FromMinorUnits(string(resp.Amount)); err == nil {
			out.Amount = amt
		}
	}
	return out, nil
}

func (r apiResponse) refundSignData() string {
	return pipeJoin(r.ResponseID, r.Command, r.ResponseCode, r.Message, r.TmnCode, r.TxnRef,
		string(r.Amount), r.BankCode, r.PayDate, r.TransactionNo, r.TransactionType,
		r.TransactionStatus, r.OrderInfo)
}

// flexString accepts either a JSON string or a JSON number; the merchant API
// is not consistent about amounts.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	switch {
	case string(b) == "null":
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(b)
	}
	return nil
}
