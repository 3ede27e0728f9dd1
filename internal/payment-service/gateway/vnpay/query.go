package vnpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

type QueryRequest struct {
	PaymentID       string
	TransactionDate time.Time
	ClientIP        string
}

// QueryResult is the gateway's view of a transaction. It is informational
// and never changes local state.
type QueryResult struct {
	ResponseCode      string `json:"responseCode"`
	Message           string `json:"message"`
	TransactionNo     string `json:"transactionNo"`
	TransactionStatus string `json:"transactionStatus"`
	TransactionType   string `json:"transactionType"`
	BankCode          string `json:"bankCode"`
	Amount            string `json:"amount"`
	PayDate           string `json:"payDate"`
}

type queryBody struct {
	RequestID       string `json:"vnp_RequestId"`
	Version         string `json:"vnp_Version"`
	Command         string `json:"vnp_Command"`
	TmnCode         string `json:"vnp_TmnCode"`
	TxnRef          string `json:"vnp_TxnRef"`
	OrderInfo       string `json:"vnp_OrderInfo"`
	TransactionDate string `json:"vnp_TransactionDate"`
	CreateDate      string `json:"vnp_CreateDate"`
	IPAddr          string `json:"vnp_IpAddr"`
	SecureHash      string `json:"vnp_SecureHash"`
}

// Refunded reports whether the gateway has a refund of the transaction on
// record, finished or still in progress.
func (q *QueryResult) Refunded() bool {
	switch {
	case q.TransactionType == "02", q.TransactionType == "03":
		return true
	case q.TransactionStatus == "05", q.TransactionStatus == "06":
		return true
	}
	return false
}

// PaidOnly reports whether the gateway confirms a successful payment with no
// refund against it.
func (q *QueryResult) PaidOnly() bool {
	return q.ResponseCode == "00" && q.TransactionStatus == "00" && q.TransactionType == "01"
}

// QueryTransaction runs the querydr command for a payment.
func (c *Client) QueryTransaction(ctx context.Context, in QueryRequest) (*QueryResult, error) {
	if err := c.requireConfig(true); err != nil {
		return nil, err
	}
	if in.PaymentID == "" || in.TransactionDate.IsZero() {
		return nil, fmt.Errorf("%w: payment reference and transaction date are required", ErrPaymentValidation)
	}
	ip := in.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	body := queryBody{
		RequestID:       requestID(),
		Version:         Version,
		Command:         "querydr",
		TmnCode:         c.cfg.TmnCode,
		TxnRef:          in.PaymentID,
		OrderInfo:       "Truy van giao dich " + in.PaymentID,
		TransactionDate: formatDate(in.TransactionDate),
		CreateDate:      formatDate(c.now()),
		IPAddr:          ip,
	}
	body.SecureHash = c.sign(pipeJoin(body.RequestID, body.Version, body.Command, body.TmnCode,
		body.TxnRef, body.TransactionDate, body.CreateDate, body.IPAddr, body.OrderInfo))

	raw, err := c.postJSON(ctx, "querydr", in.PaymentID, c.cfg.APIURL, body)
	if err != nil {
		return nil, err
	}
	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperr.Gateway("vnpay.querydr", fmt.Errorf("decode response: %w", err))
	}
	return &QueryResult{
		ResponseCode:      resp.ResponseCode,
		Message:           resp.Message,
		TransactionNo:     resp.TransactionNo,
		TransactionStatus: resp.TransactionStatus,
		TransactionType:   resp.TransactionType,
		BankCode:          resp.BankCode,
		Amount:            string(resp.Amount),
		PayDate:           resp.PayDate,
	}, nil
}

type Bank struct {
	Code string `json:"bank_code"`
	Name string `json:"bank_name"`
	Logo string `json:"logo_link"`
	Type int    `json:"bank_type"`
}

// BankList returns the banks enabled for the merchant.
func (c *Client) BankList(ctx context.Context) ([]Bank, error) {
	if c.cfg.TmnCode == "" || c.cfg.BankListURL == "" {
		return nil, fmt.Errorf("%w: missing tmn_code or bank_list_url", ErrGatewayConfig)
	}
	form := url.Values{"tmn_code": {c.cfg.TmnCode}}
	req, err := http.NewRequest(http.MethodPost, c.cfg.BankListURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("vnpay: build bank list request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	raw, err := c.do(ctx, "banks", "", req, form)
	if err != nil {
		return nil, err
	}
	var banks []Bank
	if err := json.Unmarshal(raw, &banks); err != nil {
		return nil, apperr.Gateway("vnpay.banks", fmt.Errorf("decode response: %w", err))
	}
	return banks, nil
}
