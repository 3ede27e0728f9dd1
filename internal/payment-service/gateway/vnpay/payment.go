package vnpay

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/pkg/money"
)

const paymentWindow = 15 * time.Minute

// PaymentIntent is what the core wants the customer to pay.
type PaymentIntent struct {
	PaymentID string
	OrderID   string
	Amount    decimal.Decimal
	OrderInfo string
	ClientIP  string
	BankCode  string
	CreatedAt time.Time
}

// BuildPaymentURL returns the signed redirect URL for the hosted payment
// page. vnp_TxnRef is the payment id.
func (c *Client) BuildPaymentURL(ctx context.Context, in PaymentIntent) (string, error) {
	if err := c.requireConfig(false); err != nil {
		return "", err
	}
	if in.PaymentID == "" {
		return "", fmt.Errorf("%w: missing payment reference", ErrPaymentValidation)
	}
	if !in.Amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive, got %s", ErrPaymentValidation, in.Amount)
	}

	created := in.CreatedAt
	if created.IsZero() {
		created = c.now()
	}
	info := in.OrderInfo
	if info == "" {
		info = "Thanh toan don hang " + in.OrderID
	}
	ip := in.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}

	params := map[string]string{
		"vnp_Version":    Version,
		"vnp_Command":    "pay",
		"vnp_TmnCode":    c.cfg.TmnCode,
		"vnp_Locale":     c.cfg.Locale,
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     in.PaymentID,
		"vnp_OrderInfo":  info,
		"vnp_OrderType":  "other",
		"vnp_Amount":     money.ToMinorUnits(in.Amount),
		"vnp_ReturnUrl":  c.cfg.ReturnURL,
		"vnp_IpAddr":     ip,
		"vnp_CreateDate": formatDate(created),
		"vnp_ExpireDate": formatDate(created.Add(paymentWindow)),
		"vnp_BankCode":   in.BankCode,
	}
	data := signData(params)
	u := c.cfg.PayURL + "?" + data + "&vnp_SecureHash=" + c.sign(data)

	c.record(ctx, AuditEntry{Operation: "pay", PaymentID: in.PaymentID, Request: params})
	return u, nil
}
