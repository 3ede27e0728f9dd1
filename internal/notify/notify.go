// Package notify delivers customer emails about payments, refunds and
// orders about to expire.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/linktoken"
)

type PaymentMessage struct {
	Order   *orderdomain.Order
	Payment *paymentdomain.Payment
}

type RefundMessage struct {
	Order   *orderdomain.Order
	Payment *paymentdomain.Payment
	Amount  decimal.Decimal
	Reason  string
}

// Sender is implemented by every delivery channel. Callers treat failures
// as non-fatal.
type Sender interface {
	PaymentSucceeded(ctx context.Context, m PaymentMessage) error
	RefundConfirmed(ctx context.Context, m RefundMessage) error
	ExpiringSoon(ctx context.Context, orders []*orderdomain.Order) error
}

type Links struct {
	ViewURL          string
	RefundURL        string
	RefundExecuteURL string
}

// LinkBuilder renders the token links embedded in emails.
type LinkBuilder struct {
	codec   *linktoken.Codec
	baseURL string
}

func NewLinkBuilder(codec *linktoken.Codec, publicAPIURL string) LinkBuilder {
	return LinkBuilder{codec: codec, baseURL: strings.TrimRight(publicAPIURL, "/")}
}

func (b LinkBuilder) For(orderID string) Links {
	refund := b.codec.Derive(orderID, linktoken.PurposeRefund)
	return Links{
		ViewURL:          b.baseURL + "/orders/view/" + b.codec.Derive(orderID, linktoken.PurposeView),
		RefundURL:        b.baseURL + "/orders/refund/" + refund,
		RefundExecuteURL: b.baseURL + "/orders/refund/" + refund + "/execute",
	}
}

// LogSender writes notifications to the log instead of mailing them. It is
// used when no SMTP host is configured.
type LogSender struct {
	links  LinkBuilder
	logger *slog.Logger
}

func NewLogSender(links LinkBuilder, logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{links: links, logger: logger}
}

func (s *LogSender) PaymentSucceeded(ctx context.Context, m PaymentMessage) error {
	l := s.links.For(m.Order.ID)
	s.logger.InfoContext(ctx, "notify: payment succeeded",
		"order_id", m.Order.ID,
		"payment_id", m.Payment.ID,
		"to", m.Order.ShippingAddress.Email,
		"view_url", l.ViewURL,
		"refund_url", l.RefundURL,
	)
	return nil
}

func (s *LogSender) RefundConfirmed(ctx context.Context, m RefundMessage) error {
	s.logger.InfoContext(ctx, "notify: refund confirmed",
		"order_id", m.Order.ID,
		"payment_id", m.Payment.ID,
		"amount", m.Amount.String(),
		"to", m.Order.ShippingAddress.Email,
	)
	return nil
}

func (s *LogSender) ExpiringSoon(ctx context.Context, orders []*orderdomain.Order) error {
	for _, o := range orders {
		s.logger.InfoContext(ctx, "notify: order expiring soon",
			"order_id", o.ID,
			"to", o.ShippingAddress.Email,
			"view_url", s.links.For(o.ID).ViewURL,
		)
	}
	return nil
}
