package coordinator

import (
	"context"

	"github.com/jcmexdev/storefront-sagas/internal/notify"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentapp "github.com/jcmexdev/storefront-sagas/internal/payment-service/app"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/gateway/vnpay"
)

// Orders is the part of the orders service the refund saga drives.
type Orders interface {
	Get(ctx context.Context, id string) (*orderdomain.Order, error)
	ForEachOrderID(ctx context.Context, fn func(id string) bool) error
	CancelWithRestock(ctx context.Context, id string, reason orderdomain.CancelReason) (bool, error)
}

// Payments is the part of the payments service the refund saga drives.
type Payments interface {
	Get(ctx context.Context, id string) (*paymentdomain.Payment, error)
	GetByOrder(ctx context.Context, orderID string) (*paymentdomain.Payment, error)
	ClaimRefund(ctx context.Context, paymentID, claim string) (bool, error)
	ReleaseRefundClaim(ctx context.Context, paymentID, claim string) error
	RefundAtGateway(ctx context.Context, p *paymentdomain.Payment, in paymentapp.RefundInput) (*paymentdomain.RefundReceipt, error)
	CommitRefund(ctx context.Context, p *paymentdomain.Payment, claim string, r *paymentdomain.RefundReceipt) (*paymentdomain.Payment, error)
	ClearReconciliation(ctx context.Context, paymentID string) error
	ListReconciliation(ctx context.Context) ([]paymentdomain.ReconciliationItem, error)
	GatewayStatus(ctx context.Context, id, clientIP string) (*vnpay.QueryResult, error)
}

type Notifier interface {
	RefundConfirmed(ctx context.Context, m notify.RefundMessage) error
}
