// Package ports lists what the HTTP layer needs from the order, payment and
// refund components.
package ports

import (
	"context"
	"net/url"
	"time"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator"
	orderapp "github.com/jcmexdev/storefront-sagas/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentapp "github.com/jcmexdev/storefront-sagas/internal/payment-service/app"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/gateway/vnpay"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/linktoken"
)

type OrderService interface {
	Place(ctx context.Context, in orderapp.PlaceOrder) (*orderdomain.Order, error)
	Get(ctx context.Context, id string) (*orderdomain.Order, error)
	FindExpiringSoon(ctx context.Context, within time.Duration) ([]*orderdomain.Order, error)
}

type PaymentService interface {
	Create(ctx context.Context, in paymentapp.CreatePayment) (*paymentapp.CreateResult, error)
	Process(ctx context.Context, id, clientIP string) (*paymentapp.CreateResult, error)
	Get(ctx context.Context, id string) (*paymentdomain.Payment, error)
	GetByOrder(ctx context.Context, orderID string) (*paymentdomain.Payment, error)
	Transactions(ctx context.Context, paymentID string) ([]*paymentdomain.Transaction, error)
	Logs(ctx context.Context, paymentID string) ([]*paymentdomain.Log, error)
	LogsByOrder(ctx context.Context, orderID string) ([]*paymentdomain.Log, error)
	GatewayStatus(ctx context.Context, id, clientIP string) (*vnpay.QueryResult, error)
	BankList(ctx context.Context) ([]vnpay.Bank, error)
	HandleCallback(ctx context.Context, values url.Values) (*paymentapp.CallbackOutcome, error)
	HandleIPN(ctx context.Context, values url.Values) paymentapp.IPNResponse
	UpdateStatus(ctx context.Context, id string, status paymentdomain.Status, transactionNo string) (*paymentdomain.Payment, error)
}

type RefundService interface {
	Run(ctx context.Context, req coordinator.RefundRequest) (*coordinator.RefundResult, error)
	Lookup(ctx context.Context, token string, purpose linktoken.Purpose) (*orderdomain.Order, *paymentdomain.Payment, error)
	Status(ctx context.Context, token string) (*coordinator.RefundStatus, error)
}

type Reconciler interface {
	Pending(ctx context.Context) ([]paymentdomain.ReconciliationItem, error)
	Resume(ctx context.Context, paymentID string) (*coordinator.RefundResult, error)
}

// Sweeper runs the order expiry sweep on demand.
type Sweeper interface {
	Trigger(ctx context.Context) (int, error)
}
