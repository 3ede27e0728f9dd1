package coordinator

import (
	"time"

	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

// DefaultRefundWindow is how long after payment a refund may be requested.
const DefaultRefundWindow = 30 * 24 * time.Hour

var (
	ErrNotCompleted       = apperr.BadRequest("", "payment is not completed")
	ErrBeyondRefundWindow = apperr.BadRequest("", "refund request is beyond the refund window")
	ErrAlreadyRefunded    = apperr.BadRequest("", "this order has already been refunded")
)

// RefundDeadline is the last instant a refund of p is accepted: window
// after completion, or after the order was placed when completion time is
// unknown.
func RefundDeadline(o *orderdomain.Order, p *paymentdomain.Payment, window time.Duration) time.Time {
	start := o.CreatedAt
	if p.CompletedAt != nil {
		start = *p.CompletedAt
	}
	return start.Add(window)
}

// Eligibility returns nil when o and p may be refunded at now. The window
// is inclusive: a refund exactly window after completion is accepted. The
// order's status does not matter; a payment that completed after its order
// expired is still refundable.
func Eligibility(o *orderdomain.Order, p *paymentdomain.Payment, now time.Time, window time.Duration) error {
	switch {
	case p.Status == paymentdomain.StatusRefunded:
		return ErrAlreadyRefunded
	case p.Status != paymentdomain.StatusCompleted:
		return ErrNotCompleted
	case now.After(RefundDeadline(o, p, window)):
		return ErrBeyondRefundWindow
	default:
		return nil
	}
}
