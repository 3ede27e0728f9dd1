package coordinator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
)

func TestEligibility(t *testing.T) {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	completed := func(ago time.Duration) *time.Time {
		at := now.Add(-ago)
		return &at
	}
	received := &orderdomain.Order{Status: orderdomain.StatusReceived, CreatedAt: now.Add(-40 * day)}

	tests := []struct {
		name    string
		order   *orderdomain.Order
		payment *paymentdomain.Payment
		want    error
	}{
		{"completed yesterday", received, &paymentdomain.Payment{Status: paymentdomain.StatusCompleted, CompletedAt: completed(day)}, nil},
		{"pending", received, &paymentdomain.Payment{Status: paymentdomain.StatusPending}, coordinator.ErrNotCompleted},
		{"failed", received, &paymentdomain.Payment{Status: paymentdomain.StatusFailed}, coordinator.ErrNotCompleted},
		{"refunded", received, &paymentdomain.Payment{Status: paymentdomain.StatusRefunded}, coordinator.ErrAlreadyRefunded},
		{"boundary", received, &paymentdomain.Payment{Status: paymentdomain.StatusCompleted, CompletedAt: completed(30 * day)}, nil},
		{"just past boundary", received, &paymentdomain.Payment{Status: paymentdomain.StatusCompleted, CompletedAt: completed(30*day + time.Second)}, coordinator.ErrBeyondRefundWindow},
		{"past window", received, &paymentdomain.Payment{Status: paymentdomain.StatusCompleted, CompletedAt: completed(31 * day)}, coordinator.ErrBeyondRefundWindow},
		{"no completion time uses order date", received, &paymentdomain.Payment{Status: paymentdomain.StatusCompleted}, coordinator.ErrBeyondRefundWindow},
		{
			"expired order with completed payment",
			&orderdomain.Order{Status: orderdomain.StatusCanceled, CreatedAt: now},
			&paymentdomain.Payment{Status: paymentdomain.StatusCompleted, CompletedAt: completed(day)},
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := coordinator.Eligibility(tt.order, tt.payment, now, coordinator.DefaultRefundWindow)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRefundDeadline(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o := &orderdomain.Order{CreatedAt: created}

	assert.Equal(t, created.Add(30*day), coordinator.RefundDeadline(o, &paymentdomain.Payment{}, coordinator.DefaultRefundWindow))

	done := created.Add(2 * day)
	got := coordinator.RefundDeadline(o, &paymentdomain.Payment{CompletedAt: &done}, coordinator.DefaultRefundWindow)
	assert.Equal(t, done.Add(30*day), got)
}
