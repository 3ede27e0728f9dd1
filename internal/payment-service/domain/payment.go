package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

type Method string

const (
	MethodVNPay Method = "VNPAY"
	MethodCOD   Method = "COD"
)

func (m Method) Valid() bool { return m == MethodVNPay || m == MethodCOD }

// UsesGateway reports whether money moves through the external gateway.
func (m Method) UsesGateway() bool { return m == MethodVNPay }

// Payment is one attempt to collect an order's amount, in VND.
type Payment struct {
	ID            string
	OrderID       string
	Method        Method
	Amount        decimal.Decimal
	Status        Status
	Description   string
	TransactionNo string
	BankCode      string
	BankTranNo    string
	CardType      string
	ResponseCode  string
	PaidAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	RefundedAt    *time.Time

	// RefundClaim holds the id of the refund run that owns the gateway call.
	RefundClaim     string
	RefundClaimedAt *time.Time
	// ReconciliationPending is set together with REFUNDED and cleared once
	// the order side of the refund is committed.
	ReconciliationPending bool
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRefunded},
}

// CanTransition reports whether from -> to is legal. REFUNDED and FAILED
// are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Change is a compare-and-set request on a payment's status. Gateway fields
// are written only when non-empty.
type Change struct {
	PaymentID     string
	From          []Status
	To            Status
	At            time.Time
	TransactionNo string
	BankCode      string
	BankTranNo    string
	CardType      string
	ResponseCode  string
	PaidAt        *time.Time
	// Claim, when set, must match the payment's refund claim.
	Claim string
	// MarkReconciliation sets reconciliation_pending in the same update.
	MarkReconciliation bool
}

// RefundReceipt is what the gateway (or the cash path) reports for a
// completed refund.
type RefundReceipt struct {
	TransactionNo string
	ResponseCode  string
	Message       string
	Amount        decimal.Decimal
	Raw           string
}

// ReconciliationItem is a refunded payment whose order side is not settled.
type ReconciliationItem struct {
	PaymentID             string
	OrderID               string
	PaymentStatus         Status
	OrderStatus           string
	ReconciliationPending bool
	RefundClaim           string
	RefundClaimedAt       *time.Time
	RefundedAt            *time.Time
}
