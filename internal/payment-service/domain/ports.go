package domain

import (
	"context"
	"time"
)

// Repository is the persistence port for payments and their audit trail.
type Repository interface {
	InsertPayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	GetPaymentByOrder(ctx context.Context, orderID string) (*Payment, error)

	// ChangeStatus applies c only if the payment is currently in one of
	// c.From. It reports whether a row changed.
	ChangeStatus(ctx context.Context, c Change) (bool, error)
	SetStatus(ctx context.Context, id string, to Status, transactionNo string, at time.Time) error

	ClaimRefund(ctx context.Context, paymentID, claim string, at time.Time) (bool, error)
	ReleaseRefundClaim(ctx context.Context, paymentID, claim string) error
	ClearReconciliation(ctx context.Context, paymentID string) error
	ListReconciliation(ctx context.Context, staleClaimBefore time.Time) ([]ReconciliationItem, error)

	AppendTransaction(ctx context.Context, t *Transaction) error
	ListTransactions(ctx context.Context, paymentID string) ([]*Transaction, error)
	AppendLog(ctx context.Context, l *Log) error
	ListLogs(ctx context.Context, paymentID string) ([]*Log, error)
	ListLogsByOrder(ctx context.Context, orderID string) ([]*Log, error)
}
