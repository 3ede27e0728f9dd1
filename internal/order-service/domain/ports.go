package domain

import (
	"context"
	"time"
)

// Repository is the persistence port for orders.
type Repository interface {
	GetOrder(ctx context.Context, id string) (*Order, error)
	ForEachOrderID(ctx context.Context, fn func(id string) bool) error
	ListExpiredPending(ctx context.Context, now time.Time) ([]*Order, error)
	ListExpiringSoon(ctx context.Context, now, until time.Time) ([]*Order, error)
	TransitionOrder(ctx context.Context, t Transition) (bool, error)
	CountOrdersWithPrefix(ctx context.Context, prefix string) (int, error)
	InTx(ctx context.Context, fn func(tx TxRepository) error) error
}

// TxRepository is the subset of operations available inside a transaction.
type TxRepository interface {
	InsertOrder(ctx context.Context, o *Order) error
	TransitionOrder(ctx context.Context, t Transition) (bool, error)
	IncrementStock(ctx context.Context, productID string, qty int) error
	DecrementStock(ctx context.Context, productID string, qty int) (bool, error)
}
