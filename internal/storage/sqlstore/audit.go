package sqlstore

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
)

func (c conn) AppendTransaction(ctx context.Context, t *domain.Transaction) error {
	_, err := c.exec(ctx,
		`INSERT INTO transactions (id, payment_id, transaction_ref, amount, type, status, gateway, gateway_response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PaymentID, t.TransactionRef, t.Amount.String(), string(t.Type), string(t.Status),
		t.Gateway, t.GatewayResponse, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlstore: append transaction for %q: %w", t.PaymentID, err)
	}
	return nil
}

func (c conn) ListTransactions(ctx context.Context, paymentID string) ([]*domain.Transaction, error) {
	rows, err := c.query(ctx,
		`SELECT id, payment_id, transaction_ref, amount, type, status, gateway, gateway_response, created_at
		 FROM transactions WHERE payment_id = ? ORDER BY created_at DESC, id`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list transactions of %q: %w", paymentID, err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		var (
			t                                 domain.Transaction
			amount, typ, status, createdAt string
		)
		if err := rows.Scan(&t.ID, &t.PaymentID, &t.TransactionRef, &amount, &typ, &status,
			&t.Gateway, &t.GatewayResponse, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlstore: scan transaction: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("sqlstore: transaction amount: %w", err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		t.Type = domain.TransactionType(typ)
		t.Status = domain.TransactionStatus(status)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (c conn) AppendLog(ctx context.Context, l *domain.Log) error {
	_, err := c.exec(ctx,
		`INSERT INTO payment_logs (id, payment_id, order_id, type, level, message, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.PaymentID, l.OrderID, string(l.Type), string(l.Level), l.Message, l.Data, formatTime(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlstore: append payment log: %w", err)
	}
	return nil
}

func (c conn) ListLogs(ctx context.Context, paymentID string) ([]*domain.Log, error) {
	return c.listLogs(ctx, `payment_id = ?`, paymentID)
}

func (c conn) ListLogsByOrder(ctx context.Context, orderID string) ([]*domain.Log, error) {
	return c.listLogs(ctx, `order_id = ?`, orderID)
}

func (c conn) listLogs(ctx context.Context, where string, arg string) ([]*domain.Log, error) {
	rows, err := c.query(ctx,
		`SELECT id, payment_id, order_id, type, level, message, data, created_at
		 FROM payment_logs WHERE `+where+` ORDER BY created_at DESC, id`, arg)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list payment logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Log
	for rows.Next() {
		var (
			l                       domain.Log
			typ, level, createdAt string
		)
		if err := rows.Scan(&l.ID, &l.PaymentID, &l.OrderID, &typ, &level, &l.Message, &l.Data, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlstore: scan payment log: %w", err)
		}
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		l.Type = domain.LogType(typ)
		l.Level = domain.LogLevel(level)
		out = append(out, &l)
	}
	return out, rows.Err()
}
