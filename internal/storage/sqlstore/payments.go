package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

const paymentColumns = `id, order_id, method, amount, status, description, transaction_no, bank_code,
	bank_tran_no, card_type, response_code, paid_at, created_at, updated_at, completed_at, refunded_at,
	refund_claim, refund_claimed_at, reconciliation_pending`

func (c conn) InsertPayment(ctx context.Context, p *domain.Payment) error {
	q := `INSERT INTO payments (` + paymentColumns + `) VALUES (` + placeholders(19) + `)`
	_, err := c.exec(ctx, q,
		p.ID, p.OrderID, string(p.Method), p.Amount.String(), string(p.Status), p.Description,
		p.TransactionNo, p.BankCode, p.BankTranNo, p.CardType, p.ResponseCode, nullTime(p.PaidAt),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt), nullTime(p.CompletedAt), nullTime(p.RefundedAt),
		p.RefundClaim, nullTime(p.RefundClaimedAt), boolInt(p.ReconciliationPending),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: insert payment %q: %w", p.ID, err)
	}
	return nil
}

func (c conn) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	p, err := scanPayment(c.queryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("sqlstore.GetPayment", "payment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get payment %q: %w", id, err)
	}
	return p, nil
}

// GetPaymentByOrder returns the most recent payment of an order.
func (c conn) GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	p, err := scanPayment(c.queryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = ? ORDER BY created_at DESC LIMIT 1`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("sqlstore.GetPaymentByOrder", "payment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: payment of order %q: %w", orderID, err)
	}
	return p, nil
}

// ChangeStatus is the single compare-and-set used for every payment
// transition.
func (c conn) ChangeStatus(ctx context.Context, ch domain.Change) (bool, error) {
	if len(ch.From) == 0 {
		return false, fmt.Errorf("sqlstore: change payment %q: no source statuses", ch.PaymentID)
	}
	at := formatTime(ch.At)
	set := `status = ?, updated_at = ?`
	args := []any{string(ch.To), at}

	switch ch.To {
	case domain.StatusCompleted:
		set += `, completed_at = ?`
		args = append(args, at)
	case domain.StatusRefunded:
		set += `, refunded_at = ?`
		args = append(args, at)
	}
	for _, f := range []struct {
		col, val string
	}{
		{"transaction_no", ch.TransactionNo}, {"bank_code", ch.BankCode}, {"bank_tran_no", ch.BankTranNo},
		{"card_type", ch.CardType}, {"response_code", ch.ResponseCode},
	} {
		if f.val != "" {
			set += `, ` + f.col + ` = ?`
			args = append(args, f.val)
		}
	}
	if ch.PaidAt != nil {
		set += `, paid_at = ?`
		args = append(args, formatTime(*ch.PaidAt))
	}
	if ch.MarkReconciliation {
		set += `, reconciliation_pending = 1`
	}

	where := ` WHERE id = ? AND status IN (` + placeholders(len(ch.From)) + `)`
	args = append(args, ch.PaymentID)
	for _, s := range ch.From {
		args = append(args, string(s))
	}
	if ch.Claim != "" {
		where += ` AND refund_claim = ?`
		args = append(args, ch.Claim)
	}

	res, err := c.exec(ctx, `UPDATE payments SET `+set+where, args...)
	if err != nil {
		return false, fmt.Errorf("sqlstore: change payment %q to %s: %w", ch.PaymentID, ch.To, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: change payment %q: %w", ch.PaymentID, err)
	}
	return n == 1, nil
}

// SetStatus overwrites the status without a guard. It backs the
// administrative status endpoint.
func (c conn) SetStatus(ctx context.Context, id string, to domain.Status, transactionNo string, at time.Time) error {
	ts := formatTime(at)
	set := `status = ?, updated_at = ?`
	args := []any{string(to), ts}
	switch to {
	case domain.StatusCompleted:
		set += `, completed_at = ?`
		args = append(args, ts)
	case domain.StatusRefunded:
		set += `, refunded_at = ?`
		args = append(args, ts)
	}
	if transactionNo != "" {
		set += `, transaction_no = ?`
		args = append(args, transactionNo)
	}
	args = append(args, id)

	res, err := c.exec(ctx, `UPDATE payments SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: set payment %q status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("sqlstore.SetStatus", "payment not found")
	}
	return nil
}

// ClaimRefund marks a COMPLETED payment as owned by one refund run. Only
// one claim can be held at a time.
func (c conn) ClaimRefund(ctx context.Context, paymentID, claim string, at time.Time) (bool, error) {
	res, err := c.exec(ctx,
		`UPDATE payments SET refund_claim = ?, refund_claimed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND refund_claim = ''`,
		claim, formatTime(at), formatTime(at), paymentID, string(domain.StatusCompleted))
	if err != nil {
		return false, fmt.Errorf("sqlstore: claim refund of %q: %w", paymentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: claim refund of %q: %w", paymentID, err)
	}
	return n == 1, nil
}

// ReleaseRefundClaim drops a claim that did not lead to a refund.
func (c conn) ReleaseRefundClaim(ctx context.Context, paymentID, claim string) error {
	_, err := c.exec(ctx,
		`UPDATE payments SET refund_claim = '', refund_claimed_at = NULL
		 WHERE id = ? AND refund_claim = ? AND status = ?`,
		paymentID, claim, string(domain.StatusCompleted))
	if err != nil {
		return fmt.Errorf("sqlstore: release refund claim of %q: %w", paymentID, err)
	}
	return nil
}

func (c conn) ClearReconciliation(ctx context.Context, paymentID string) error {
	if _, err := c.exec(ctx, `UPDATE payments SET reconciliation_pending = 0 WHERE id = ?`, paymentID); err != nil {
		return fmt.Errorf("sqlstore: clear reconciliation of %q: %w", paymentID, err)
	}
	return nil
}

// ListReconciliation returns refunds whose two halves disagree: refunded
// payments flagged pending or whose order is not settled, and COMPLETED
// payments holding a refund claim older than staleClaimBefore.
func (c conn) ListReconciliation(ctx context.Context, staleClaimBefore time.Time) ([]domain.ReconciliationItem, error) {
	const q = `
		SELECT p.id, p.order_id, p.status, COALESCE(o.status, ''), p.reconciliation_pending,
		       p.refund_claim, p.refund_claimed_at, p.refunded_at
		FROM   payments p
		LEFT JOIN orders o ON o.id = p.order_id
		WHERE  (p.status = ? AND (p.reconciliation_pending = 1 OR o.status IS NULL OR o.status NOT IN (?, ?)))
		   OR  (p.status = ? AND p.refund_claim <> '' AND p.refund_claimed_at < ?)
		ORDER  BY p.updated_at`
	rows, err := c.query(ctx, q,
		string(domain.StatusRefunded), "CANCELED", "REFUNDED",
		string(domain.StatusCompleted), formatTime(staleClaimBefore))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: reconciliation query: %w", err)
	}
	defer rows.Close()

	var out []domain.ReconciliationItem
	for rows.Next() {
		var (
			it                  domain.ReconciliationItem
			status              string
			pending             int
			claimedAt, refunded sql.NullString
		)
		if err := rows.Scan(&it.PaymentID, &it.OrderID, &status, &it.OrderStatus, &pending,
			&it.RefundClaim, &claimedAt, &refunded); err != nil {
			return nil, fmt.Errorf("sqlstore: scan reconciliation row: %w", err)
		}
		it.PaymentStatus = domain.Status(status)
		it.ReconciliationPending = pending == 1
		if it.RefundClaimedAt, err = parseNullTime(claimedAt); err != nil {
			return nil, err
		}
		if it.RefundedAt, err = parseNullTime(refunded); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		p                                                 domain.Payment
		method, amount, status, createdAt, updatedAt      string
		paidAt, completedAt, refundedAt, refundClaimedAt sql.NullString
		pending                                           int
	)
	err := row.Scan(&p.ID, &p.OrderID, &method, &amount, &status, &p.Description, &p.TransactionNo,
		&p.BankCode, &p.BankTranNo, &p.CardType, &p.ResponseCode, &paidAt, &createdAt, &updatedAt,
		&completedAt, &refundedAt, &p.RefundClaim, &refundClaimedAt, &pending)
	if err != nil {
		return nil, err
	}
	p.Method = domain.Method(method)
	p.Status = domain.Status(status)
	p.ReconciliationPending = pending == 1
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("sqlstore: payment amount: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&p.PaidAt, paidAt}, {&p.CompletedAt, completedAt}, {&p.RefundedAt, refundedAt}, {&p.RefundClaimedAt, refundClaimedAt},
	} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
