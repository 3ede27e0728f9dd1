package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

const orderColumns = `id, order_number, customer_id, payment_method, total, status, shipping_address,
	created_at, updated_at, pending_expiry, received_at, shipped_at, delivered_at, cancelled_at, refunded_at`

// UpsertProduct creates or replaces a product row.
func (c conn) UpsertProduct(ctx context.Context, id, title string, price decimal.Decimal, stock int) error {
	const q = `
		INSERT INTO products (id, title, price, stock, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title, price = excluded.price, stock = excluded.stock, updated_at = excluded.updated_at`
	if _, err := c.exec(ctx, q, id, title, price.String(), stock, formatTime(time.Now())); err != nil {
		return fmt.Errorf("sqlstore: upsert product %q: %w", id, err)
	}
	return nil
}

// DeleteProduct removes a product from the catalog. Order items keep their
// product id.
func (c conn) DeleteProduct(ctx context.Context, id string) error {
	if _, err := c.exec(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlstore: delete product %q: %w", id, err)
	}
	return nil
}

// ProductStock returns the current stock of a product.
func (c conn) ProductStock(ctx context.Context, id string) (int, error) {
	var stock int
	err := c.queryRow(ctx, `SELECT stock FROM products WHERE id = ?`, id).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("sqlstore.ProductStock", "product not found")
	}
	if err != nil {
		return 0, fmt.Errorf("sqlstore: product stock %q: %w", id, err)
	}
	return stock, nil
}

// IncrementStock adds qty to a product's stock.
func (c conn) IncrementStock(ctx context.Context, productID string, qty int) error {
	res, err := c.exec(ctx, `UPDATE products SET stock = stock + ?, updated_at = ? WHERE id = ?`,
		qty, formatTime(time.Now()), productID)
	if err != nil {
		return fmt.Errorf("sqlstore: increment stock %q: %w", productID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("sqlstore.IncrementStock", "product "+productID+" not found")
	}
	return nil
}

// DecrementStock removes qty from a product's stock if enough is available.
func (c conn) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	res, err := c.exec(ctx, `UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?`,
		qty, formatTime(time.Now()), productID, qty)
	if err != nil {
		return false, fmt.Errorf("sqlstore: decrement stock %q: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: decrement stock %q: %w", productID, err)
	}
	return n == 1, nil
}

// CountOrdersWithPrefix counts orders whose number starts with prefix.
func (c conn) CountOrdersWithPrefix(ctx context.Context, prefix string) (int, error) {
	var n int
	if err := c.queryRow(ctx, `SELECT COUNT(*) FROM orders WHERE order_number LIKE ?`, prefix+"%").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: count orders: %w", err)
	}
	return n, nil
}

// InsertOrder writes an order and its items.
func (c conn) InsertOrder(ctx context.Context, o *domain.Order) error {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("sqlstore: encode shipping address: %w", err)
	}
	q := `INSERT INTO orders (` + orderColumns + `) VALUES (` + placeholders(15) + `)`
	_, err = c.exec(ctx, q,
		o.ID, o.OrderNumber, o.CustomerID, o.PaymentMethod, o.Total.String(), string(o.Status), string(addr),
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
		nullTime(o.PendingExpiry), nullTime(o.ReceivedAt), nullTime(o.ShippedAt),
		nullTime(o.DeliveredAt), nullTime(o.CancelledAt), nullTime(o.RefundedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: insert order %q: %w", o.ID, err)
	}
	for i, it := range o.Items {
		_, err := c.exec(ctx,
			`INSERT INTO order_items (order_id, position, product_id, title, quantity, unit_price) VALUES (?, ?, ?, ?, ?, ?)`,
			o.ID, i, it.ProductID, it.Title, it.Quantity, it.UnitPrice.String())
		if err != nil {
			return fmt.Errorf("sqlstore: insert item %d of order %q: %w", i, o.ID, err)
		}
	}
	return nil
}

func (c conn) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := c.queryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("sqlstore.GetOrder", "order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get order %q: %w", id, err)
	}
	if o.Items, err = c.orderItems(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

func (c conn) orderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := c.query(ctx,
		`SELECT product_id, title, quantity, unit_price FROM order_items WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: items of %q: %w", orderID, err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var (
			it    domain.OrderItem
			price string
		)
		if err := rows.Scan(&it.ProductID, &it.Title, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("sqlstore: scan item of %q: %w", orderID, err)
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sqlstore: item price of %q: %w", orderID, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ForEachOrderID calls fn with every order id, newest first, until fn
// returns false. fn must not use the store: the cursor is still open.
func (c conn) ForEachOrderID(ctx context.Context, fn func(id string) bool) error {
	rows, err := c.query(ctx, `SELECT id FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return fmt.Errorf("sqlstore: scan order ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("sqlstore: scan order id: %w", err)
		}
		if !fn(id) {
			return nil
		}
	}
	return rows.Err()
}

// ListExpiredPending returns pending orders whose expiry is before now.
func (c conn) ListExpiredPending(ctx context.Context, now time.Time) ([]*domain.Order, error) {
	return c.listOrders(ctx,
		`WHERE status = ? AND pending_expiry IS NOT NULL AND pending_expiry < ? ORDER BY pending_expiry`,
		string(domain.StatusPending), formatTime(now))
}

// ListExpiringSoon returns pending orders expiring in [now, until).
func (c conn) ListExpiringSoon(ctx context.Context, now, until time.Time) ([]*domain.Order, error) {
	return c.listOrders(ctx,
		`WHERE status = ? AND pending_expiry >= ? AND pending_expiry < ? ORDER BY pending_expiry`,
		string(domain.StatusPending), formatTime(now), formatTime(until))
}

func (c conn) listOrders(ctx context.Context, where string, args ...any) ([]*domain.Order, error) {
	rows, err := c.query(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list orders: %w", err)
	}
	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlstore: scan order: %w", err)
		}
		out = append(out, o)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list orders: %w", err)
	}
	// Items are loaded after the cursor is closed: sqlite runs on a single
	// connection.
	for _, o := range out {
		if o.Items, err = c.orderItems(ctx, o.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TransitionOrder moves an order to t.To if its status is one of t.From,
// stamping the timestamp column that belongs to the target status.
func (c conn) TransitionOrder(ctx context.Context, t domain.Transition) (bool, error) {
	if len(t.From) == 0 {
		return false, fmt.Errorf("sqlstore: transition %q: no source statuses", t.OrderID)
	}
	at := formatTime(t.At)
	set := `status = ?, updated_at = ?`
	args := []any{string(t.To), at}
	if col := stampColumn(t.To); col != "" {
		set += `, ` + col + ` = ?`
		args = append(args, at)
	}
	if t.Refunded && t.To != domain.StatusRefunded {
		set += `, refunded_at = ?`
		args = append(args, at)
	}
	args = append(args, t.OrderID)
	for _, s := range t.From {
		args = append(args, string(s))
	}

	q := `UPDATE orders SET ` + set + ` WHERE id = ? AND status IN (` + placeholders(len(t.From)) + `)`
	res, err := c.exec(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("sqlstore: transition order %q to %s: %w", t.OrderID, t.To, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: transition order %q: %w", t.OrderID, err)
	}
	return n == 1, nil
}

func stampColumn(s domain.OrderStatus) string {
	switch s {
	case domain.StatusReceived:
		return "received_at"
	case domain.StatusShipped:
		return "shipped_at"
	case domain.StatusDelivered:
		return "delivered_at"
	case domain.StatusCanceled:
		return "cancelled_at"
	case domain.StatusRefunded:
		return "refunded_at"
	}
	return ""
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                                                     domain.Order
		total, status, addr, createdAt, updatedAt             string
		expiry, received, shipped, delivered, cancelled, refd sql.NullString
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.PaymentMethod, &total, &status, &addr,
		&createdAt, &updatedAt, &expiry, &received, &shipped, &delivered, &cancelled, &refd)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("sqlstore: order total: %w", err)
	}
	if err := json.Unmarshal([]byte(addr), &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("sqlstore: shipping address: %w", err)
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&o.PendingExpiry, expiry}, {&o.ReceivedAt, received}, {&o.ShippedAt, shipped},
		{&o.DeliveredAt, delivered}, {&o.CancelledAt, cancelled}, {&o.RefundedAt, refd},
	} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return nil, err
		}
	}
	return &o, nil
}
