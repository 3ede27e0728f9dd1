package inventoryservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/storefront-sagas/internal/inventory-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

// StockWriter increments product stock. It is usually a transaction handle,
// so a release commits or rolls back together with the order change.
type StockWriter interface {
	IncrementStock(ctx context.Context, productID string, qty int) error
}

type Client struct {
	logger *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger}
}

// Release restores every item of req through w. Items with a non-positive
// quantity are rejected before any write. A product that no longer exists
// is skipped with a warning; its units have nowhere to go.
func (c *Client) Release(ctx context.Context, w StockWriter, req domain.Release) error {
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return fmt.Errorf("inventory: invalid release item %q x%d for order %s", item.ProductID, item.Quantity, req.OrderID)
		}
	}

	for _, item := range req.Items {
		err := w.IncrementStock(ctx, item.ProductID, item.Quantity)
		if apperr.Is(err, apperr.KindNotFound) {
			c.logger.WarnContext(ctx, "stock not restored, product missing",
				"order_id", req.OrderID,
				"product_id", item.ProductID,
				"quantity", item.Quantity,
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("inventory: restore %s for order %s: %w", item.ProductID, req.OrderID, err)
		}
		c.logger.InfoContext(ctx, "stock restored",
			"order_id", req.OrderID,
			"product_id", item.ProductID,
			"quantity", item.Quantity,
			"reason", req.Reason,
		)
	}
	return nil
}
