package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	inventoryservice "github.com/jcmexdev/storefront-sagas/internal/inventory-service"
	inventorydomain "github.com/jcmexdev/storefront-sagas/internal/inventory-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

// DefaultPendingTTL is how long an unpaid order keeps its stock.
const DefaultPendingTTL = 24 * time.Hour

type Service struct {
	repo       domain.Repository
	inventory  *inventoryservice.Client
	pendingTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithPendingTTL(d time.Duration) Option { return func(s *Service) { s.pendingTTL = d } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(repo domain.Repository, inventory *inventoryservice.Client, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		inventory:  inventory,
		pendingTTL: DefaultPendingTTL,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type PlaceOrder struct {
	CustomerID      string
	PaymentMethod   string
	Items           []domain.OrderItem
	ShippingAddress domain.ShippingAddress
	// Total is the priced cart total. Zero means the sum of the items.
	Total decimal.Decimal
}

var ErrOutOfStock = apperr.Conflict("", "not enough stock")

// Place reserves stock and records a pending order that expires after the
// configured TTL unless it is paid.
func (s *Service) Place(ctx context.Context, in PlaceOrder) (*domain.Order, error) {
	if len(in.Items) == 0 {
		return nil, apperr.BadRequest("orders.Place", "order has no items")
	}
	for _, it := range in.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return nil, apperr.BadRequest("orders.Place", "invalid order item")
		}
	}

	now := s.now().UTC()
	expiry := now.Add(s.pendingTTL)
	o := &domain.Order{
		ID:              uuid.NewString(),
		CustomerID:      in.CustomerID,
		Items:           in.Items,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		Total:           in.Total,
		Status:          domain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		PendingExpiry:   &expiry,
	}
	if o.Total.IsZero() {
		o.Total = o.ItemsTotal()
	}

	prefix := fmt.Sprintf("ORD-%s-", now.Format("200601"))
	n, err := s.repo.CountOrdersWithPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	o.OrderNumber = fmt.Sprintf("%s%04d", prefix, n+1)

	err = s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		for _, it := range o.Items {
			ok, err := tx.DecrementStock(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: product %s", ErrOutOfStock, it.ProductID)
			}
		}
		return tx.InsertOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "order placed", "order_id", o.ID, "order_number", o.OrderNumber, "expires_at", expiry)
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ForEachOrderID iterates order ids, newest first.
func (s *Service) ForEachOrderID(ctx context.Context, fn func(id string) bool) error {
	return s.repo.ForEachOrderID(ctx, fn)
}

// HandlePaymentCompleted moves a pending order to received. It reports
// false when the order had already left PENDING.
func (s *Service) HandlePaymentCompleted(ctx context.Context, orderID, paymentID string) (bool, error) {
	ok, err := s.repo.TransitionOrder(ctx, domain.Transition{
		OrderID: orderID,
		From:    []domain.OrderStatus{domain.StatusPending},
		To:      domain.StatusReceived,
		At:      s.now().UTC(),
	})
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.InfoContext(ctx, "order received", "order_id", orderID, "payment_id", paymentID)
	} else {
		s.logger.WarnContext(ctx, "payment completed for an order that is not pending", "order_id", orderID, "payment_id", paymentID)
	}
	return ok, nil
}

// CancelWithRestock cancels the order and returns its items to stock in a
// single transaction. An order that is already settled is left untouched
// and false is returned, so stock is restored at most once.
func (s *Service) CancelWithRestock(ctx context.Context, orderID string, reason domain.CancelReason) (bool, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	from := domain.SourcesOf(domain.StatusCanceled)
	if reason == domain.CancelExpired {
		from = []domain.OrderStatus{domain.StatusPending}
	}

	items := make([]inventorydomain.StockItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, inventorydomain.StockItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	var applied bool
	err = s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		ok, err := tx.TransitionOrder(ctx, domain.Transition{
			OrderID:  orderID,
			From:     from,
			To:       domain.StatusCanceled,
			At:       s.now().UTC(),
			Refunded: reason == domain.CancelRefund,
		})
		if err != nil || !ok {
			return err
		}
		applied = true
		return s.inventory.Release(ctx, tx, inventorydomain.Release{OrderID: orderID, Items: items, Reason: string(reason)})
	})
	if err != nil {
		return false, fmt.Errorf("orders: cancel %s: %w", orderID, err)
	}
	if applied {
		s.logger.InfoContext(ctx, "order canceled", "order_id", orderID, "reason", string(reason))
	}
	return applied, nil
}

// CancelExpiredOrders cancels every pending order past its expiry, each in
// its own transaction. It returns how many were canceled; failures on one
// order do not stop the sweep.
func (s *Service) CancelExpiredOrders(ctx context.Context) (int, error) {
	expired, err := s.repo.ListExpiredPending(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	var (
		canceled int
		errs     []error
	)
	for _, o := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := s.CancelWithRestock(ctx, o.ID, domain.CancelExpired)
		if err != nil {
			s.logger.ErrorContext(ctx, "expire order failed", "order_id", o.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			canceled++
		}
	}
	return canceled, errors.Join(errs...)
}

// FindExpiringSoon lists pending orders that expire within the window.
func (s *Service) FindExpiringSoon(ctx context.Context, within time.Duration) ([]*domain.Order, error) {
	now := s.now().UTC()
	return s.repo.ListExpiringSoon(ctx, now, now.Add(within))
}
