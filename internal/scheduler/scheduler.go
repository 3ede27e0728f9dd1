// Package scheduler cancels unpaid orders once they expire and warns about
// orders that are about to.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/cache"
)

var ErrSweepInProgress = apperr.Conflict("", "an expiry sweep is already running")

type Orders interface {
	CancelExpiredOrders(ctx context.Context) (int, error)
	FindExpiringSoon(ctx context.Context, within time.Duration) ([]*orderdomain.Order, error)
}

// ExpiryNotifier is told about pending orders close to their expiry.
type ExpiryNotifier interface {
	ExpiringSoon(ctx context.Context, orders []*orderdomain.Order) error
}

type Config struct {
	ExpiryInterval       time.Duration
	ExpiringSoonInterval time.Duration
	ExpiringSoonWindow   time.Duration
	// LockTTL bounds how long a sweep holds the shared lock.
	LockTTL time.Duration
	// LockKey names the shared lock. Instances sharing a database must use
	// the same key.
	LockKey string
}

func DefaultConfig() Config {
	return Config{
		ExpiryInterval:       30 * time.Minute,
		ExpiringSoonInterval: time.Hour,
		ExpiringSoonWindow:   2 * time.Hour,
		LockTTL:              5 * time.Minute,
		LockKey:              cache.Key("storefront", "expiry-sweep", "global"),
	}
}

type Scheduler struct {
	orders   Orders
	notifier ExpiryNotifier
	locker   cache.Locker
	cfg      Config
	running  atomic.Bool
	logger   *slog.Logger
}

// New builds a Scheduler. notifier and locker may be nil.
func New(orders Orders, notifier ExpiryNotifier, locker cache.Locker, cfg Config, logger *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = def.ExpiryInterval
	}
	if cfg.ExpiringSoonInterval <= 0 {
		cfg.ExpiringSoonInterval = def.ExpiringSoonInterval
	}
	if cfg.ExpiringSoonWindow <= 0 {
		cfg.ExpiringSoonWindow = def.ExpiringSoonWindow
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.LockKey == "" {
		cfg.LockKey = def.LockKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{orders: orders, notifier: notifier, locker: locker, cfg: cfg, logger: logger}
}

// Run ticks until ctx is done. Tick failures are logged and the next tick
// runs as usual.
func (s *Scheduler) Run(ctx context.Context) {
	expiry := time.NewTicker(s.cfg.ExpiryInterval)
	defer expiry.Stop()
	soon := time.NewTicker(s.cfg.ExpiringSoonInterval)
	defer soon.Stop()

	s.logger.InfoContext(ctx, "order scheduler started",
		"expiry_interval", s.cfg.ExpiryInterval.String(), "expiring_soon_interval", s.cfg.ExpiringSoonInterval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "order scheduler stopped")
			return
		case <-expiry.C:
			s.handleExpired(ctx)
		case <-soon.C:
			s.notifyExpiringSoon(ctx)
		}
	}
}

// Start runs the scheduler in the background. The returned stop cancels it
// and waits until Run, including a sweep in flight, has returned.
func (s *Scheduler) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Trigger runs an expiry sweep now. It shares the overlap guard with the
// timer, so it fails with ErrSweepInProgress while a sweep is running.
func (s *Scheduler) Trigger(ctx context.Context) (int, error) {
	return s.sweep(ctx)
}

func (s *Scheduler) handleExpired(ctx context.Context) {
	n, err := s.sweep(ctx)
	switch {
	case apperr.Is(err, apperr.KindConflict):
		s.logger.WarnContext(ctx, "expiry sweep skipped: previous sweep still running")
	case err != nil:
		s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
	case n > 0:
		s.logger.InfoContext(ctx, "expired orders canceled", "count", n)
	default:
		s.logger.DebugContext(ctx, "no expired orders")
	}
}

func (s *Scheduler) sweep(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, ErrSweepInProgress
	}
	defer s.running.Store(false)

	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		switch {
		case err != nil:
			// Cancellation is a compare-and-set, so a sweep without the
			// shared lock is still safe.
			s.logger.WarnContext(ctx, "sweep lock unavailable, continuing", "error", err)
		case !ok:
			return 0, ErrSweepInProgress
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					s.logger.WarnContext(ctx, "sweep lock release failed", "error", err)
				}
			}()
		}
	}
	return s.orders.CancelExpiredOrders(ctx)
}

func (s *Scheduler) notifyExpiringSoon(ctx context.Context) {
	orders, err := s.orders.FindExpiringSoon(ctx, s.cfg.ExpiringSoonWindow)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiring orders check failed", "error", err)
		return
	}
	if len(orders) == 0 {
		return
	}
	s.logger.InfoContext(ctx, "orders expiring soon", "count", len(orders), "window", s.cfg.ExpiringSoonWindow.String())
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ExpiringSoon(ctx, orders); err != nil {
		s.logger.WarnContext(ctx, "expiry warning failed", "error", err)
	}
}
