package scheduler_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventoryservice "github.com/jcmexdev/storefront-sagas/internal/inventory-service"
	orderapp "github.com/jcmexdev/storefront-sagas/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/cache"
	"github.com/jcmexdev/storefront-sagas/internal/scheduler"
	"github.com/jcmexdev/storefront-sagas/internal/storage/sqlstore"
)

type fakeOrders struct {
	cancelFn func(ctx context.Context) (int, error)
	soonFn   func(ctx context.Context, within time.Duration) ([]*orderdomain.Order, error)
}

func (f *fakeOrders) CancelExpiredOrders(ctx context.Context) (int, error) { return f.cancelFn(ctx) }

func (f *fakeOrders) FindExpiringSoon(ctx context.Context, within time.Duration) ([]*orderdomain.Order, error) {
	return f.soonFn(ctx, within)
}

type notifierFunc func(ctx context.Context, orders []*orderdomain.Order) error

func (f notifierFunc) ExpiringSoon(ctx context.Context, orders []*orderdomain.Order) error {
	return f(ctx, orders)
}

func TestTrigger_CancelsExpiredOrderAndRestoresStock(t *testing.T) {
	ctx := context.Background()
	store, err := sqlstore.Open("sqlite", filepath.Join(t.TempDir(), "expiry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.UpsertProduct(ctx, "p1", "Abbey Road", decimal.NewFromInt(15), 5))

	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	orders := orderapp.NewService(store, inventoryservice.NewClient(nil),
		orderapp.WithClock(func() time.Time { return now }), orderapp.WithPendingTTL(time.Hour))
	o, err := orders.Place(ctx, orderapp.PlaceOrder{
		PaymentMethod: "VNPAY",
		Items:         []orderdomain.OrderItem{{ProductID: "p1", Title: "Abbey Road", Quantity: 3, UnitPrice: decimal.NewFromInt(15)}},
	})
	require.NoError(t, err)

	s := scheduler.New(orders, nil, cache.NewLocalLocker(), scheduler.Config{}, nil)

	n, err := s.Trigger(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "not expired yet")

	now = now.Add(61 * time.Minute)
	n, err = s.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCanceled, got.Status)
	assert.Nil(t, got.RefundedAt)
	stock, err := store.ProductStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, stock)

	n, err = s.Trigger(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	stock, err = store.ProductStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, stock, "stock restored once")
}

func TestTrigger_SkipsWhileSweepRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	orders := &fakeOrders{cancelFn: func(context.Context) (int, error) {
		close(started)
		<-release
		return 2, nil
	}}
	s := scheduler.New(orders, nil, nil, scheduler.Config{}, nil)

	var (
		wg    sync.WaitGroup
		first int
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = s.Trigger(context.Background())
	}()
	<-started

	_, err := s.Trigger(context.Background())
	assert.ErrorIs(t, err, scheduler.ErrSweepInProgress)

	close(release)
	wg.Wait()
	assert.Equal(t, 2, first)
}

func TestTrigger_RespectsSharedLock(t *testing.T) {
	locker := cache.NewLocalLocker()
	cfg := scheduler.DefaultConfig()
	_, ok, err := locker.TryLock(context.Background(), cfg.LockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	calls := 0
	orders := &fakeOrders{cancelFn: func(context.Context) (int, error) { calls++; return 0, nil }}
	s := scheduler.New(orders, nil, locker, cfg, nil)

	_, err = s.Trigger(context.Background())
	assert.ErrorIs(t, err, scheduler.ErrSweepInProgress)
	assert.Zero(t, calls)
}

type brokenLocker struct{}

func (brokenLocker) TryLock(context.Context, string, time.Duration) (cache.UnlockFunc, bool, error) {
	return nil, false, errors.New("dial tcp: connection refused")
}

func TestTrigger_SweepsWhenLockBackendIsDown(t *testing.T) {
	orders := &fakeOrders{cancelFn: func(context.Context) (int, error) { return 1, nil }}
	s := scheduler.New(orders, nil, brokenLocker{}, scheduler.Config{}, nil)

	n, err := s.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_TicksUntilCanceled(t *testing.T) {
	var sweeps, checks, warned atomic.Int32
	orders := &fakeOrders{
		cancelFn: func(context.Context) (int, error) {
			// A failing tick must not stop the loop.
			if sweeps.Add(1) == 1 {
				return 0, errors.New("database is locked")
			}
			return 0, nil
		},
		soonFn: func(_ context.Context, within time.Duration) ([]*orderdomain.Order, error) {
			checks.Add(1)
			assert.Equal(t, 2*time.Hour, within)
			return []*orderdomain.Order{{ID: "o1"}}, nil
		},
	}
	notifier := notifierFunc(func(_ context.Context, orders []*orderdomain.Order) error {
		warned.Add(int32(len(orders)))
		return nil
	})
	s := scheduler.New(orders, notifier, nil, scheduler.Config{
		ExpiryInterval:       5 * time.Millisecond,
		ExpiringSoonInterval: 5 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return sweeps.Load() >= 2 && checks.Load() >= 1 && warned.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStart_StopWaitsForSweepInFlight(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	var finished atomic.Bool
	orders := &fakeOrders{
		cancelFn: func(ctx context.Context) (int, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
			return 0, ctx.Err()
		},
		soonFn: func(context.Context, time.Duration) ([]*orderdomain.Order, error) { return nil, nil },
	}
	s := scheduler.New(orders, nil, cache.NewLocalLocker(),
		scheduler.Config{ExpiryInterval: 5 * time.Millisecond, ExpiringSoonInterval: time.Hour}, nil)

	stop := s.Start(context.Background())
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never started")
	}
	stop()
	assert.True(t, finished.Load())
}
