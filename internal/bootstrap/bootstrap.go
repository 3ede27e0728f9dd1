// Package bootstrap wires the storefront components from a Config. Both
// binaries build on it so the API and the operator CLI see the same system.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jcmexdev/storefront-sagas/internal/config"
	"github.com/jcmexdev/storefront-sagas/internal/coordinator"
	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
	sagalogsqlite "github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog/sqlite"
	inventoryservice "github.com/jcmexdev/storefront-sagas/internal/inventory-service"
	"github.com/jcmexdev/storefront-sagas/internal/notify"
	orderapp "github.com/jcmexdev/storefront-sagas/internal/order-service/app"
	paymentapp "github.com/jcmexdev/storefront-sagas/internal/payment-service/app"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/gateway/vnpay"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/cache"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/linktoken"
	"github.com/jcmexdev/storefront-sagas/internal/scheduler"
	"github.com/jcmexdev/storefront-sagas/internal/storage/sqlstore"
)

// App holds the wired components. Close releases what New opened.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Store      *sqlstore.Store
	SagaLog    sagalog.Repository
	SagaReader sagalog.Reader
	Codec      *linktoken.Codec
	Links      notify.LinkBuilder
	Notifier   notify.Sender
	Gateway    *vnpay.Client
	Orders     *orderapp.Service
	Payments   *paymentapp.Service
	Refunds    *coordinator.RefundSaga
	Reconciler *coordinator.Reconciler
	Locker     cache.Locker
	Scheduler  *scheduler.Scheduler

	closers []func() error
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	if cfg.Database.Driver == "sqlite" {
		if err := ensureDir(cfg.Database.DSN); err != nil {
			return nil, err
		}
	}
	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	a.SagaLog = sagalog.Discard{}
	if cfg.SagaLogPath != "" {
		if err := ensureDir(cfg.SagaLogPath); err != nil {
			_ = a.Close()
			return nil, err
		}
		repo, err := sagalogsqlite.Open(cfg.SagaLogPath)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.SagaLog, a.SagaReader = repo, repo
		a.closers = append(a.closers, repo.Close)
	}

	a.Codec = linktoken.New(cfg.JWTSecret)
	a.Links = notify.NewLinkBuilder(a.Codec, cfg.PublicAPIURL)
	if cfg.SMTP.Host != "" {
		a.Notifier = notify.NewSMTPSender(notify.SMTPConfig{
			Host:       cfg.SMTP.Host,
			Port:       cfg.SMTP.Port,
			Username:   cfg.SMTP.Username,
			Password:   cfg.SMTP.Password,
			From:       cfg.SMTP.From,
			FromName:   cfg.SMTP.FromName,
			ToOverride: cfg.SMTP.ToOverride,
		}, a.Links, logger)
	} else {
		logger.InfoContext(ctx, "smtp host not configured, emails go to the log")
		a.Notifier = notify.NewLogSender(a.Links, logger)
	}

	a.Gateway = vnpay.New(vnpay.Config{
		TmnCode:     cfg.VNPay.TmnCode,
		HashSecret:  cfg.VNPay.HashSecret,
		PayURL:      cfg.VNPay.PayURL,
		APIURL:      cfg.VNPay.APIURL,
		BankListURL: cfg.VNPay.BankListURL,
		ReturnURL:   cfg.VNPay.ReturnURL,
		Locale:      cfg.VNPay.Locale,
		Timeout:     cfg.VNPay.Timeout,
	}, &http.Client{}, vnpay.WithAudit(paymentapp.NewGatewayAudit(store, logger)))

	a.Orders = orderapp.NewService(store, inventoryservice.NewClient(logger),
		orderapp.WithPendingTTL(cfg.Scheduler.PendingTTL),
		orderapp.WithLogger(logger))
	a.Payments = paymentapp.NewService(store, a.Orders, a.Gateway, a.Notifier,
		paymentapp.WithRate(cfg.Currency.USDToVND),
		paymentapp.WithLogger(logger))

	resolver := coordinator.NewResolver(a.Codec, a.Orders, coordinator.DefaultLegacyScanLimit)
	a.Refunds = coordinator.NewRefundSaga(a.Orders, a.Payments, a.Notifier, resolver,
		coordinator.WithWindow(cfg.Refund.Window),
		coordinator.WithSagaLog(a.SagaLog),
		coordinator.WithLogger(logger))
	a.Reconciler = coordinator.NewReconciler(a.Orders, a.Payments, a.SagaLog, logger)

	a.Locker = a.newLocker(ctx)
	a.Scheduler = scheduler.New(a.Orders, a.Notifier, a.Locker, scheduler.Config{
		ExpiryInterval:       cfg.Scheduler.ExpiryInterval,
		ExpiringSoonInterval: cfg.Scheduler.ExpiringSoonInterval,
		ExpiringSoonWindow:   cfg.Scheduler.ExpiringSoonWindow,
		LockTTL:              cfg.Scheduler.LockTTL,
	}, logger)
	return a, nil
}

// newLocker prefers redis so instances sharing a database skip each
// other's sweeps. An unreachable redis is logged and kept: the scheduler
// sweeps without the lock when it cannot be taken.
func (a *App) newLocker(ctx context.Context) cache.Locker {
	if a.Config.RedisAddr == "" {
		return cache.NewLocalLocker()
	}
	locker := cache.NewRedisLocker(a.Config.RedisAddr)
	a.closers = append(a.closers, locker.Close)
	if err := locker.Ping(ctx); err != nil {
		a.Logger.WarnContext(ctx, "redis unreachable, sweep lock degraded", "addr", a.Config.RedisAddr, "error", err)
	}
	return locker
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func ensureDir(path string) error {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("bootstrap: create %s: %w", dir, err)
	}
	return nil
}
