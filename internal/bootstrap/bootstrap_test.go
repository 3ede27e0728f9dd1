package bootstrap_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-sagas/internal/bootstrap"
	"github.com/jcmexdev/storefront-sagas/internal/config"
	"github.com/jcmexdev/storefront-sagas/internal/notify"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/cache"
)

func TestNew_WiresSqliteStack(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(dir, "nested", "storefront.db")
	cfg.SagaLogPath = filepath.Join(dir, "logs", "saga.db")

	app, err := bootstrap.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, app.Close()) })

	require.NoError(t, app.Store.Ping(context.Background()))
	assert.NotNil(t, app.SagaReader)
	assert.IsType(t, &notify.LogSender{}, app.Notifier)
	assert.IsType(t, &cache.LocalLocker{}, app.Locker)
	assert.NotNil(t, app.Refunds)
	assert.NotNil(t, app.Reconciler)
	assert.NotNil(t, app.Scheduler)

	n, err := app.Scheduler.Trigger(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := app.Reconciler.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNew_WithoutSagaLog(t *testing.T) {
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "storefront.db")
	cfg.SagaLogPath = ""

	app, err := bootstrap.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer app.Close()
	assert.Nil(t, app.SagaReader)
}
