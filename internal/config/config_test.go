package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-sagas/internal/config"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*24*time.Hour, cfg.Refund.Window)
	assert.Equal(t, int64(25000), cfg.Currency.USDToVND)
	assert.Equal(t, 10*time.Second, cfg.VNPay.Timeout)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storefront.yaml")
	yml := `
http_addr: ":9999"
database:
  driver: postgres
  dsn: postgres://localhost/storefront
scheduler:
  expiry_interval: 5m
vnpay:
  tmn_code: FROMFILE
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("VNPAY_TMN_CODE", "FROMENV")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.ExpiryInterval)
	assert.Equal(t, time.Hour, cfg.Scheduler.ExpiringSoonInterval)
	assert.Equal(t, "FROMENV", cfg.VNPay.TmnCode)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "oracle")
	_, err := config.Load("")
	assert.ErrorContains(t, err, "unsupported database.driver")
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv("SMTP_PORT", "abc")
	_, err := config.Load("")
	assert.ErrorContains(t, err, "SMTP_PORT")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
