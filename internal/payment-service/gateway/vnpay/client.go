// Package vnpay adapts payment intents and refunds to the VNPay merchant
// API (version 2.1.0): redirect URL signing, return/IPN verification and
// the server-to-server refund and query calls.
package vnpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

const (
	Version          = "2.1.0"
	CodeSuccess      = "00"
	dateLayout       = "20060102150405"
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

// vnLocation is the merchant portal's clock. All vnp_*Date values use it.
var vnLocation = time.FixedZone("GMT+7", 7*60*60)

var (
	ErrGatewayConfig     = apperr.New(apperr.KindInternal, "", "payment gateway is not configured")
	ErrPaymentValidation = apperr.BadRequest("", "payment is not valid for the gateway")
	ErrInvalidSignature  = apperr.BadRequest("", "invalid gateway signature")
)

// ResponseError is a non-success answer from the gateway API.
type ResponseError struct {
	Code    string
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("vnpay: response code %s: %s", e.Code, e.Message)
}

type Config struct {
	TmnCode     string
	HashSecret  string
	PayURL      string
	APIURL      string
	BankListURL string
	ReturnURL   string
	Locale      string
	Timeout     time.Duration
}

// AuditEntry is handed to the AuditSink for every outbound call, before the
// response is interpreted.
type AuditEntry struct {
	Operation  string
	PaymentID  string
	Request    any
	Response   []byte
	StatusCode int
	Err        error
}

type AuditSink interface {
	Record(ctx context.Context, e AuditEntry)
}

type Option func(*Client)

func WithAudit(a AuditSink) Option { return func(c *Client) { c.audit = a } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

type Client struct {
	cfg   Config
	http  *http.Client
	audit AuditSink
	now   func() time.Time
}

func New(cfg Config, httpClient *http.Client, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{cfg: cfg, http: httpClient, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) requireConfig(needAPI bool) error {
	var missing []string
	if c.cfg.TmnCode == "" {
		missing = append(missing, "tmn_code")
	}
	if c.cfg.HashSecret == "" {
		missing = append(missing, "hash_secret")
	}
	if needAPI && c.cfg.APIURL == "" {
		missing = append(missing, "api_url")
	}
	if !needAPI && c.cfg.PayURL == "" {
		missing = append(missing, "pay_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrGatewayConfig, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Client) record(ctx context.Context, e AuditEntry) {
	if c.audit != nil {
		c.audit.Record(context.WithoutCancel(ctx), e)
	}
}

// postJSON sends body to url and returns the raw response. The response is
// recorded before the caller interprets it.
func (c *Client) postJSON(ctx context.Context, op, paymentID, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("vnpay: encode %s request: %w", op, err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("vnpay: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, op, paymentID, req, body)
}

func (c *Client) do(ctx context.Context, op, paymentID string, req *http.Request, logged any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("no response within %s: %w", c.cfg.Timeout, err)
		}
		c.record(ctx, AuditEntry{Operation: op, PaymentID: paymentID, Request: logged, Err: err})
		return nil, apperr.Gateway("vnpay."+op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.record(ctx, AuditEntry{Operation: op, PaymentID: paymentID, Request: logged, Response: raw, StatusCode: resp.StatusCode, Err: err})
	if err != nil {
		return nil, apperr.Gateway("vnpay."+op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode/100 != 2 {
		return nil, apperr.Gateway("vnpay."+op, fmt.Errorf("http status %d", resp.StatusCode))
	}
	return raw, nil
}

func requestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func formatDate(t time.Time) string { return t.In(vnLocation).Format(dateLayout) }

// ParseDate parses a vnp_*Date value.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, vnLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("vnpay: parse date %q: %w", s, err)
	}
	return t, nil
}
