// Package app implements the payment state machine: creating payments,
// applying gateway callbacks and the refund primitives used by the refund
// saga. Every status change is a compare-and-set in the repository.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/notify"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/gateway/vnpay"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/money"
)

var (
	ErrAlreadyProcessed = apperr.Conflict("", "payment already processed")
	ErrAmountMismatch   = apperr.BadRequest("", "amount does not match the payment")
	ErrInvalidMethod    = apperr.BadRequest("", "unsupported payment method")
	ErrInvalidStatus    = apperr.BadRequest("", "unsupported payment status")
)

type OrderService interface {
	Get(ctx context.Context, id string) (*orderdomain.Order, error)
	HandlePaymentCompleted(ctx context.Context, orderID, paymentID string) (bool, error)
}

type Gateway interface {
	BuildPaymentURL(ctx context.Context, in vnpay.PaymentIntent) (string, error)
	VerifyCallback(values url.Values) vnpay.CallbackResult
	Refund(ctx context.Context, in vnpay.RefundRequest) (*vnpay.RefundResult, error)
	QueryTransaction(ctx context.Context, in vnpay.QueryRequest) (*vnpay.QueryResult, error)
	BankList(ctx context.Context) ([]vnpay.Bank, error)
}

type Notifier interface {
	PaymentSucceeded(ctx context.Context, m notify.PaymentMessage) error
}

// DefaultRate is the USD to VND rate used when none is configured.
const DefaultRate = 25000

// staleClaimAge is how long a refund claim may sit on a COMPLETED payment
// before reconciliation reports it.
const staleClaimAge = 10 * time.Minute

type Service struct {
	repo     domain.Repository
	orders   OrderService
	gateway  Gateway
	notifier Notifier
	rate     decimal.Decimal
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithRate(usdToVND int64) Option {
	return func(s *Service) { s.rate = decimal.NewFromInt(usdToVND) }
}

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(repo domain.Repository, orders OrderService, gateway Gateway, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		orders:   orders,
		gateway:  gateway,
		notifier: notifier,
		rate:     decimal.NewFromInt(DefaultRate),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreatePayment struct {
	OrderID     string
	Method      domain.Method
	Description string
	ClientIP    string
	BankCode    string
}

type CreateResult struct {
	Payment     *domain.Payment
	RedirectURL string
}

// Create opens a payment for an order awaiting payment. VNPAY payments
// return a redirect URL; cash on delivery completes immediately.
func (s *Service) Create(ctx context.Context, in CreatePayment) (*CreateResult, error) {
	if !in.Method.Valid() {
		return nil, ErrInvalidMethod
	}
	o, err := s.orders.Get(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != orderdomain.StatusPending {
		return nil, apperr.Conflict("payments.Create", "order is not awaiting payment")
	}
	if prev, err := s.repo.GetPaymentByOrder(ctx, o.ID); err == nil && prev.Status == domain.StatusCompleted {
		return nil, fmt.Errorf("%w: order %s is already paid", ErrAlreadyProcessed, o.ID)
	} else if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	amount := money.ToVND(o.Total, s.rate)
	if !amount.IsPositive() {
		return nil, apperr.BadRequest("payments.Create", "order total must be positive")
	}

	now := s.now().UTC()
	p := &domain.Payment{
		ID:          uuid.NewString(),
		OrderID:     o.ID,
		Method:      in.Method,
		Amount:      amount,
		Status:      domain.StatusPending,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertPayment(ctx, p); err != nil {
		return nil, err
	}
	s.audit(ctx, p.ID, p.OrderID, domain.LogPaymentCreated, domain.LevelInfo, "payment created", map[string]any{
		"method": p.Method, "amount": p.Amount.String(),
	})
	s.logger.InfoContext(ctx, "payment created", "payment_id", p.ID, "order_id", o.ID, "method", string(p.Method), "amount", p.Amount.String())

	return s.start(ctx, p, o, in.ClientIP, in.BankCode)
}

// Process restarts a PENDING payment: a fresh redirect URL for VNPAY, or
// completion for cash on delivery.
func (s *Service) Process(ctx context.Context, id, clientIP string) (*CreateResult, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: payment %s is %s", ErrAlreadyProcessed, p.ID, p.Status)
	}
	o, err := s.orders.Get(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	return s.start(ctx, p, o, clientIP, "")
}

func (s *Service) start(ctx context.Context, p *domain.Payment, o *orderdomain.Order, clientIP, bankCode string) (*CreateResult, error) {
	switch p.Method {
	case domain.MethodVNPay:
		u, err := s.gateway.BuildPaymentURL(ctx, vnpay.PaymentIntent{
			PaymentID: p.ID,
			OrderID:   p.OrderID,
			Amount:    p.Amount,
			OrderInfo: "Thanh toan don hang " + o.OrderNumber,
			ClientIP:  clientIP,
			BankCode:  bankCode,
			CreatedAt: s.now(),
		})
		if err != nil {
			s.audit(ctx, p.ID, p.OrderID, domain.LogPaymentError, domain.LevelError, err.Error(), nil)
			return nil, err
		}
		return &CreateResult{Payment: p, RedirectURL: u}, nil
	case domain.MethodCOD:
		done, err := s.completeCash(ctx, p)
		if err != nil {
			return nil, err
		}
		return &CreateResult{Payment: done}, nil
	default:
		return nil, ErrInvalidMethod
	}
}

func (s *Service) completeCash(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	ok, err := s.repo.ChangeStatus(ctx, domain.Change{
		PaymentID: p.ID,
		From:      []domain.Status{domain.StatusPending},
		To:        domain.StatusCompleted,
		At:        s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: payment %s", ErrAlreadyProcessed, p.ID)
	}
	s.appendTransaction(ctx, p, domain.TransactionPayment, domain.TransactionCompleted, "", p.Amount, "")
	done, err := s.repo.GetPayment(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	s.onCompleted(ctx, done)
	return done, nil
}

// onCompleted runs the side effects of a first transition to COMPLETED.
// Failures are logged; the payment stays completed.
func (s *Service) onCompleted(ctx context.Context, p *domain.Payment) {
	if _, err := s.orders.HandlePaymentCompleted(ctx, p.OrderID, p.ID); err != nil {
		s.logger.ErrorContext(ctx, "mark order received failed", "order_id", p.OrderID, "payment_id", p.ID, "error", err)
	}
	if s.notifier == nil {
		return
	}
	o, err := s.orders.Get(ctx, p.OrderID)
	if err != nil {
		s.logger.ErrorContext(ctx, "load order for notification failed", "order_id", p.OrderID, "error", err)
		return
	}
	if err := s.notifier.PaymentSucceeded(ctx, notify.PaymentMessage{Order: o, Payment: p}); err != nil {
		s.logger.WarnContext(ctx, "payment success email failed", "order_id", p.OrderID, "payment_id", p.ID, "error", err)
	}
}

// UpdateStatus overwrites a payment's status. It is an administrative
// escape hatch and bypasses the transition guard.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.Status, transactionNo string) (*domain.Payment, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if err := s.repo.SetStatus(ctx, id, status, transactionNo, s.now().UTC()); err != nil {
		return nil, err
	}
	s.logger.WarnContext(ctx, "payment status overwritten", "payment_id", id, "status", string(status))
	return s.repo.GetPayment(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

func (s *Service) GetByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return s.repo.GetPaymentByOrder(ctx, orderID)
}

func (s *Service) Transactions(ctx context.Context, paymentID string) ([]*domain.Transaction, error) {
	if _, err := s.repo.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, paymentID)
}

func (s *Service) Logs(ctx context.Context, paymentID string) ([]*domain.Log, error) {
	return s.repo.ListLogs(ctx, paymentID)
}

func (s *Service) LogsByOrder(ctx context.Context, orderID string) ([]*domain.Log, error) {
	return s.repo.ListLogsByOrder(ctx, orderID)
}

// GatewayStatus asks the gateway what it knows about a payment.
func (s *Service) GatewayStatus(ctx context.Context, id, clientIP string) (*vnpay.QueryResult, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Method.UsesGateway() {
		return nil, apperr.BadRequest("payments.GatewayStatus", "payment does not use the gateway")
	}
	date := p.CreatedAt
	if p.PaidAt != nil {
		date = *p.PaidAt
	}
	return s.gateway.QueryTransaction(ctx, vnpay.QueryRequest{PaymentID: p.ID, TransactionDate: date, ClientIP: clientIP})
}

func (s *Service) BankList(ctx context.Context) ([]vnpay.Bank, error) {
	return s.gateway.BankList(ctx)
}

func (s *Service) appendTransaction(ctx context.Context, p *domain.Payment, typ domain.TransactionType,
	status domain.TransactionStatus, ref string, amount decimal.Decimal, raw string) {
	gw := string(p.Method)
	err := s.repo.AppendTransaction(ctx, &domain.Transaction{
		ID:              uuid.NewString(),
		PaymentID:       p.ID,
		TransactionRef:  ref,
		Amount:          amount,
		Type:            typ,
		Status:          status,
		Gateway:         gw,
		GatewayResponse: raw,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "append transaction failed", "payment_id", p.ID, "type", string(typ), "error", err)
	}
}

// audit writes a payment log line. Audit failures never fail the caller.
func (s *Service) audit(ctx context.Context, paymentID, orderID string, typ domain.LogType, level domain.LogLevel, msg string, data any) {
	var encoded string
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			encoded = string(b)
		}
	}
	err := s.repo.AppendLog(ctx, &domain.Log{
		ID:        uuid.NewString(),
		PaymentID: paymentID,
		OrderID:   orderID,
		Type:      typ,
		Level:     level,
		Message:   msg,
		Data:      encoded,
		CreatedAt: s.now().UTC(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "payment log write failed", "payment_id", paymentID, "type", string(typ), "error", err)
	}
}
