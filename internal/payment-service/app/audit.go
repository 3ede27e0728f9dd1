package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/payment-service/gateway/vnpay"
)

// GatewayAudit stores every gateway exchange as a payment log line.
type GatewayAudit struct {
	repo   domain.Repository
	logger *slog.Logger
}

func NewGatewayAudit(repo domain.Repository, logger *slog.Logger) *GatewayAudit {
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayAudit{repo: repo, logger: logger}
}

var operationLogTypes = map[string]domain.LogType{
	"pay":     domain.LogVNPayRequest,
	"refund":  domain.LogRefundResponse,
	"querydr": domain.LogVNPayResponse,
}

func (a *GatewayAudit) Record(ctx context.Context, e vnpay.AuditEntry) {
	typ, ok := operationLogTypes[e.Operation]
	if !ok || e.PaymentID == "" {
		return
	}

	level := domain.LevelInfo
	msg := "gateway " + e.Operation
	data := map[string]any{"request": e.Request}
	if e.Response != nil {
		data["response"] = string(e.Response)
		data["http_status"] = e.StatusCode
	}
	if e.Err != nil {
		level = domain.LevelError
		msg += " failed: " + e.Err.Error()
	}
	encoded, _ := json.Marshal(data)

	var orderID string
	if p, err := a.repo.GetPayment(ctx, e.PaymentID); err == nil {
		orderID = p.OrderID
	}
	err := a.repo.AppendLog(ctx, &domain.Log{
		ID:        uuid.NewString(),
		PaymentID: e.PaymentID,
		OrderID:   orderID,
		Type:      typ,
		Level:     level,
		Message:   msg,
		Data:      string(encoded),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		a.logger.WarnContext(ctx, "gateway audit write failed", "payment_id", e.PaymentID, "operation", e.Operation, "error", err)
	}
}
