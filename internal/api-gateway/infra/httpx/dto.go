package httpx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
)

type CreateOrderRequest struct {
	CustomerID      string               `json:"customer_id"`
	PaymentMethod   string               `json:"payment_method"`
	Items           []CreateOrderItemDTO `json:"items"`
	ShippingAddress ShippingAddressDTO   `json:"shipping_address"`
}

type CreateOrderItemDTO struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type ShippingAddressDTO struct {
	FullName     string `json:"full_name"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Country      string `json:"country"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	Email        string `json:"email"`
}

type OrderResponse struct {
	ID            string              `json:"id"`
	OrderNumber   string              `json:"order_number"`
	CustomerID    string              `json:"customer_id,omitempty"`
	Status        string              `json:"status"`
	PaymentMethod string              `json:"payment_method"`
	Total         decimal.Decimal     `json:"total"`
	Items         []OrderItemResponse `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	PendingExpiry *time.Time          `json:"pending_expiry,omitempty"`
	RefundedAt    *time.Time          `json:"refunded_at,omitempty"`
}

type OrderItemResponse struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type CreatePaymentRequest struct {
	OrderID       string `json:"orderId"`
	PaymentMethod string `json:"paymentMethod"`
	Description   string `json:"description"`
	BankCode      string `json:"bankCode,omitempty"`
}

type PaymentResponse struct {
	ID                    string          `json:"id"`
	OrderID               string          `json:"orderId"`
	Method                string          `json:"paymentMethod"`
	Amount                decimal.Decimal `json:"amount"`
	Status                string          `json:"status"`
	Description           string          `json:"description,omitempty"`
	TransactionNo         string          `json:"transactionNo,omitempty"`
	BankCode              string          `json:"bankCode,omitempty"`
	ResponseCode          string          `json:"responseCode,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	CompletedAt           *time.Time      `json:"completedAt,omitempty"`
	RefundedAt            *time.Time      `json:"refundedAt,omitempty"`
	ReconciliationPending bool            `json:"reconciliationPending,omitempty"`
}

type CreatePaymentResponse struct {
	Payment     PaymentResponse `json:"payment"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
}

type TransactionResponse struct {
	ID              string          `json:"id"`
	TransactionRef  string          `json:"transactionRef,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Type            string          `json:"type"`
	Status          string          `json:"status"`
	Gateway         string          `json:"gateway"`
	GatewayResponse string          `json:"gatewayResponse,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type PaymentLogResponse struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"paymentId,omitempty"`
	OrderID   string    `json:"orderId,omitempty"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Data      string    `json:"data,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UpdatePaymentStatusRequest overwrites a payment's status from the admin API.
type UpdatePaymentStatusRequest struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
}

// RefundRequest is the body of the refund endpoints. Reason is optional.
type RefundRequest struct {
	Reason string `json:"reason"`
}

type RefundResponse struct {
	Success               bool            `json:"success"`
	AlreadyRefunded       bool            `json:"alreadyRefunded,omitempty"`
	Message               string          `json:"message"`
	OrderID               string          `json:"orderId,omitempty"`
	PaymentID             string          `json:"paymentId,omitempty"`
	RefundAmount          decimal.Decimal `json:"refundAmount"`
	OrderStatus           string          `json:"orderStatus,omitempty"`
	PaymentStatus         string          `json:"paymentStatus,omitempty"`
	ReconciliationPending bool            `json:"reconciliationPending,omitempty"`
}

type RefundStatusResponse struct {
	OrderID         string          `json:"orderId"`
	OrderNumber     string          `json:"orderNumber"`
	OrderStatus     string          `json:"orderStatus"`
	PaymentStatus   string          `json:"paymentStatus"`
	Amount          decimal.Decimal `json:"amount"`
	CanRefund       bool            `json:"canRefund"`
	AlreadyRefunded bool            `json:"alreadyRefunded"`
	Reason          string          `json:"reason,omitempty"`
	Deadline        *time.Time      `json:"deadline,omitempty"`
}

type ReconciliationItemResponse struct {
	PaymentID             string     `json:"paymentId"`
	OrderID               string     `json:"orderId"`
	PaymentStatus         string     `json:"paymentStatus"`
	OrderStatus           string     `json:"orderStatus"`
	ReconciliationPending bool       `json:"reconciliationPending"`
	RefundClaim           string     `json:"refundClaim,omitempty"`
	RefundClaimedAt       *time.Time `json:"refundClaimedAt,omitempty"`
	RefundedAt            *time.Time `json:"refundedAt,omitempty"`
}

type SweepResponse struct {
	Canceled int `json:"canceled"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapOrderToResponse(o *orderdomain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{ProductID: it.ProductID, Title: it.Title, Quantity: it.Quantity, Price: it.UnitPrice}
	}
	return OrderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerID:    o.CustomerID,
		Status:        string(o.Status),
		PaymentMethod: o.PaymentMethod,
		Total:         o.Total,
		Items:         items,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		PendingExpiry: o.PendingExpiry,
		RefundedAt:    o.RefundedAt,
	}
}

func mapPayment(p *paymentdomain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                    p.ID,
		OrderID:               p.OrderID,
		Method:                string(p.Method),
		Amount:                p.Amount,
		Status:                string(p.Status),
		Description:           p.Description,
		TransactionNo:         p.TransactionNo,
		BankCode:              p.BankCode,
		ResponseCode:          p.ResponseCode,
		CreatedAt:             p.CreatedAt,
		CompletedAt:           p.CompletedAt,
		RefundedAt:            p.RefundedAt,
		ReconciliationPending: p.ReconciliationPending,
	}
}

func mapTransactions(txs []*paymentdomain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, len(txs))
	for i, t := range txs {
		out[i] = TransactionResponse{
			ID:              t.ID,
			TransactionRef:  t.TransactionRef,
			Amount:          t.Amount,
			Type:            string(t.Type),
			Status:          string(t.Status),
			Gateway:         t.Gateway,
			GatewayResponse: t.GatewayResponse,
			CreatedAt:       t.CreatedAt,
		}
	}
	return out
}

func mapLogs(logs []*paymentdomain.Log) []PaymentLogResponse {
	out := make([]PaymentLogResponse, len(logs))
	for i, l := range logs {
		out[i] = PaymentLogResponse{
			ID:        l.ID,
			PaymentID: l.PaymentID,
			OrderID:   l.OrderID,
			Type:      string(l.Type),
			Level:     string(l.Level),
			Message:   l.Message,
			Data:      l.Data,
			CreatedAt: l.CreatedAt,
		}
	}
	return out
}

func mapRefund(r *coordinator.RefundResult) RefundResponse {
	return RefundResponse{
		Success:               r.Success,
		AlreadyRefunded:       r.AlreadyRefunded,
		Message:               r.Message,
		OrderID:               r.OrderID,
		PaymentID:             r.PaymentID,
		RefundAmount:          r.RefundAmount,
		OrderStatus:           string(r.OrderStatus),
		PaymentStatus:         string(r.PaymentStatus),
		ReconciliationPending: r.ReconciliationPending,
	}
}

func mapRefundStatus(s *coordinator.RefundStatus) RefundStatusResponse {
	res := RefundStatusResponse{
		OrderID:         s.OrderID,
		OrderNumber:     s.OrderNumber,
		OrderStatus:     string(s.OrderStatus),
		PaymentStatus:   string(s.PaymentStatus),
		Amount:          s.Amount,
		CanRefund:       s.Eligible,
		AlreadyRefunded: s.AlreadyRefunded,
		Reason:          s.Reason,
	}
	if s.PaymentStatus == "" {
		res.PaymentStatus = "NOT_FOUND"
	}
	if !s.Deadline.IsZero() {
		d := s.Deadline
		res.Deadline = &d
	}
	return res
}

func mapReconciliation(items []paymentdomain.ReconciliationItem) []ReconciliationItemResponse {
	out := make([]ReconciliationItemResponse, len(items))
	for i, it := range items {
		out[i] = ReconciliationItemResponse{
			PaymentID:             it.PaymentID,
			OrderID:               it.OrderID,
			PaymentStatus:         string(it.PaymentStatus),
			OrderStatus:           it.OrderStatus,
			ReconciliationPending: it.ReconciliationPending,
			RefundClaim:           it.RefundClaim,
			RefundClaimedAt:       it.RefundClaimedAt,
			RefundedAt:            it.RefundedAt,
		}
	}
	return out
}

type CallbackResponse struct {
	Payment PaymentResponse `json:"payment"`
	Applied bool            `json:"applied"`
}
