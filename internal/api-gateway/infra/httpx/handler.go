package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/storefront-sagas/internal/api-gateway/core/ports"
	"github.com/jcmexdev/storefront-sagas/internal/api-gateway/infra/httpx/middlewares"
	orderapp "github.com/jcmexdev/storefront-sagas/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
)

// Services are the components the handlers call into.
type Services struct {
	Orders     ports.OrderService
	Payments   ports.PaymentService
	Refunds    ports.RefundService
	Reconciler ports.Reconciler
	Sweeper    ports.Sweeper
}

// Handler serves the storefront API, the gateway callbacks and the pages
// behind customer email links.
type Handler struct {
	orders     ports.OrderService
	payments   ports.PaymentService
	refunds    ports.RefundService
	reconciler ports.Reconciler
	sweeper    ports.Sweeper
	// frontendURL, when set, receives the browser after a gateway return.
	frontendURL string
	logger      *slog.Logger
}

func NewHandler(s Services, frontendURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orders:      s.Orders,
		payments:    s.Payments,
		refunds:     s.Refunds,
		reconciler:  s.Reconciler,
		sweeper:     s.Sweeper,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// CreateOrder reserves stock and records a PENDING order awaiting payment.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "items are required")
		return
	}
	if !paymentdomain.Method(req.PaymentMethod).Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "payment_method must be VNPAY or COD")
		return
	}

	items := make([]orderdomain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 || !it.Price.IsPositive() {
			writeError(w, http.StatusBadRequest, "invalid_item", "product_id, quantity, and price must be valid")
			return
		}
		items = append(items, orderdomain.OrderItem{
			ProductID: it.ProductID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		})
	}

	customerID := req.CustomerID
	if p, ok := middlewares.PrincipalFrom(r.Context()); ok && customerID == "" {
		customerID = p.Subject
	}
	a := req.ShippingAddress
	order, err := h.orders.Place(r.Context(), orderapp.PlaceOrder{
		CustomerID:    customerID,
		PaymentMethod: req.PaymentMethod,
		Items:         items,
		ShippingAddress: orderdomain.ShippingAddress{
			FullName:     a.FullName,
			AddressLine1: a.AddressLine1,
			AddressLine2: a.AddressLine2,
			City:         a.City,
			State:        a.State,
			PostalCode:   a.PostalCode,
			Country:      a.Country,
			PhoneNumber:  a.PhoneNumber,
			Email:        a.Email,
		},
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapOrderToResponse(order))
}

func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}
