package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/storefront-sagas/internal/api-gateway/infra/httpx/middlewares"
)

// NewRouter mounts the public link pages, the gateway callbacks, the
// authenticated API and the admin routes. jwtSecret verifies bearer tokens.
func NewRouter(handler *Handler, jwtSecret []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.AttachTracingMetadata)
	r.Use(middlewares.AccessLog(handler.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/view/{token}", handler.ViewOrder)
		r.Get("/refund/{token}", handler.RefundForm)
		r.Get("/refund/{token}/execute", handler.ExecuteRefund)
		r.Post("/refund/{token}", handler.SubmitRefund)
		r.Get("/refund-status/{token}", handler.RefundStatus)

		r.Group(func(r chi.Router) {
			r.Use(middlewares.Authenticate(jwtSecret))
			r.Post("/", handler.CreateOrder)
			r.Get("/{id}", handler.GetOrderByID)
		})
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/callback/vnpay", handler.VNPayCallback)
		r.Get("/vnpay/callback", handler.VNPayReturn)
		r.Get("/vnpay/ipn", handler.VNPayIPN)

		r.Group(func(r chi.Router) {
			r.Use(middlewares.Authenticate(jwtSecret))
			r.Post("/", handler.CreatePayment)
			r.Get("/vnpay/banks", handler.BankList)
			r.Get("/order/{orderId}", handler.PaymentByOrder)
			r.Get("/order/{orderId}/logs", handler.OrderPaymentLogs)
			r.Get("/{id}", handler.GetPayment)
			r.Post("/{id}/process", handler.ProcessPayment)
			r.Post("/{id}/refund", handler.RefundPayment)
			r.Get("/{id}/transactions", handler.PaymentTransactions)
			r.Get("/{id}/logs", handler.PaymentLogs)
			r.Get("/{id}/gateway-status", handler.GatewayStatus)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Authenticate(jwtSecret))
		r.Use(middlewares.RequireRole(middlewares.RoleAdmin))
		r.Post("/orders/expire", handler.ExpireOrders)
		r.Get("/refunds/reconciliation", handler.ListReconciliation)
		r.Post("/refunds/reconciliation/{paymentId}/resume", handler.ResumeReconciliation)
		r.Put("/payments/{id}/status", handler.UpdatePaymentStatus)
	})
	return r
}
