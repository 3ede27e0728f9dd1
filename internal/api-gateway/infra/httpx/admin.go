package httpx

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
)

// ExpireOrders runs the expiry sweep now. It answers 409 while a sweep is
// already running.
func (h *Handler) ExpireOrders(w http.ResponseWriter, r *http.Request) {
	n, err := h.sweeper.Trigger(r.Context())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Canceled: n})
}

func (h *Handler) ListReconciliation(w http.ResponseWriter, r *http.Request) {
	items, err := h.reconciler.Pending(r.Context())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapReconciliation(items))
}

func (h *Handler) ResumeReconciliation(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconciler.Resume(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRefund(res))
}

// UpdatePaymentStatus overwrites a payment's status without the transition
// guard. Refunds must go through the refund endpoint instead.
func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdatePaymentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	status := paymentdomain.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	p, err := h.payments.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status, strings.TrimSpace(req.TransactionID))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPayment(p))
}
