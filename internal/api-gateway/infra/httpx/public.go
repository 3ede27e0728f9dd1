package httpx

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/linktoken"
)

// linkActor is recorded as the actor of refunds started from email links.
const linkActor = "customer-link"

type orderPage struct {
	Order   *orderdomain.Order
	Payment *paymentdomain.Payment
}

type refundedPage struct {
	OrderNumber string
	Amount      decimal.Decimal
}

// ViewOrder shows the order behind a view link.
func (h *Handler) ViewOrder(w http.ResponseWriter, r *http.Request) {
	o, p, err := h.refunds.Lookup(r.Context(), chi.URLParam(r, "token"), linktoken.PurposeView)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.renderPage(w, r, http.StatusOK, "order", orderPage{Order: o, Payment: p})
}

// RefundForm shows the refund form, or why the order cannot be refunded.
func (h *Handler) RefundForm(w http.ResponseWriter, r *http.Request) {
	st, err := h.refunds.Status(r.Context(), chi.URLParam(r, "token"))
	switch {
	case err != nil:
		h.renderError(w, r, err)
	case st.AlreadyRefunded:
		h.renderPage(w, r, http.StatusOK, "refunded", refundedPage{OrderNumber: st.OrderNumber, Amount: st.Amount})
	case !st.Eligible:
		h.renderError(w, r, apperr.BadRequest("httpx.RefundForm", st.Reason))
	default:
		h.renderPage(w, r, http.StatusOK, "refund_form", st)
	}
}

// ExecuteRefund refunds straight from the link in the email. No reason is
// recorded.
func (h *Handler) ExecuteRefund(w http.ResponseWriter, r *http.Request) {
	res, err := h.refunds.Run(r.Context(), coordinator.RefundRequest{
		Target:   coordinator.ByToken(chi.URLParam(r, "token")),
		Actor:    linkActor,
		ClientIP: clientIP(r),
	})
	switch {
	case err != nil:
		h.renderError(w, r, err)
	case res.AlreadyRefunded:
		h.renderPage(w, r, http.StatusOK, "refunded", refundedPage{OrderNumber: res.OrderNumber, Amount: res.RefundAmount})
	default:
		h.renderPage(w, r, http.StatusOK, "refund_done", res)
	}
}

// SubmitRefund is posted by the refund form. Failures are answered with a
// customer-safe message in the same JSON shape as a success.
func (h *Handler) SubmitRefund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, RefundResponse{Message: "request body must be JSON"})
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = coordinator.DefaultLinkReason
	}
	res, err := h.refunds.Run(r.Context(), coordinator.RefundRequest{
		Target:   coordinator.ByToken(chi.URLParam(r, "token")),
		Reason:   reason,
		Actor:    linkActor,
		ClientIP: clientIP(r),
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "link refund failed", "route", routePattern(r), "error", err)
		}
		writeJSON(w, status, RefundResponse{Message: publicMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, mapRefund(res))
}

func (h *Handler) RefundStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.refunds.Status(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRefundStatus(st))
}
