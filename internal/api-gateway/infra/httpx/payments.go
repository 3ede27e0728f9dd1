package httpx

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/storefront-sagas/internal/api-gateway/infra/httpx/middlewares"
	"github.com/jcmexdev/storefront-sagas/internal/coordinator"
	paymentapp "github.com/jcmexdev/storefront-sagas/internal/payment-service/app"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
)

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	method := paymentdomain.Method(strings.ToUpper(req.PaymentMethod))
	if req.OrderID == "" || !method.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "orderId and a paymentMethod of VNPAY or COD are required")
		return
	}
	res, err := h.payments.Create(r.Context(), paymentapp.CreatePayment{
		OrderID:     req.OrderID,
		Method:      method,
		Description: req.Description,
		ClientIP:    clientIP(r),
		BankCode:    req.BankCode,
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatePaymentResponse{Payment: mapPayment(res.Payment), RedirectURL: res.RedirectURL})
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPayment(p))
}

func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.payments.Process(r.Context(), chi.URLParam(r, "id"), clientIP(r))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CreatePaymentResponse{Payment: mapPayment(res.Payment), RedirectURL: res.RedirectURL})
}

// RefundPayment runs the refund saga for a payment. A payment that was
// already refunded answers 200 with alreadyRefunded set.
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	actor := "api"
	if p, ok := middlewares.PrincipalFrom(r.Context()); ok && p.Subject != "" {
		actor = p.Subject
	}
	res, err := h.refunds.Run(r.Context(), coordinator.RefundRequest{
		Target:   coordinator.ByPaymentID(chi.URLParam(r, "id")),
		Reason:   strings.TrimSpace(req.Reason),
		Actor:    actor,
		ClientIP: clientIP(r),
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRefund(res))
}

func (h *Handler) PaymentTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.payments.Transactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapTransactions(txs))
}

func (h *Handler) PaymentLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.payments.Logs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapLogs(logs))
}

func (h *Handler) PaymentByOrder(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.GetByOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPayment(p))
}

func (h *Handler) OrderPaymentLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.payments.LogsByOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapLogs(logs))
}

func (h *Handler) BankList(w http.ResponseWriter, r *http.Request) {
	banks, err := h.payments.BankList(r.Context())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, banks)
}

// GatewayStatus asks the gateway about a payment. Local state is not changed.
func (h *Handler) GatewayStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.payments.GatewayStatus(r.Context(), chi.URLParam(r, "id"), clientIP(r))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// VNPayReturn handles the browser coming back from the gateway. With a
// frontend configured the browser is sent on to its result page.
func (h *Handler) VNPayReturn(w http.ResponseWriter, r *http.Request) {
	out, err := h.payments.HandleCallback(r.Context(), r.URL.Query())
	if h.frontendURL == "" {
		if err != nil {
			h.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CallbackResponse{Payment: mapPayment(out.Payment), Applied: out.Applied})
		return
	}

	q := url.Values{}
	if err != nil {
		h.logger.WarnContext(r.Context(), "gateway return rejected", "error", err)
		q.Set("status", "ERROR")
		q.Set("message", publicMessage(err))
	} else {
		q.Set("paymentId", out.Payment.ID)
		q.Set("orderId", out.Payment.OrderID)
		q.Set("status", string(out.Payment.Status))
	}
	http.Redirect(w, r, h.frontendURL+"/payment/result?"+q.Encode(), http.StatusFound)
}

// VNPayCallback is the signed server-side callback. The fields may arrive
// as a query string, a form or a flat JSON object.
func (h *Handler) VNPayCallback(w http.ResponseWriter, r *http.Request) {
	values, err := callbackValues(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "callback fields could not be read")
		return
	}
	out, err := h.payments.HandleCallback(r.Context(), values)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CallbackResponse{Payment: mapPayment(out.Payment), Applied: out.Applied})
}

// VNPayIPN always answers 200; the outcome is in RspCode.
func (h *Handler) VNPayIPN(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.payments.HandleIPN(r.Context(), r.URL.Query()))
}

func callbackValues(r *http.Request) (url.Values, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var fields map[string]string
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			return nil, err
		}
		values := r.URL.Query()
		for k, v := range fields {
			values.Set(k, v)
		}
		return values, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return r.Form, nil
}
