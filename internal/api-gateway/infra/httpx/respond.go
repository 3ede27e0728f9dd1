package httpx

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"
)

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindBadRequest:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the text shown to customers on the link pages. Internal
// failures never leak their cause.
func publicMessage(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return apperr.Message(err, "Order not found or link is no longer valid")
	case apperr.KindBadRequest, apperr.KindConflict:
		return apperr.Message(err, "This request cannot be completed")
	case apperr.KindGateway:
		return "Refund failed through payment gateway. Please try again later."
	default:
		return "Something went wrong on our side. Our team has been notified."
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}

// writeAppError maps err to a JSON error. Internal errors are logged and
// reported without detail.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := apperr.KindOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "route", routePattern(r), "error", err)
	}
	msg := apperr.Message(err, http.StatusText(status))
	if kind == apperr.KindInternal {
		msg = "internal error"
	}
	writeError(w, status, kind.String(), msg)
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apperr.BadRequest("httpx.decode", "invalid JSON body")
	}
	return nil
}

// clientIP returns the caller's address without the port. RealIP runs
// before the handlers, so proxies are already accounted for.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// routePattern keeps link tokens out of the logs.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}
