package httpx

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/jcmexdev/storefront-sagas/internal/pkg/money"
)

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	"vnd":  money.FormatVND,
	"usd":  money.FormatUSD,
	"date": func(t time.Time) string { return t.Format("02/01/2006 15:04") },
}).Parse(`
{{define "head"}}<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.}}</title>
<style>body{font-family:sans-serif;max-width:640px;margin:40px auto;padding:0 16px;color:#222}
.card{border:1px solid #ddd;border-radius:8px;padding:20px}.muted{color:#666}.error{color:#b00020}
button{padding:10px 18px;border:0;border-radius:6px;background:#d9534f;color:#fff;cursor:pointer}
textarea{width:100%;min-height:80px}</style></head><body><div class="card">{{end}}
{{define "foot"}}</div></body></html>{{end}}

{{define "order"}}{{template "head" (printf "Order %s" .Order.OrderNumber)}}
<h1>Order {{.Order.OrderNumber}}</h1>
<p>Status: <strong>{{.Order.Status}}</strong></p>
<p>Placed: {{date .Order.CreatedAt}}</p>
<ul>{{range .Order.Items}}<li>{{.Title}} x {{.Quantity}} ({{usd .UnitPrice}})</li>{{end}}</ul>
<p>Total: <strong>{{usd .Order.Total}}</strong></p>
{{with .Payment}}<p>Payment: {{.Method}} {{.Status}} {{vnd .Amount}}</p>{{else}}<p class="muted">No payment yet.</p>{{end}}
{{template "foot"}}{{end}}

{{define "refund_form"}}{{template "head" "Request a refund"}}
<h1>Request a refund</h1>
<p>Order <strong>{{.OrderNumber}}</strong>, amount <strong>{{vnd .Amount}}</strong></p>
<p class="muted">Refunds are accepted until {{date .Deadline}}.</p>
<form id="refund">
<label for="reason">Reason (optional)</label>
<textarea id="reason" name="reason"></textarea>
<p><button type="submit">Refund my order</button></p>
</form>
<p id="result"></p>
<script>
document.getElementById("refund").addEventListener("submit", async function (e) {
  e.preventDefault();
  const res = await fetch(window.location.pathname, {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({reason: document.getElementById("reason").value})
  });
  const body = await res.json();
  document.getElementById("result").textContent = body.message;
  if (body.success) { document.getElementById("refund").remove(); }
});
</script>
{{template "foot"}}{{end}}

{{define "refunded"}}{{template "head" "Order already refunded"}}
<h1>This order has already been refunded</h1>
<p>Order <strong>{{.OrderNumber}}</strong></p>
<p>Amount: {{vnd .Amount}}</p>
{{template "foot"}}{{end}}

{{define "refund_done"}}{{template "head" "Refund successful"}}
<h1>Refund successful</h1>
<p>Order <strong>{{.OrderNumber}}</strong></p>
<p>Amount refunded: <strong>{{vnd .RefundAmount}}</strong></p>
{{if .ReconciliationPending}}<p class="muted">Your money is on its way. The order will be updated shortly.</p>
{{else}}<p>Your order has been canceled.</p>{{end}}
{{template "foot"}}{{end}}

{{define "error"}}{{template "head" "Error"}}
<h1 class="error">We could not complete your request</h1>
<p>{{.}}</p>
{{template "foot"}}{{end}}
`))

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var body bytes.Buffer
	if err := pages.ExecuteTemplate(&body, name, data); err != nil {
		h.logger.ErrorContext(r.Context(), "page render failed", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = body.WriteTo(w)
}

// renderError shows a customer-safe error page. The detailed error goes to
// the log.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "link request failed", "route", routePattern(r), "error", err)
	h.renderPage(w, r, status, "error", publicMessage(err))
}
