package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/money"
)

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	ToOverride string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// DefaultSMTPTimeout bounds one delivery from dial to QUIT.
const DefaultSMTPTimeout = 15 * time.Second

type SMTPSender struct {
	cfg     SMTPConfig
	links   LinkBuilder
	send    SendFunc
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

type SMTPOption func(*SMTPSender)

func WithSendFunc(f SendFunc) SMTPOption { return func(s *SMTPSender) { s.send = f } }

func WithTimeout(d time.Duration) SMTPOption { return func(s *SMTPSender) { s.timeout = d } }

func NewSMTPSender(cfg SMTPConfig, links LinkBuilder, logger *slog.Logger, opts ...SMTPOption) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SMTPSender{cfg: cfg, links: links, timeout: DefaultSMTPTimeout, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.send == nil {
		s.send = dialAndSend(s.timeout)
	}
	return s
}

// dialAndSend is smtp.SendMail with a deadline on the connection, so a
// server that stops answering cannot hold the caller.
func dialAndSend(timeout time.Duration) SendFunc {
	return func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		host, _, _ := net.SplitHostPort(addr)
		c, err := smtp.NewClient(conn, host)
		if err != nil {
			return err
		}
		defer c.Close()

		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
				return err
			}
		}
		if a != nil {
			if ok, _ := c.Extension("AUTH"); !ok {
				return errors.New("smtp: server doesn't support AUTH")
			}
			if err := c.Auth(a); err != nil {
				return err
			}
		}
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, rcpt := range to {
			if err := c.Rcpt(rcpt); err != nil {
				return err
			}
		}
		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := w.Write(msg); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		return c.Quit()
	}
}

// sendWithin runs the send func and stops waiting for it once ctx or the
// sender's timeout expires. An abandoned send finishes in the background.
func (s *SMTPSender) sendWithin(ctx context.Context, addr string, a smtp.Auth, to string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.send(addr, a, s.cfg.From, []string{to}, msg) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("smtp %s: %w", addr, ctx.Err())
	}
}

var errNoRecipient = errors.New("notify: order has no email address")

func (s *SMTPSender) PaymentSucceeded(ctx context.Context, m PaymentMessage) error {
	return s.deliver(ctx, m.Order, "Thanh toán thành công - Đơn hàng "+m.Order.OrderNumber, "payment", map[string]any{
		"Order":   m.Order,
		"Payment": m.Payment,
		"Links":   s.links.For(m.Order.ID),
	})
}

func (s *SMTPSender) RefundConfirmed(ctx context.Context, m RefundMessage) error {
	return s.deliver(ctx, m.Order, "Hoàn tiền thành công - Đơn hàng "+m.Order.OrderNumber, "refund", map[string]any{
		"Order":   m.Order,
		"Payment": m.Payment,
		"Amount":  m.Amount,
		"Reason":  m.Reason,
		"Links":   s.links.For(m.Order.ID),
	})
}

// ExpiringSoon mails every order separately; one failed address does not
// stop the rest.
func (s *SMTPSender) ExpiringSoon(ctx context.Context, orders []*orderdomain.Order) error {
	var errs []error
	for _, o := range orders {
		err := s.deliver(ctx, o, "Đơn hàng "+o.OrderNumber+" sắp hết hạn", "expiring", map[string]any{
			"Order": o,
			"Links": s.links.For(o.ID),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", o.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *SMTPSender) deliver(ctx context.Context, o *orderdomain.Order, subject, tmpl string, data map[string]any) error {
	to := s.cfg.ToOverride
	if to == "" {
		to = o.ShippingAddress.Email
	}
	if to == "" {
		return errNoRecipient
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, data); err != nil {
		return fmt.Errorf("notify: render %s: %w", tmpl, err)
	}

	msg := s.compose(to, subject, body.Bytes())
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.sendWithin(ctx, addr, auth, to, msg); err != nil {
		return fmt.Errorf("notify: send %s to %s: %w", tmpl, to, err)
	}
	s.logger.InfoContext(ctx, "email sent", "template", tmpl, "order_id", o.ID, "to", to)
	return nil
}

func (s *SMTPSender) compose(to, subject string, body []byte) []byte {
	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = mime.QEncoding.Encode("utf-8", s.cfg.FromName) + " <" + s.cfg.From + ">"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.Write(body)
	return b.Bytes()
}

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"vnd": money.FormatVND,
	"usd": money.FormatUSD,
}).Parse(`
{{define "payment"}}<html><body>
<h2>Cảm ơn bạn đã thanh toán!</h2>
<p>Đơn hàng <strong>{{.Order.OrderNumber}}</strong> đã được thanh toán thành công.</p>
<p>Số tiền: <strong>{{vnd .Payment.Amount}}</strong> ({{usd .Order.Total}})</p>
{{if .Payment.TransactionNo}}<p>Mã giao dịch: {{.Payment.TransactionNo}}</p>{{end}}
<ul>{{range .Order.Items}}<li>{{.Title}} x {{.Quantity}}</li>{{end}}</ul>
<p><a href="{{.Links.ViewURL}}">Xem đơn hàng</a></p>
<p>Bạn có thể yêu cầu hoàn tiền trong vòng 30 ngày: <a href="{{.Links.RefundURL}}">Yêu cầu hoàn tiền</a></p>
</body></html>{{end}}
{{define "refund"}}<html><body>
<h2>Hoàn tiền thành công</h2>
<p>Đơn hàng <strong>{{.Order.OrderNumber}}</strong> đã được hoàn tiền.</p>
<p>Số tiền hoàn: <strong>{{vnd .Amount}}</strong></p>
{{if .Reason}}<p>Lý do: {{.Reason}}</p>{{end}}
<p><a href="{{.Links.ViewURL}}">Xem đơn hàng</a></p>
</body></html>{{end}}
{{define "expiring"}}<html><body>
<h2>Đơn hàng sắp hết hạn</h2>
<p>Đơn hàng <strong>{{.Order.OrderNumber}}</strong> chưa được thanh toán và sẽ bị hủy tự động.</p>
<p><a href="{{.Links.ViewURL}}">Xem đơn hàng</a></p>
</body></html>{{end}}
`))
