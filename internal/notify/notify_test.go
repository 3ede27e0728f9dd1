package notify_test

import (
	"context"
	"errors"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-sagas/internal/notify"
	orderdomain "github.com/jcmexdev/storefront-sagas/internal/order-service/domain"
	paymentdomain "github.com/jcmexdev/storefront-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/linktoken"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

type mailbox struct {
	sent []sentMail
	err  error
}

func (m *mailbox) send(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
	return nil
}

func fixture() (*orderdomain.Order, *paymentdomain.Payment) {
	o := &orderdomain.Order{
		ID: "O1", OrderNumber: "ORD-202603-0001", Total: decimal.NewFromInt(20),
		Items:           []orderdomain.OrderItem{{ProductID: "p1", Title: "Mug", Quantity: 2}},
		ShippingAddress: orderdomain.ShippingAddress{Email: "lan@example.com"},
	}
	p := &paymentdomain.Payment{ID: "P1", OrderID: "O1", Amount: decimal.NewFromInt(500000), TransactionNo: "14012345"}
	return o, p
}

func TestLinkBuilder(t *testing.T) {
	codec := linktoken.New("s3cret")
	links := notify.NewLinkBuilder(codec, "https://api.example.com/").For("O1")

	assert.Equal(t, "https://api.example.com/orders/view/"+codec.Derive("O1", linktoken.PurposeView), links.ViewURL)
	assert.Equal(t, "https://api.example.com/orders/refund/"+codec.Derive("O1", linktoken.PurposeRefund), links.RefundURL)
	assert.True(t, strings.HasSuffix(links.RefundExecuteURL, "/execute"))
}

func TestSMTPSender_PaymentSucceeded(t *testing.T) {
	box := &mailbox{}
	codec := linktoken.New("s3cret")
	s := notify.NewSMTPSender(notify.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "shop@example.com", FromName: "Shop"},
		notify.NewLinkBuilder(codec, "https://api.example.com"), nil, notify.WithSendFunc(box.send))

	o, p := fixture()
	require.NoError(t, s.PaymentSucceeded(context.Background(), notify.PaymentMessage{Order: o, Payment: p}))

	require.Len(t, box.sent, 1)
	mail := box.sent[0]
	assert.Equal(t, "smtp.example.com:587", mail.addr)
	assert.Equal(t, []string{"lan@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "500.000 ₫")
	assert.Contains(t, mail.msg, codec.Derive("O1", linktoken.PurposeRefund))
	assert.Contains(t, mail.msg, "Content-Type: text/html; charset=UTF-8")
}

func TestSMTPSender_ToOverrideAndErrors(t *testing.T) {
	box := &mailbox{}
	s := notify.NewSMTPSender(notify.SMTPConfig{Host: "h", Port: 25, From: "f@x", ToOverride: "ops@example.com"},
		notify.NewLinkBuilder(linktoken.New("k"), "http://x"), nil, notify.WithSendFunc(box.send))

	o, p := fixture()
	require.NoError(t, s.RefundConfirmed(context.Background(), notify.RefundMessage{Order: o, Payment: p, Amount: p.Amount}))
	assert.Equal(t, []string{"ops@example.com"}, box.sent[0].to)

	box.err = errors.New("relay denied")
	err := s.ExpiringSoon(context.Background(), []*orderdomain.Order{o, o})
	assert.ErrorContains(t, err, "relay denied")
}

func TestSMTPSender_GivesUpOnBlockedSend(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	blocked := func(string, smtp.Auth, string, []string, []byte) error {
		<-release
		return nil
	}
	s := notify.NewSMTPSender(notify.SMTPConfig{Host: "h", Port: 25, From: "f@x"},
		notify.NewLinkBuilder(linktoken.New("k"), "http://x"), nil,
		notify.WithSendFunc(blocked), notify.WithTimeout(50*time.Millisecond))

	o, p := fixture()
	start := time.Now()
	err := s.RefundConfirmed(context.Background(), notify.RefundMessage{Order: o, Payment: p, Amount: p.Amount})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTPSender_SilentServerTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	// Accept connections and never greet.
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				_ = c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)
	s := notify.NewSMTPSender(notify.SMTPConfig{Host: host, Port: portNum, From: "f@x"},
		notify.NewLinkBuilder(linktoken.New("k"), "http://x"), nil, notify.WithTimeout(100*time.Millisecond))

	o, p := fixture()
	start := time.Now()
	err = s.PaymentSucceeded(context.Background(), notify.PaymentMessage{Order: o, Payment: p})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTPSender_NoRecipient(t *testing.T) {
	box := &mailbox{}
	s := notify.NewSMTPSender(notify.SMTPConfig{Host: "h", Port: 25}, notify.NewLinkBuilder(linktoken.New("k"), "http://x"),
		nil, notify.WithSendFunc(box.send))
	o, p := fixture()
	o.ShippingAddress.Email = ""
	assert.Error(t, s.PaymentSucceeded(context.Background(), notify.PaymentMessage{Order: o, Payment: p}))
	assert.Empty(t, box.sent)
}

func TestLogSender(t *testing.T) {
	s := notify.NewLogSender(notify.NewLinkBuilder(linktoken.New("k"), "http://x"), nil)
	o, p := fixture()
	assert.NoError(t, s.PaymentSucceeded(context.Background(), notify.PaymentMessage{Order: o, Payment: p}))
	assert.NoError(t, s.ExpiringSoon(context.Background(), []*orderdomain.Order{o}))
}
