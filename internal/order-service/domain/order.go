package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string
	OrderNumber     string
	CustomerID      string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   string
	Total           decimal.Decimal
	Status          OrderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PendingExpiry   *time.Time
	ReceivedAt      *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	RefundedAt      *time.Time
}

type OrderItem struct {
	ProductID string
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type ShippingAddress struct {
	FullName     string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	PostalCode   string
	Country      string
	PhoneNumber  string
	Email        string
}

// ItemsTotal sums the item subtotals.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Settled reports whether the order reached a terminal status.
func (o *Order) Settled() bool {
	return o.Status == StatusCanceled || o.Status == StatusRefunded
}

// Expired reports whether a pending order outlived its expiry at now.
func (o *Order) Expired(now time.Time) bool {
	return o.Status == StatusPending && o.PendingExpiry != nil && o.PendingExpiry.Before(now)
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusReceived  OrderStatus = "RECEIVED"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCanceled  OrderStatus = "CANCELED"
	StatusRefunded  OrderStatus = "REFUNDED"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusReceived, StatusCanceled},
	StatusReceived:  {StatusConfirmed, StatusShipped, StatusCanceled, StatusRefunded},
	StatusConfirmed: {StatusShipped, StatusCanceled, StatusRefunded},
	StatusShipped:   {StatusDelivered, StatusCanceled, StatusRefunded},
	StatusDelivered: {StatusCanceled, StatusRefunded},
}

// CanTransition reports whether from -> to is a legal order transition.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesOf lists every status that may move to to.
func SourcesOf(to OrderStatus) []OrderStatus {
	var out []OrderStatus
	for _, from := range []OrderStatus{StatusPending, StatusReceived, StatusConfirmed, StatusShipped, StatusDelivered} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// CancelReason tells the store which timestamps a cancellation stamps.
type CancelReason string

const (
	CancelExpired CancelReason = "expired"
	CancelRefund  CancelReason = "refund"
)

// Transition is a compare-and-set request on an order's status.
type Transition struct {
	OrderID string
	From    []OrderStatus
	To      OrderStatus
	At      time.Time
	// Refunded additionally stamps refunded_at.
	Refunded bool
}
