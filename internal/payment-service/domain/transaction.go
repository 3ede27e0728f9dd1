package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionPayment TransactionType = "PAYMENT"
	TransactionRefund  TransactionType = "REFUND"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// Transaction is an append-only record of money movement for a payment.
type Transaction struct {
	ID              string
	PaymentID       string
	TransactionRef  string
	Amount          decimal.Decimal
	Type            TransactionType
	Status          TransactionStatus
	Gateway         string
	GatewayResponse string
	CreatedAt       time.Time
}

type LogType string

const (
	LogPaymentCreated LogType = "PAYMENT_CREATED"
	LogVNPayRequest   LogType = "VNPAY_REQUEST"
	LogVNPayResponse  LogType = "VNPAY_RESPONSE"
	LogVNPayCallback  LogType = "VNPAY_CALLBACK"
	LogVNPayIPN       LogType = "VNPAY_IPN"
	LogRefundRequest  LogType = "REFUND_REQUEST"
	LogRefundResponse LogType = "REFUND_RESPONSE"
	LogPaymentError   LogType = "PAYMENT_ERROR"
)

type LogLevel string

const (
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// Log is an audit line about a payment's interaction with the gateway.
type Log struct {
	ID        string
	PaymentID string
	OrderID   string
	Type      LogType
	Level     LogLevel
	Message   string
	Data      string
	CreatedAt time.Time
}
