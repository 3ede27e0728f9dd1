// Package sagalog records every state transition a refund saga goes
// through. Operators read it to see where a refund stopped and to jump to
// the matching trace; the reconciliation tooling reads it to explain why a
// payment is flagged.
package sagalog

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of a saga execution.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"
	// StatusInconsistent marks a saga that stopped after an irreversible
	// step. It needs reconciliation, not compensation.
	StatusInconsistent Status = "INCONSISTENT"
)

// Terminal reports whether no further rows follow a row in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusInconsistent:
		return true
	default:
		return false
	}
}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusStarted, StatusStepDone, StatusCompleted, StatusCompensating, StatusFailed, StatusInconsistent:
		return st, true
	default:
		return "", false
	}
}

// SagaLog is a single row in the saga_logs table.
// It captures a point-in-time snapshot of a saga execution.
type SagaLog struct {
	// SagaID is the unique identifier for this saga execution. Refund
	// sagas use it as the refund claim held on the payment.
	SagaID string

	// Status is the current lifecycle state.
	Status Status

	// CurrentStep is the name of the step that was just executed or failed.
	CurrentStep string

	// Payload is the JSON-serialised input that started the saga, stored
	// once on STARTED. Link tokens are never part of it.
	Payload string

	// ErrorMessages accumulates failure details, one per failed step, as a
	// JSON array: ["step X failed: ...", "compensation of Y failed: ..."]
	ErrorMessages string

	// TraceID and SpanID come from the OpenTelemetry span that was active
	// when the entry was written.
	TraceID string
	SpanID  string

	// UpdatedAt is the wall-clock time of this log entry.
	UpdatedAt time.Time
}
