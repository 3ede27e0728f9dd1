package sagalog

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// NewEntry builds a log row for sagaID stamped with the span active in ctx.
// Trace and span ids stay empty when ctx has no valid span.
//
//	_ = repo.Save(ctx, sagalog.NewEntry(ctx, sagaID, sagalog.StatusStepDone, "gateway_refund", "", nil))
func NewEntry(ctx context.Context, sagaID string, status Status, step, payload string, errs []string) *SagaLog {
	entry := &SagaLog{
		SagaID:        sagaID,
		Status:        status,
		CurrentStep:   step,
		Payload:       payload,
		ErrorMessages: encodeErrors(errs),
		UpdatedAt:     time.Now().UTC(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		entry.TraceID = sc.TraceID().String()
		entry.SpanID = sc.SpanID().String()
	}
	return entry
}

// Errors decodes ErrorMessages. A malformed column is returned as a single
// message so nothing recorded is hidden.
func (l *SagaLog) Errors() []string {
	if l.ErrorMessages == "" || l.ErrorMessages == "[]" {
		return nil
	}
	var errs []string
	if err := json.Unmarshal([]byte(l.ErrorMessages), &errs); err != nil {
		return []string{l.ErrorMessages}
	}
	return errs
}

func encodeErrors(errs []string) string {
	if len(errs) == 0 {
		return "[]"
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return "[]"
	}
	return string(b)
}
