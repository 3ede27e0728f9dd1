package sagalog

import "context"

// Repository persists saga log entries. The table is append-only: each
// Save adds a row.
type Repository interface {
	Save(ctx context.Context, entry *SagaLog) error
}

// Reader is implemented by repositories that can replay a saga.
type Reader interface {
	GetLatest(ctx context.Context, sagaID string) (*SagaLog, error)
	ListBySaga(ctx context.Context, sagaID string) ([]*SagaLog, error)
	// ListByStatus returns the latest entry of every saga whose current
	// status is status, newest first, at most limit rows.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*SagaLog, error)
}

// Discard drops every entry. It stands in when no saga log is configured.
type Discard struct{}

func (Discard) Save(context.Context, *SagaLog) error { return nil }
