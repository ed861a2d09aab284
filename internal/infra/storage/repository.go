package storage

import (
	"context"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
)

// RecordQuery filters call records.
type RecordQuery struct {
	Since time.Time
	Until time.Time
	Kind  domain.OperationKind
	// Limit defaults to 50.
	Limit int
}

// CallRecordRepository persists one row per logical operation.
type CallRecordRepository interface {
	// InsertBatch saves records in one statement. Empty input is a no-op.
	InsertBatch(ctx context.Context, records []domain.CallRecord) error

	// GetByID returns a record or domain.ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.CallRecord, error)

	// List returns matching records, newest first.
	List(ctx context.Context, q RecordQuery) ([]domain.CallRecord, error)

	// Summarize aggregates matching records per kind, ordered by kind.
	Summarize(ctx context.Context, q RecordQuery) ([]domain.KindSummary, error)

	// DeleteOlderThan removes records created before t and returns the count.
	DeleteOlderThan(ctx context.Context, t time.Time) (int64, error)
}
