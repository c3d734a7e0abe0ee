package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SlippageLogStore persists probe and prediction rows. ListBefore returns
// the oldest rows first.
type SlippageLogStore interface {
	InsertBatch(ctx context.Context, records []LogRecord) error
	ListRecent(ctx context.Context, opts ListOpts) ([]LogRecord, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]LogRecord, error)
	DeleteByID(ctx context.Context, ids []string) (int64, error)
}

// ModelPerformanceStore persists training metrics.
type ModelPerformanceStore interface {
	Insert(ctx context.Context, eval ModelEvaluation) error
	ListRecent(ctx context.Context, limit int) ([]ModelEvaluation, error)
}
