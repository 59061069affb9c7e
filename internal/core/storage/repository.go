package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/beacon-lab/project-beacon/internal/core/aggregate"
	"github.com/beacon-lab/project-beacon/internal/core/granularity"
)

// AggregateStore is the durable backend the flush scheduler writes to.
//
// Contract: BatchStore either persists the whole batch or returns an
// error; the caller logs and discards the batch on failure (re-buffering
// would double-count later increments sharing the same key). Any row
// counts the backend reports are advisory — some backends cannot report
// exact affected rows for bulk writes — so success is judged solely by
// the returned error.
type AggregateStore interface {
	BatchStore(ctx context.Context, snapshots []aggregate.BucketSnapshot) error
}

// AggregateQuery scopes a read of stored aggregates. Environment == ""
// matches every environment; [From, To) bounds bucket_start.
type AggregateQuery struct {
	Event       string
	Environment string
	Granularity granularity.Granularity
	From        time.Time
	To          time.Time
	Limit       int
}

// StoredAggregate is one persisted bucket row.
type StoredAggregate struct {
	Event        string                      `json:"event"`
	Environment  string                      `json:"environment"`
	Granularity  granularity.Granularity     `json:"granularity"`
	BucketStart  time.Time                   `json:"bucket_start"`
	Count        int64                       `json:"count"`
	UniqueActors int64                       `json:"unique_actors"`
	ValueSum     decimal.Decimal             `json:"value_sum"`
	Breakdowns   map[string]map[string]int64 `json:"breakdowns,omitempty"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

// AggregateReader serves historical bucket queries, ordered by bucket_start
// ascending.
type AggregateReader interface {
	QueryRange(ctx context.Context, q AggregateQuery) ([]StoredAggregate, error)
}
