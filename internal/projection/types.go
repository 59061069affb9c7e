package projection

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/beacon-lab/project-beacon/internal/core/granularity"
)

// AggregateQueryRequest represents the query parameters for fetching stored buckets.
type AggregateQueryRequest struct {
	Event       string    `form:"event" binding:"required"`
	Environment string    `form:"environment"`
	Granularity string    `form:"granularity" binding:"required"`
	Start       time.Time `form:"start" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	End         time.Time `form:"end" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit       int       `form:"limit"`
}

// AggregateValue represents a single bucket in the response.
type AggregateValue struct {
	BucketStart  time.Time                   `json:"bucket_start"`
	BucketEnd    time.Time                   `json:"bucket_end"`
	Count        int64                       `json:"count"`
	UniqueActors int64                       `json:"unique_actors"`
	ValueSum     decimal.Decimal             `json:"value_sum"`
	Breakdowns   map[string]map[string]int64 `json:"breakdowns,omitempty"`
}

// AggregateQueryResponse represents the response for an aggregate query.
type AggregateQueryResponse struct {
	Event       string                  `json:"event"`
	Environment string                  `json:"environment,omitempty"`
	Granularity granularity.Granularity `json:"granularity"`
	Start       time.Time               `json:"start"`
	End         time.Time               `json:"end"`
	Values      []AggregateValue        `json:"values"`
}
