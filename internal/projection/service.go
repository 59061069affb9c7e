package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/beacon-lab/project-beacon/internal/core/granularity"
	"github.com/beacon-lab/project-beacon/internal/core/storage"
)

// ErrInvalidQuery marks request validation failures; the handler maps it to
// a 400 instead of a 500.
var ErrInvalidQuery = errors.New("invalid aggregate query")

const (
	defaultQueryLimit = 1000
	maxQueryLimit     = 10000
)

// Service serves historical queries over the durable aggregate table. Live
// state (current window, presence, recent events) is the stream service's
// job; this API only reads what flush cycles have persisted.
type Service struct {
	store storage.AggregateReader
}

func NewService(store storage.AggregateReader) *Service {
	if store == nil {
		panic("projection: store must not be nil")
	}
	return &Service{store: store}
}

// QueryAggregates validates the request and fetches the matching buckets,
// oldest first.
func (s *Service) QueryAggregates(ctx context.Context, req AggregateQueryRequest) (*AggregateQueryResponse, error) {
	g, err := granularity.Parse(req.Granularity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if !req.End.After(req.Start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidQuery)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return nil, fmt.Errorf("%w: limit exceeds %d", ErrInvalidQuery, maxQueryLimit)
	}

	rows, err := s.store.QueryRange(ctx, storage.AggregateQuery{
		Event:       req.Event,
		Environment: req.Environment,
		Granularity: g,
		From:        req.Start.UTC(),
		To:          req.End.UTC(),
		Limit:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}

	values := make([]AggregateValue, 0, len(rows))
	for _, row := range rows {
		values = append(values, AggregateValue{
			BucketStart:  row.BucketStart,
			BucketEnd:    granularity.Next(row.BucketStart, row.Granularity),
			Count:        row.Count,
			UniqueActors: row.UniqueActors,
			ValueSum:     row.ValueSum,
			Breakdowns:   row.Breakdowns,
		})
	}

	return &AggregateQueryResponse{
		Event:       req.Event,
		Environment: req.Environment,
		Granularity: g,
		Start:       req.Start.UTC(),
		End:         req.End.UTC(),
		Values:      values,
	}, nil
}
