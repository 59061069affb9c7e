package projection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/beacon-lab/project-beacon/internal/core/granularity"
	"github.com/beacon-lab/project-beacon/internal/core/storage"
)

// fakeReader returns canned rows and records the query it was asked.
type fakeReader struct {
	rows    []storage.StoredAggregate
	err     error
	lastQ   storage.AggregateQuery
	queried bool
}

func (f *fakeReader) QueryRange(_ context.Context, q storage.AggregateQuery) ([]storage.StoredAggregate, error) {
	f.lastQ = q
	f.queried = true
	return f.rows, f.err
}

func TestQueryAggregates_MapsRowsToValues(t *testing.T) {
	start := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)
	reader := &fakeReader{
		rows: []storage.StoredAggregate{
			{
				Event:        "pageview",
				Granularity:  granularity.Hour,
				BucketStart:  start,
				Count:        42,
				UniqueActors: 7,
				ValueSum:     decimal.NewFromInt(100),
				Breakdowns:   map[string]map[string]int64{"path": {"/home": 42}},
			},
		},
	}
	svc := NewService(reader)

	resp, err := svc.QueryAggregates(context.Background(), AggregateQueryRequest{
		Event:       "pageview",
		Granularity: "hour",
		Start:       start,
		End:         start.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	require.Equal(t, granularity.Hour, resp.Granularity)
	require.Len(t, resp.Values, 1)

	v := resp.Values[0]
	require.Equal(t, start, v.BucketStart)
	require.Equal(t, start.Add(time.Hour), v.BucketEnd)
	require.EqualValues(t, 42, v.Count)
	require.EqualValues(t, 7, v.UniqueActors)
	require.True(t, decimal.NewFromInt(100).Equal(v.ValueSum))
	require.EqualValues(t, 42, v.Breakdowns["path"]["/home"])

	require.Equal(t, 1000, reader.lastQ.Limit, "default limit applies")
}

func TestQueryAggregates_Validation(t *testing.T) {
	start := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  AggregateQueryRequest
	}{
		{
			name: "unknown granularity",
			req:  AggregateQueryRequest{Event: "e", Granularity: "fortnight", Start: start, End: start.Add(time.Hour)},
		},
		{
			name: "end before start",
			req:  AggregateQueryRequest{Event: "e", Granularity: "hour", Start: start, End: start.Add(-time.Hour)},
		},
		{
			name: "end equals start",
			req:  AggregateQueryRequest{Event: "e", Granularity: "hour", Start: start, End: start},
		},
		{
			name: "limit too large",
			req:  AggregateQueryRequest{Event: "e", Granularity: "hour", Start: start, End: start.Add(time.Hour), Limit: 20000},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reader := &fakeReader{}
			svc := NewService(reader)

			_, err := svc.QueryAggregates(context.Background(), tc.req)
			require.ErrorIs(t, err, ErrInvalidQuery)
			require.False(t, reader.queried, "invalid queries must not reach the store")
		})
	}
}

func TestQueryAggregates_NormalizesTimesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	start := time.Date(2026, 2, 11, 12, 0, 0, 0, loc)

	reader := &fakeReader{}
	svc := NewService(reader)

	resp, err := svc.QueryAggregates(context.Background(), AggregateQueryRequest{
		Event:       "pageview",
		Granularity: "hour",
		Start:       start,
		End:         start.Add(time.Hour),
	})
	require.NoError(t, err)

	require.Equal(t, time.UTC, resp.Start.Location())
	require.Equal(t, time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC), reader.lastQ.From)
}

func TestQueryAggregates_StoreErrorPropagates(t *testing.T) {
	reader := &fakeReader{err: errors.New("connection reset")}
	svc := NewService(reader)

	start := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)
	_, err := svc.QueryAggregates(context.Background(), AggregateQueryRequest{
		Event:       "pageview",
		Granularity: "hour",
		Start:       start,
		End:         start.Add(time.Hour),
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidQuery)
}
