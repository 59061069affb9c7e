package postgres

// SQL for the realtime_aggregates table. The flush scheduler re-flushes a
// bucket key whenever a granularity window spans more than one flush cycle,
// so the write path is an additive upsert rather than a plain insert.

const (
	// queryUpsertAggregate folds one flushed bucket snapshot into the table.
	// Counts and value sums add across cycles; breakdowns are merged by the
	// breakdowns_merge SQL function installed by the migrations. unique_actors
	// is exact within one cycle and an upper bound across cycles — actor sets
	// are not persisted, so overlap between cycles cannot be subtracted.
	queryUpsertAggregate = `
		INSERT INTO realtime_aggregates (
			event, environment, granularity, bucket_start,
			event_count, unique_actors, value_sum, breakdowns, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event, environment, granularity, bucket_start)
		DO UPDATE SET
			event_count   = realtime_aggregates.event_count + EXCLUDED.event_count,
			unique_actors = realtime_aggregates.unique_actors + EXCLUDED.unique_actors,
			value_sum     = realtime_aggregates.value_sum + EXCLUDED.value_sum,
			breakdowns    = breakdowns_merge(realtime_aggregates.breakdowns, EXCLUDED.breakdowns),
			updated_at    = EXCLUDED.updated_at
	`

	// queryRangeAggregates serves the historical query API. Empty
	// environment ($2 = '') matches all environments; bucket_start is
	// half-open [from, to).
	queryRangeAggregates = `
		SELECT
			event, environment, granularity, bucket_start,
			event_count, unique_actors, value_sum, breakdowns, updated_at
		FROM realtime_aggregates
		WHERE event = $1
		  AND ($2 = '' OR environment = $2)
		  AND granularity = $3
		  AND bucket_start >= $4
		  AND bucket_start < $5
		ORDER BY bucket_start ASC
		LIMIT $6
	`

	// queryCheckSchema verifies migrations have been applied before the
	// adapter accepts writes.
	queryCheckSchema = `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'realtime_aggregates'
		)
	`
)
