/*
Package metrics exposes silo's Prometheus metrics and a small health
registry, using the same promhttp-backed exposition and JSON health
endpoints as the rest of this module's ambient stack.

# Metrics

Counters and a histogram cover the row store: InsertsTotal,
DeletesTotal, PrunesTotal, BusyTimeoutsTotal, and DecodeRefusalsTotal,
each labeled by container, plus QueriesTotal and QueryDuration labeled
by the public retrieval alias that was called (select_latest,
select_oldest, by_key, ...). The farm contributes HarvestsTotal and
ReapsTotal labeled by shard, a label-free PlantsTotal, and
FarmShardRows, a gauge of the row count last observed in each shard.

A Collector samples FarmShardRows on a 15-second tick by calling a
caller-supplied per-shard function, the same ticker-driven
background-goroutine shape used elsewhere in this module. This package
never imports the row store it instruments; the sampling function is
built by the caller:

	c := metrics.NewCollector(shardCount, func(ctx context.Context, shard int) (int64, error) {
		return conn.Count(ctx, fmt.Sprintf("%s/barn%d.sqlite", farmDir, shard), "objects")
	})
	c.Start()
	defer c.Stop()

# Health

RegisterComponent/UpdateComponent track whether a named component
("storage", "farm") is healthy; GetHealth and GetReadiness fold those
into an overall status, exposed via HealthHandler, ReadyHandler, and
LivenessHandler.

# Timer

Timer is a small duration-measuring helper used to feed QueryDuration
and similar histograms from call sites without repeating
time.Since(start) everywhere.
*/
package metrics
