package metrics

import (
	"context"
	"fmt"
	"time"
)

// Collector periodically samples a caller-supplied per-shard row count
// into FarmShardRows, the same ticker-driven background-goroutine shape
// the rest of this module's long-running components use. It takes a
// sampling function rather than a *storage.Conn directly so that this
// package never has to import the row store it instruments.
type Collector struct {
	shards     int
	sampleFunc func(ctx context.Context, shard int) (int64, error)
	stopCh     chan struct{}
}

// NewCollector creates a collector over shards shard indices, each
// sampled via sampleFunc.
func NewCollector(shards int, sampleFunc func(ctx context.Context, shard int) (int64, error)) *Collector {
	return &Collector{
		shards:     shards,
		sampleFunc: sampleFunc,
		stopCh:     make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for shard := 0; shard < c.shards; shard++ {
		count, err := c.sampleFunc(ctx, shard)
		if err != nil {
			continue
		}
		FarmShardRows.WithLabelValues(fmt.Sprintf("%d", shard)).Set(float64(count))
	}
}
