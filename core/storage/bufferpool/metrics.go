package bufferpool

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics is the set of OpenTelemetry instruments a BufferPoolInstance
// reports to. A nil *Metrics is valid everywhere below: every recording
// method is a no-op on a nil receiver, so callers that don't care about
// observability can simply pass nil to NewInstance.
type Metrics struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
	poolFull  metric.Int64Counter
}

// NewMetrics registers the buffer pool's counters against meter. meter is
// typically obtained from a process-wide metrics.Telemetry (see
// pkg/metrics) but any metric.Meter works, including the noop one used
// when telemetry is disabled.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	hits, err := meter.Int64Counter("bufferpool.page_hits",
		metric.WithDescription("pages served from the pool without a disk read"))
	if err != nil {
		return nil, fmt.Errorf("bufferpool: registering page_hits counter: %w", err)
	}
	misses, err := meter.Int64Counter("bufferpool.page_misses",
		metric.WithDescription("pages that required a disk read to satisfy FetchPage"))
	if err != nil {
		return nil, fmt.Errorf("bufferpool: registering page_misses counter: %w", err)
	}
	evictions, err := meter.Int64Counter("bufferpool.evictions",
		metric.WithDescription("frames reclaimed from the replacer to satisfy NewPage/FetchPage"))
	if err != nil {
		return nil, fmt.Errorf("bufferpool: registering evictions counter: %w", err)
	}
	poolFull, err := meter.Int64Counter("bufferpool.pool_full",
		metric.WithDescription("NewPage/FetchPage calls that found no evictable frame"))
	if err != nil {
		return nil, fmt.Errorf("bufferpool: registering pool_full counter: %w", err)
	}
	return &Metrics{hits: hits, misses: misses, evictions: evictions, poolFull: poolFull}, nil
}

func (m *Metrics) recordHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.hits.Add(ctx, 1)
}

func (m *Metrics) recordMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.misses.Add(ctx, 1)
}

func (m *Metrics) recordEviction(ctx context.Context) {
	if m == nil {
		return
	}
	m.evictions.Add(ctx, 1)
}

func (m *Metrics) recordPoolFull(ctx context.Context) {
	if m == nil {
		return
	}
	m.poolFull.Add(ctx, 1)
}
