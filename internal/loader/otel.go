package loader

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/inspector/internal/loader"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	fetchedCount   metric.Int64Counter
	evictedCount   metric.Int64Counter
	coalescedCount metric.Int64Counter
	resident       metric.Int64ObservableGauge
	registration   metric.Registration
}

// newMetrics creates the loader instruments on the global meter (no-op if
// not configured).
func newMetrics(l *Loader) (*metrics, error) {
	m := meter()
	out := &metrics{}

	var err error
	out.fetchedCount, err = m.Int64Counter(
		"loader.chunks.fetched",
		metric.WithDescription("Chunk fetch requests sent"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetched counter: %w", err)
	}

	out.evictedCount, err = m.Int64Counter(
		"loader.chunks.evicted",
		metric.WithDescription("Chunks evicted from the resident set"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating evicted counter: %w", err)
	}

	out.coalescedCount, err = m.Int64Counter(
		"loader.requests.coalesced",
		metric.WithDescription("Frame requests that joined an in-flight fetch"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating coalesced counter: %w", err)
	}

	out.resident, err = m.Int64ObservableGauge(
		"loader.chunks.resident",
		metric.WithDescription("Current number of resident chunks"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resident gauge: %w", err)
	}

	out.registration, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			l.mu.Lock()
			n := len(l.resident)
			l.mu.Unlock()
			o.ObserveInt64(out.resident, int64(n))
			return nil
		},
		out.resident,
	)
	if err != nil {
		return nil, fmt.Errorf("registering resident callback: %w", err)
	}

	return out, nil
}

func (m *metrics) fetched(ctx context.Context) {
	m.fetchedCount.Add(ctx, 1)
}

func (m *metrics) coalesced(ctx context.Context) {
	m.coalescedCount.Add(ctx, 1)
}

func (m *metrics) evicted(ctx context.Context, n int) {
	m.evictedCount.Add(ctx, int64(n))
}

func (m *metrics) unregister() {
	if m.registration != nil {
		_ = m.registration.Unregister()
	}
}
