package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/inspector/internal/dispatcher"

// metrics holds the dispatcher instruments, created on the global meter so
// they are no-ops until a provider is installed.
type metrics struct {
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
}

func newMetrics(d *Dispatcher) (*metrics, error) {
	m := otel.Meter(instrumentationName)
	out := &metrics{}

	var err error
	if out.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Events waiting in a command queue"),
	); err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for cmd, n := range d.queueLengths() {
			o.ObserveInt64(out.queueSize, int64(n), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, out.queueSize); err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	if out.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Queued events handled by a command worker"),
	); err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	if out.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Events refused because the command queue was full"),
	); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	return out, nil
}

func (m *metrics) handled(command string) {
	m.processed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", command)))
}

func (m *metrics) refused(command string) {
	m.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", command)))
}
