// Package metrics exposes runtime counters via expvar and OpenTelemetry.
package metrics

import (
	"context"
	"expvar"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/dwsmith1983/releasepub"

var meter = otel.Meter(instrumentationName)

var (
	ReleasesCompleted        = newCounter("releases_completed", "Publishing attempts stamped Complete.")
	ReleasesNotReady         = newCounter("releases_not_ready", "Candidate attempts skipped because prior stages were incomplete.")
	CompletionErrors         = newCounter("completion_errors", "Completion runs aborted by an error.")
	EventsRaised             = newCounter("events_raised", "Release version published events delivered to topics.")
	DataSetVersionsPublished = newCounter("dataset_versions_published", "Draft data set versions promoted to published.")
	MethodologiesPublished   = newCounter("methodologies_published", "Methodology versions published alongside releases.")
	NotificationsSent        = newCounter("notifications_sent", "Subscriber notifications queued.")
)

// Counter increments an expvar integer and an OpenTelemetry counter together.
type Counter struct {
	v    *expvar.Int
	otel metric.Int64Counter
}

func newCounter(name, description string) *Counter {
	c := &Counter{v: expvar.NewInt(name)}
	oc, err := meter.Int64Counter("releasepub."+name, metric.WithDescription(description))
	if err != nil {
		oc = noop.Int64Counter{}
	}
	c.otel = oc
	return c
}

// Add increments the counter by n.
func (c *Counter) Add(ctx context.Context, n int64) {
	c.v.Add(n)
	c.otel.Add(ctx, n)
}

// Value returns the process-local count.
func (c *Counter) Value() int64 { return c.v.Value() }
