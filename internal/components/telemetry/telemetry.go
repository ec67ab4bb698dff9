package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// API is what every component reports through instead of logging directly,
// tests swap it for a RecordingAPI and assert on what was reported.
type API interface {
	// ReportBroken reports a component that broke in a way someone should look
	// into.
	//
	// The id names the component, not the failing line: "fetcher.fetch" rather
	// than "fetcher.fetch-get-failed". Ids are lowercase, components are
	// separated by dots and multi word names use dashes.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that is not necessarily broken, like a
	// portal page missing an expected form.
	ReportWarning(id string, params ...any)

	// ReportDebug is dropped in production.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the current value of a count, like the amount of
	// queued jobs. Counts are samples over time and must not be summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace. Scoping a ScopedAPI nests the
// namespaces, "worker" then "session" gives "worker.session.<id>".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	if scoped, ok := inner.(ScopedAPI); ok {
		return ScopedAPI{namespace: scoped.namespace + "." + namespace, inner: scoped.inner}
	}
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) id(id string) string {
	return s.namespace + "." + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.id(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.id(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.namespace+": "+msg, params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.id(id), count)
}

// MeteredAPI forwards everything to inner and additionally records counts
// and broken reports as otel metrics, so queue sizes end up on the same
// dashboards as the job counters.
type MeteredAPI struct {
	inner  API
	counts metric.Int64Gauge
	broken metric.Int64Counter
}

func NewMeteredAPI(inner API) (MeteredAPI, error) {
	meter := otel.Meter("supplierbot/telemetry")
	counts, err := meter.Int64Gauge(
		"report.count",
		metric.WithDescription("Counts reported through the telemetry API."),
	)
	if err != nil {
		return MeteredAPI{}, err
	}
	broken, err := meter.Int64Counter(
		"report.broken",
		metric.WithDescription("Components reported as broken."),
	)
	if err != nil {
		return MeteredAPI{}, err
	}
	return MeteredAPI{inner: inner, counts: counts, broken: broken}, nil
}

func (m MeteredAPI) ReportBroken(id string, params ...any) {
	m.broken.Add(context.Background(), 1, metric.WithAttributes(attribute.String("id", id)))
	m.inner.ReportBroken(id, params...)
}

func (m MeteredAPI) ReportWarning(id string, params ...any) {
	m.inner.ReportWarning(id, params...)
}

func (m MeteredAPI) ReportDebug(msg string, params ...any) {
	m.inner.ReportDebug(msg, params...)
}

func (m MeteredAPI) ReportCount(id string, count int64) {
	m.counts.Record(context.Background(), count, metric.WithAttributes(attribute.String("id", id)))
	m.inner.ReportCount(id, count)
}
