package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeteredAPI forwards every report to an inner API and also counts
// broken/warning reports.
type MeteredAPI struct {
	inner    API
	broken   metric.Int64Counter
	warnings metric.Int64Counter
}

// NewMeteredAPI uses the global meter provider, which is a no-op unless
// SetupOtlp installed one.
func NewMeteredAPI(inner API) (MeteredAPI, error) {
	meter := otel.Meter("standings-sync")

	broken, err := meter.Int64Counter(
		"standings_sync.broken",
		metric.WithDescription("components reported as broken"),
	)
	if err != nil {
		return MeteredAPI{}, err
	}
	warnings, err := meter.Int64Counter(
		"standings_sync.warnings",
		metric.WithDescription("warnings reported by components"),
	)
	if err != nil {
		return MeteredAPI{}, err
	}

	return MeteredAPI{
		inner:    inner,
		broken:   broken,
		warnings: warnings,
	}, nil
}

func (m MeteredAPI) ReportBroken(id string, params ...any) {
	m.broken.Add(context.Background(), 1, metric.WithAttributes(attribute.String("id", id)))
	m.inner.ReportBroken(id, params...)
}

func (m MeteredAPI) ReportWarning(id string, params ...any) {
	m.warnings.Add(context.Background(), 1, metric.WithAttributes(attribute.String("id", id)))
	m.inner.ReportWarning(id, params...)
}

func (m MeteredAPI) ReportDebug(msg string, params ...any) {
	m.inner.ReportDebug(msg, params...)
}

func (m MeteredAPI) ReportCount(id string, count int64) {
	m.inner.ReportCount(id, count)
}

// SyncMetrics are the counters a sync run increments directly.
type SyncMetrics struct {
	Runs          metric.Int64Counter
	Publishes     metric.Int64Counter
	FetchAttempts metric.Int64Counter
}

func NewSyncMetrics() (SyncMetrics, error) {
	meter := otel.Meter("standings-sync")

	runs, err := meter.Int64Counter(
		"standings_sync.runs",
		metric.WithDescription("feed runs by outcome"),
	)
	if err != nil {
		return SyncMetrics{}, err
	}
	publishes, err := meter.Int64Counter(
		"standings_sync.publishes",
		metric.WithDescription("artifacts published"),
	)
	if err != nil {
		return SyncMetrics{}, err
	}
	attempts, err := meter.Int64Counter(
		"standings_sync.fetch_attempts",
		metric.WithDescription("http attempts made to download artifacts"),
	)
	if err != nil {
		return SyncMetrics{}, err
	}

	return SyncMetrics{
		Runs:          runs,
		Publishes:     publishes,
		FetchAttempts: attempts,
	}, nil
}
