package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/warrennet/warren/ext"
	"github.com/warrennet/warren/request"
)

const meterName = "github.com/warrennet/warren/observability"

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.RequestRegistered   = (*MetricsExtension)(nil)
	_ ext.RequestStarted      = (*MetricsExtension)(nil)
	_ ext.RequestRestarted    = (*MetricsExtension)(nil)
	_ ext.RequestFinished     = (*MetricsExtension)(nil)
	_ ext.RequestRemoved      = (*MetricsExtension)(nil)
	_ ext.CheckpointCompleted = (*MetricsExtension)(nil)
	_ ext.RecordResumed       = (*MetricsExtension)(nil)
)

// MetricsExtension records request lifecycle metrics through the
// OpenTelemetry metric API. Register it as a Warren extension to track
// registration rates, completion and failure counts, restarts, resumes,
// and checkpoint size and latency.
type MetricsExtension struct {
	requestsRegistered metric.Int64Counter
	requestsStarted    metric.Int64Counter
	requestsRestarted  metric.Int64Counter
	requestsFinished   metric.Int64Counter
	requestsRemoved    metric.Int64Counter
	recordsResumed     metric.Int64Counter
	checkpointRecords  metric.Int64Histogram
	checkpointDuration metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global meter
// provider.
func NewMetricsExtension() (*MetricsExtension, error) {
	return NewMetricsExtensionWithProvider(otel.GetMeterProvider())
}

// NewMetricsExtensionWithProvider creates a MetricsExtension with the
// provided meter provider. Pass a noop provider in tests.
func NewMetricsExtensionWithProvider(provider metric.MeterProvider) (*MetricsExtension, error) {
	meter := provider.Meter(meterName)
	m := &MetricsExtension{}
	var err error
	if m.requestsRegistered, err = meter.Int64Counter("warren.request.registered",
		metric.WithDescription("Requests registered on client queues")); err != nil {
		return nil, err
	}
	if m.requestsStarted, err = meter.Int64Counter("warren.request.started",
		metric.WithDescription("Requests whose engine began running")); err != nil {
		return nil, err
	}
	if m.requestsRestarted, err = meter.Int64Counter("warren.request.restarted",
		metric.WithDescription("Requests restarted after failure")); err != nil {
		return nil, err
	}
	if m.requestsFinished, err = meter.Int64Counter("warren.request.finished",
		metric.WithDescription("Requests that reached a terminal state")); err != nil {
		return nil, err
	}
	if m.requestsRemoved, err = meter.Int64Counter("warren.request.removed",
		metric.WithDescription("Requests removed from client queues")); err != nil {
		return nil, err
	}
	if m.recordsResumed, err = meter.Int64Counter("warren.record.resumed",
		metric.WithDescription("Records rebuilt from durable storage at startup")); err != nil {
		return nil, err
	}
	if m.checkpointRecords, err = meter.Int64Histogram("warren.checkpoint.records",
		metric.WithDescription("Records written per checkpoint pass")); err != nil {
		return nil, err
	}
	if m.checkpointDuration, err = meter.Float64Histogram("warren.checkpoint.duration",
		metric.WithDescription("Checkpoint pass duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func kindAttr(rec *request.Record) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("kind", rec.Kind().String()),
		attribute.String("tier", rec.Tier().String()),
	)
}

// ── Request lifecycle hooks ─────────────────────────

// OnRequestRegistered implements ext.RequestRegistered.
func (m *MetricsExtension) OnRequestRegistered(ctx context.Context, rec *request.Record) error {
	m.requestsRegistered.Add(ctx, 1, kindAttr(rec))
	return nil
}

// OnRequestStarted implements ext.RequestStarted.
func (m *MetricsExtension) OnRequestStarted(ctx context.Context, rec *request.Record) error {
	m.requestsStarted.Add(ctx, 1, kindAttr(rec))
	return nil
}

// OnRequestRestarted implements ext.RequestRestarted.
func (m *MetricsExtension) OnRequestRestarted(ctx context.Context, rec *request.Record) error {
	m.requestsRestarted.Add(ctx, 1, kindAttr(rec))
	return nil
}

// OnRequestFinished implements ext.RequestFinished.
func (m *MetricsExtension) OnRequestFinished(ctx context.Context, rec *request.Record, succeeded bool, _ string) error {
	m.requestsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", rec.Kind().String()),
		attribute.String("tier", rec.Tier().String()),
		attribute.Bool("succeeded", succeeded),
	))
	return nil
}

// OnRequestRemoved implements ext.RequestRemoved.
func (m *MetricsExtension) OnRequestRemoved(ctx context.Context, id request.Identity) error {
	m.requestsRemoved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", id.Kind.String()),
	))
	return nil
}

// ── Persistence hooks ───────────────────────────────

// OnCheckpointCompleted implements ext.CheckpointCompleted.
func (m *MetricsExtension) OnCheckpointCompleted(ctx context.Context, records int, took time.Duration) error {
	m.checkpointRecords.Record(ctx, int64(records))
	m.checkpointDuration.Record(ctx, took.Seconds())
	return nil
}

// OnRecordResumed implements ext.RecordResumed.
func (m *MetricsExtension) OnRecordResumed(ctx context.Context, rec *request.Record) error {
	m.recordsResumed.Add(ctx, 1, kindAttr(rec))
	return nil
}
