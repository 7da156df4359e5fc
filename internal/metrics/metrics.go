// Package metrics holds the OpenTelemetry instruments recorded by the index.
// Instruments come from the global meter provider unless one is supplied, so
// they are no-ops until the host installs a provider.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	EventsTotalName    = "lineage_events_total"
	EventDurationName  = "lineage_event_duration_seconds"
	ParseFailuresName  = "lineage_parse_failures_total"
	PromotionsName     = "lineage_promotions_total"
	ArtifactsName      = "lineage_artifacts_written_total"
	QueriesTotalName   = "lineage_queries_total"
	AttrEventKind      = "event.kind"
	AttrEventOutcome   = "event.outcome"
	AttrQueryTransport = "query.transport"
	meterScope         = "github.com/jward/lineage"
)

// Metrics records index activity.
type Metrics struct {
	events     metric.Int64Counter
	duration   metric.Float64Histogram
	parseFails metric.Int64Counter
	promotions metric.Int64Counter
	artifacts  metric.Int64Counter
	queries    metric.Int64Counter
}

// New creates the instruments on the global meter provider.
func New() (*Metrics, error) {
	return NewWithProvider(otel.GetMeterProvider())
}

// NewWithProvider creates the instruments on provider.
func NewWithProvider(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterScope)
	m := &Metrics{}
	var err error

	if m.events, err = meter.Int64Counter(EventsTotalName,
		metric.WithDescription("Change events processed")); err != nil {
		return nil, fmt.Errorf("metrics: events counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram(EventDurationName,
		metric.WithDescription("Time to process one change event"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("metrics: event duration histogram: %w", err)
	}
	if m.parseFails, err = meter.Int64Counter(ParseFailuresName,
		metric.WithDescription("Files that failed to parse")); err != nil {
		return nil, fmt.Errorf("metrics: parse failures counter: %w", err)
	}
	if m.promotions, err = meter.Int64Counter(PromotionsName,
		metric.WithDescription("Pending classes linked to a parent")); err != nil {
		return nil, fmt.Errorf("metrics: promotions counter: %w", err)
	}
	if m.artifacts, err = meter.Int64Counter(ArtifactsName,
		metric.WithDescription("Generated files rewritten")); err != nil {
		return nil, fmt.Errorf("metrics: artifacts counter: %w", err)
	}
	if m.queries, err = meter.Int64Counter(QueriesTotalName,
		metric.WithDescription("Chain queries served")); err != nil {
		return nil, fmt.Errorf("metrics: queries counter: %w", err)
	}
	return m, nil
}

// EventProcessed records one change event and how long it took.
func (m *Metrics) EventProcessed(ctx context.Context, kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrEventKind, kind),
		attribute.String(AttrEventOutcome, outcome),
	)
	m.events.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) ParseFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.parseFails.Add(ctx, 1)
}

func (m *Metrics) Promoted(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.promotions.Add(ctx, int64(n))
}

func (m *Metrics) ArtifactsWritten(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.artifacts.Add(ctx, int64(n))
}

func (m *Metrics) QueryServed(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.queries.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrQueryTransport, transport)))
}
