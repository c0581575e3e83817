package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

const storageScopeName = "github.com/vigilops/vigil/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in vigil.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("vigil.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("vigil.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("vigil.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func idAttr(key, id string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(key, id)}
}

// ── Activities ──────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateActivity(ctx context.Context, act *types.Activity) error {
	attrs := []attribute.KeyValue{attribute.String("vigil.activity.type", string(act.Type))}
	ctx, span, t := s.op(ctx, "CreateActivity", attrs...)
	err := s.inner.CreateActivity(ctx, act)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetActivity(ctx context.Context, id string) (*types.Activity, error) {
	attrs := idAttr("vigil.activity.id", id)
	ctx, span, t := s.op(ctx, "GetActivity", attrs...)
	v, err := s.inner.GetActivity(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateActivity(ctx context.Context, act *types.Activity) error {
	attrs := idAttr("vigil.activity.id", act.ID)
	ctx, span, t := s.op(ctx, "UpdateActivity", attrs...)
	err := s.inner.UpdateActivity(ctx, act)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListActivities(ctx context.Context, filter types.ActivityFilter, opts types.ListOptions) ([]*types.Activity, error) {
	ctx, span, t := s.op(ctx, "ListActivities")
	v, err := s.inner.ListActivities(ctx, filter, opts)
	if err == nil {
		span.SetAttributes(attribute.Int("vigil.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Incidents ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateIncident(ctx context.Context, inc *types.Incident) error {
	attrs := []attribute.KeyValue{attribute.String("vigil.incident.type", string(inc.Type))}
	ctx, span, t := s.op(ctx, "CreateIncident", attrs...)
	err := s.inner.CreateIncident(ctx, inc)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetIncident(ctx context.Context, id string) (*types.Incident, error) {
	attrs := idAttr("vigil.incident.id", id)
	ctx, span, t := s.op(ctx, "GetIncident", attrs...)
	v, err := s.inner.GetIncident(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateIncident(ctx context.Context, inc *types.Incident) error {
	attrs := idAttr("vigil.incident.id", inc.ID)
	ctx, span, t := s.op(ctx, "UpdateIncident", attrs...)
	err := s.inner.UpdateIncident(ctx, inc)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListIncidents(ctx context.Context, filter types.IncidentFilter, opts types.ListOptions) ([]*types.Incident, error) {
	ctx, span, t := s.op(ctx, "ListIncidents")
	v, err := s.inner.ListIncidents(ctx, filter, opts)
	if err == nil {
		span.SetAttributes(attribute.Int("vigil.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Cases ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateCase(ctx context.Context, c *types.Case) error {
	attrs := []attribute.KeyValue{attribute.String("vigil.case.type", string(c.Type))}
	ctx, span, t := s.op(ctx, "CreateCase", attrs...)
	err := s.inner.CreateCase(ctx, c)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetCase(ctx context.Context, id string) (*types.Case, error) {
	attrs := idAttr("vigil.case.id", id)
	ctx, span, t := s.op(ctx, "GetCase", attrs...)
	v, err := s.inner.GetCase(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateCase(ctx context.Context, c *types.Case) error {
	attrs := idAttr("vigil.case.id", c.ID)
	ctx, span, t := s.op(ctx, "UpdateCase", attrs...)
	err := s.inner.UpdateCase(ctx, c)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListCases(ctx context.Context, filter types.CaseFilter, opts types.ListOptions) ([]*types.Case, error) {
	ctx, span, t := s.op(ctx, "ListCases")
	v, err := s.inner.ListCases(ctx, filter, opts)
	if err == nil {
		span.SetAttributes(attribute.Int("vigil.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) NextCaseNumber(ctx context.Context, year int) (int, error) {
	attrs := []attribute.KeyValue{attribute.Int("vigil.case.year", year)}
	ctx, span, t := s.op(ctx, "NextCaseNumber", attrs...)
	v, err := s.inner.NextCaseNumber(ctx, year)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Evidence ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateEvidence(ctx context.Context, item *types.EvidenceItem) error {
	attrs := []attribute.KeyValue{attribute.String("vigil.evidence.type", string(item.Type))}
	ctx, span, t := s.op(ctx, "CreateEvidence", attrs...)
	err := s.inner.CreateEvidence(ctx, item)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetEvidence(ctx context.Context, id string) (*types.EvidenceItem, error) {
	attrs := idAttr("vigil.evidence.id", id)
	ctx, span, t := s.op(ctx, "GetEvidence", attrs...)
	v, err := s.inner.GetEvidence(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateEvidence(ctx context.Context, item *types.EvidenceItem) error {
	attrs := idAttr("vigil.evidence.id", item.ID)
	ctx, span, t := s.op(ctx, "UpdateEvidence", attrs...)
	err := s.inner.UpdateEvidence(ctx, item)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListEvidence(ctx context.Context, filter types.EvidenceFilter, opts types.ListOptions) ([]*types.EvidenceItem, error) {
	ctx, span, t := s.op(ctx, "ListEvidence")
	v, err := s.inner.ListEvidence(ctx, filter, opts)
	if err == nil {
		span.SetAttributes(attribute.Int("vigil.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Transactions ─────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err)
	return err
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span, t := s.op(ctx, "Ping")
	err := s.inner.Ping(ctx)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
