package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	fitAuth "github.com/MrEthical07/fitAuth"
	"github.com/MrEthical07/fitAuth/metrics/export/internaldefs"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no metrics source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() fitAuth.MetricsSnapshot
	AuditDropped() uint64
}

type stateSource interface {
	State() fitAuth.State
}

type series struct {
	id    fitAuth.MetricID
	attrs metric.ObserveOption
}

type counterFamily struct {
	instrument metric.Int64ObservableCounter
	series     []series
}

type histogram struct {
	id      fitAuth.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes session lifecycle metrics through observable
// instruments. Labels become attributes.
type OTelExporter struct {
	source       metricsSource
	states       stateSource
	registration metric.Registration

	families     []counterFamily
	histograms   []histogram
	auditDropped metric.Int64ObservableCounter
	authState    metric.Int64ObservableGauge
}

// NewOTelExporter registers instruments on meter that read from client.
func NewOTelExporter(meter metric.Meter, client *fitAuth.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

// NewOTelExporterFromSource reads from any snapshot source. The auth state
// gauge is registered only when source also exposes State.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	e.states, _ = source.(stateSource)

	var observables []metric.Observable

	for _, fam := range internaldefs.CounterFamilies {
		ins, err := meter.Int64ObservableCounter(fam.Name, metric.WithDescription(fam.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", fam.Name, err)
		}
		cf := counterFamily{instrument: ins}
		for _, s := range fam.Series {
			cf.series = append(cf.series, series{id: s.ID, attrs: metric.WithAttributes(toAttrs(s.Labels)...)})
		}
		e.families = append(e.families, cf)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per le bound."))
		if err != nil {
			return nil, fmt.Errorf("create histogram buckets %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count %s: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, histogram{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events dropped because the queue was full."))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	if e.states != nil {
		g, err := meter.Int64ObservableGauge(internaldefs.StateGaugeName,
			metric.WithDescription("Current auth state; the active state is 1."))
		if err != nil {
			return nil, fmt.Errorf("create auth state gauge: %w", err)
		}
		e.authState = g
		observables = append(observables, g)
	}

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, fam := range e.families {
		for _, s := range fam.series {
			o.ObserveInt64(fam.instrument, int64(snapshot.Counters[s.id]), s.attrs)
		}
	}

	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i, le := range internaldefs.HistogramBounds {
			o.ObserveInt64(h.buckets, int64(cumulative[i]), metric.WithAttributes(attribute.String("le", le)))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	if e.states != nil {
		values := internaldefs.StateValues(e.states.State().Status())
		for i, s := range internaldefs.States {
			o.ObserveInt64(e.authState, values[i], metric.WithAttributes(attribute.String("state", s.String())))
		}
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

func toAttrs(labels []internaldefs.Label) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(labels))
	for _, l := range labels {
		out = append(out, attribute.String(l.Key, l.Value))
	}
	return out
}
