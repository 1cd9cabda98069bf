package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
}

// histogramGauges reports one histogram as cumulative bucket counts keyed by
// an "le" attribute, plus a total count.
type histogramGauges struct {
	id      authcore.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes engine snapshots through asynchronous instruments.
// Values are read once per collection in a single callback.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     map[authcore.MetricID]metric.Int64ObservableCounter
	histograms   []histogramGauges
	bucketAttrs  []metric.ObserveOption
}

func NewExporter(meter metric.Meter, engine *authcore.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	switch {
	case meter == nil:
		return nil, ErrNilMeter
	case source == nil:
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[authcore.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	for i := 0; i <= len(internaldefs.HistogramUpperBounds); i++ {
		e.bucketAttrs = append(e.bucketAttrs, metric.WithAttributes(attribute.String("le", internaldefs.BucketLabel(i))))
	}

	var observables []metric.Observable
	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = c
		observables = append(observables, c)
	}
	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."),
			metric.WithUnit("{observation}"))
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, histogramGauges{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.id]))
		for i, v := range cumulative {
			o.ObserveInt64(h.buckets, int64(v), e.bucketAttrs[i])
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
