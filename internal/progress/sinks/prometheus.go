package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/hn-archiver/internal/progress"
)

// PrometheusSink exports the most recent run snapshot as gauges.
type PrometheusSink struct {
	succeeded prometheus.Gauge
	failed    prometheus.Gauge
	processed prometheus.Gauge
	total     prometheus.Gauge
	snapshots prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		succeeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hn_run_items_succeeded",
			Help: "Items inserted or updated by the current run.",
		}),
		failed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hn_run_items_failed",
			Help: "Items that failed to fetch, decode, or store in the current run.",
		}),
		processed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hn_run_items_processed",
			Help: "Outcomes handled by the current run.",
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hn_run_items_total",
			Help: "Item ids planned for the current run.",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hn_progress_snapshots_total",
			Help: "Progress snapshots consumed by the exporter.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.succeeded,
		s.failed,
		s.processed,
		s.total,
		s.snapshots,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume sets the gauges from the last snapshot in the batch. Snapshots are
// cumulative so earlier entries carry no extra information.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Snapshot) error {
	if len(batch) == 0 {
		return nil
	}
	s.snapshots.Add(float64(len(batch)))
	last := batch[len(batch)-1]
	s.succeeded.Set(float64(last.Succeeded))
	s.failed.Set(float64(last.Failed))
	s.processed.Set(float64(last.Processed))
	s.total.Set(float64(last.Total))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
