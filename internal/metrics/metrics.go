// Package metrics counts visits, ingested signals and HTTP traffic.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Signal ingestion outcomes.
const (
	OutcomeAccepted   = "accepted"
	OutcomeRejected   = "rejected"
	OutcomeUnknownKey = "unknown_key"
	OutcomeAbsent     = "absent"
)

// Finalize outcomes.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Recorder receives events from ingestion and transport. Calls happen inline on request paths.
type Recorder interface {
	VisitCreated()
	SignalIngested(kind, outcome string)
	VisitFinalized(outcome string)
	StoreError(op string)
	ObserveHTTP(route, method string, status int, elapsed time.Duration)
}

type noopRecorder struct{}

// Noop returns a recorder that discards everything.
func Noop() Recorder {
	return noopRecorder{}
}

func (noopRecorder) VisitCreated()                                  {}
func (noopRecorder) SignalIngested(string, string)                  {}
func (noopRecorder) VisitFinalized(string)                          {}
func (noopRecorder) StoreError(string)                              {}
func (noopRecorder) ObserveHTTP(string, string, int, time.Duration) {}

// OrNoop lets components accept a nil recorder.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop()
	}
	return r
}

type Prometheus struct {
	visitsCreated  prometheus.Counter
	signals        *prometheus.CounterVec
	finalized      *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	requestSeconds *prometheus.HistogramVec
}

// NewPrometheus registers the collectors with reg, reusing any already registered under the same
// names.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var (
		p   Prometheus
		err error
	)
	if p.visitsCreated, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nojsfp_visits_created_total",
		Help: "Visits created by page renders.",
	})); err != nil {
		return nil, err
	}
	if p.signals, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nojsfp_signals_total",
		Help: "Signal ingestion attempts by source kind and outcome.",
	}, []string{"kind", "outcome"})); err != nil {
		return nil, err
	}
	if p.finalized, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nojsfp_visit_finalizations_total",
		Help: "Finalize and read requests by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if p.storeErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nojsfp_store_errors_total",
		Help: "Visit store failures by operation.",
	}, []string{"op"})); err != nil {
		return nil, err
	}
	if p.requestSeconds, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nojsfp_http_request_duration_seconds",
		Help:    "HTTP request latency by route template.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})); err != nil {
		return nil, err
	}
	return &p, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (p *Prometheus) VisitCreated() {
	p.visitsCreated.Inc()
}

func (p *Prometheus) SignalIngested(kind, outcome string) {
	p.signals.WithLabelValues(kind, outcome).Inc()
}

func (p *Prometheus) VisitFinalized(outcome string) {
	p.finalized.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) StoreError(op string) {
	p.storeErrors.WithLabelValues(op).Inc()
}

func (p *Prometheus) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	p.requestSeconds.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
