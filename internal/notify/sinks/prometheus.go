package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/geo-report-client/internal/notify"
)

// PrometheusSink derives analysis lifecycle metrics from the notification
// stream: notifications by kind, analyses in flight and wall time from the
// started notification to the terminal one.
type PrometheusSink struct {
	notifications *prometheus.CounterVec
	inFlight      prometheus.Gauge
	wallTime      *prometheus.HistogramVec

	mu      sync.Mutex
	started map[string]time.Time
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "georeport_notifications_total",
			Help: "Analysis notifications delivered, partitioned by kind.",
		}, []string{"kind"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "georeport_analyses_in_flight",
			Help: "Analyses announced as started that have not yet finished.",
		}),
		wallTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "georeport_analysis_wall_seconds",
			Help:    "Time from the started notification to the terminal one.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"result"}),
		started: make(map[string]time.Time),
	}
	for _, collector := range []prometheus.Collector{s.notifications, s.inFlight, s.wallTime} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register notification collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range batch {
		s.notifications.WithLabelValues(string(n.Kind)).Inc()
		switch n.Kind {
		case notify.KindStarted:
			if _, ok := s.started[n.JobID]; !ok {
				s.started[n.JobID] = n.TS
				s.inFlight.Inc()
			}
		case notify.KindCompleted, notify.KindFailed:
			startedAt, ok := s.started[n.JobID]
			if !ok {
				continue
			}
			delete(s.started, n.JobID)
			s.inFlight.Dec()
			if d := n.TS.Sub(startedAt); d >= 0 {
				s.wallTime.WithLabelValues(string(n.Kind)).Observe(d.Seconds())
			}
		}
	}
	return nil
}

// Close implements notify.Sink; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
