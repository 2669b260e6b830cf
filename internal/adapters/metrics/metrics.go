// Package metrics exports capture session events as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/ports"
)

const namespace = "hwv"

// Observer implements ports.SessionObserver on Prometheus collectors.
type Observer struct {
	Sessions       *prometheus.CounterVec
	SessionSeconds prometheus.Histogram
	BlocksWritten  prometheus.Counter
	BytesWritten   prometheus.Counter
	Phase          prometheus.Gauge
	Transitions    *prometheus.CounterVec
	LastOffset     prometheus.Gauge
}

var _ ports.SessionObserver = (*Observer)(nil)

// New registers the session collectors with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Observer{
		Sessions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total capture sessions by result",
			},
			[]string{"result"},
		),
		SessionSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Capture session wall time",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		BlocksWritten: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blocks_written_total",
				Help:      "Total audio blocks persisted to flash",
			},
		),
		BytesWritten: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_written_total",
				Help:      "Total audio bytes persisted to flash",
			},
		),
		Phase: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pipeline_phase",
				Help:      "Current pipeline phase as its ordinal, 0 is idle",
			},
		),
		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_transitions_total",
				Help:      "Total pipeline phase transitions by target phase",
			},
			[]string{"phase"},
		),
		LastOffset: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_write_offset_bytes",
				Help:      "Flash offset of the most recent block write",
			},
		),
	}
}

// OnPhaseChange implements ports.SessionObserver.
func (o *Observer) OnPhaseChange(previous, current domain.Phase, reason string) {
	o.Phase.Set(float64(current))
	o.Transitions.WithLabelValues(current.String()).Inc()
}

// OnBlockWritten implements ports.SessionObserver.
func (o *Observer) OnBlockWritten(offset int64, size int) {
	o.BlocksWritten.Inc()
	o.BytesWritten.Add(float64(size))
	o.LastOffset.Set(float64(offset))
}

// OnSessionEnd implements ports.SessionObserver.
func (o *Observer) OnSessionEnd(iterations int, bytes int64, d time.Duration, err error) {
	o.Sessions.WithLabelValues(Result(err)).Inc()
	o.SessionSeconds.Observe(d.Seconds())
}

// Result classifies a session error into a metric label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrOutOfSpace):
		return "out_of_space"
	case errors.Is(err, domain.ErrVerification):
		return "verify_failed"
	case errors.Is(err, domain.ErrConfiguration):
		return "config_error"
	case errors.Is(err, domain.ErrResourceBusy):
		return "overrun"
	case errors.Is(err, domain.ErrDeviceNotReady):
		return "device_not_ready"
	case errors.Is(err, domain.ErrSessionInProgress):
		return "busy"
	default:
		return "io_error"
	}
}

// Multi fans session events out to several observers.
type Multi []ports.SessionObserver

// OnPhaseChange implements ports.SessionObserver.
func (m Multi) OnPhaseChange(previous, current domain.Phase, reason string) {
	for _, o := range m {
		o.OnPhaseChange(previous, current, reason)
	}
}

// OnBlockWritten implements ports.SessionObserver.
func (m Multi) OnBlockWritten(offset int64, size int) {
	for _, o := range m {
		o.OnBlockWritten(offset, size)
	}
}

// OnSessionEnd implements ports.SessionObserver.
func (m Multi) OnSessionEnd(iterations int, bytes int64, d time.Duration, err error) {
	for _, o := range m {
		o.OnSessionEnd(iterations, bytes, d, err)
	}
}
