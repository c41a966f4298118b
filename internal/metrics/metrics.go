// Package metrics exports upload telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "media"

// Observer captures telemetry for dispatched uploads.
type Observer interface {
	RecordUpload(category, strategy string, sizeBytes int, duration time.Duration, success bool)
}

// Uploads holds the upload collectors.
type Uploads struct {
	total    *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewUploads registers the upload collectors on reg (the default registerer when nil).
func NewUploads(reg prometheus.Registerer) (*Uploads, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	u := &Uploads{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Dispatched uploads by category, backend and outcome.",
		}, []string{"category", "strategy", "outcome"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes successfully stored, by category.",
		}, []string{"category"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Backend upload latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
	}

	var err error
	if u.total, err = register(reg, u.total); err != nil {
		return nil, err
	}
	if u.bytes, err = register(reg, u.bytes); err != nil {
		return nil, err
	}
	if u.duration, err = register(reg, u.duration); err != nil {
		return nil, err
	}
	return u, nil
}

// RecordUpload counts one dispatched upload.
func (u *Uploads) RecordUpload(category, strategy string, sizeBytes int, duration time.Duration, success bool) {
	if u == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
		u.bytes.WithLabelValues(category).Add(float64(sizeBytes))
	}
	u.total.WithLabelValues(category, strategy, outcome).Inc()
	u.duration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register upload metric: %w", err)
	}
	return c, nil
}

// Nop discards all telemetry.
type Nop struct{}

func (Nop) RecordUpload(string, string, int, time.Duration, bool) {}
