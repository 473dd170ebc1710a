// MIT License
//
// Copyright (c) 2025 Mike Lane
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package metrics exposes Prometheus instrumentation for preview handling.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prpreview"

// Event results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Deployment results.
const (
	DeployCompleted = "completed"
	DeployFailed    = "failed"
	DeployTimedOut  = "timed_out"
	DeployError     = "error"
)

var watchBuckets = []float64{15, 30, 60, 120, 300, 600, 900, 1800}

// Recorder owns a registry and the preview collectors registered on it.
type Recorder struct {
	registry      *prometheus.Registry
	events        *prometheus.CounterVec
	deployments   *prometheus.CounterVec
	watchDuration prometheus.Histogram
	portsInUse    prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry, including the Go and
// process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Pull request events handled, by action and result",
		}, []string{"action", "result"}),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Watched deployments, by outcome",
		}, []string{"result"}),
		watchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "watch_duration_seconds",
			Help:      "Time spent waiting for a deployment tree to finish",
			Buckets:   watchBuckets,
		}),
		portsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ports_in_use",
			Help:      "Preview ports assigned in the last loaded database",
		}),
	}
	r.registry.MustRegister(
		r.events,
		r.deployments,
		r.watchDuration,
		r.portsInUse,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry backing r.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Event counts one handled pull request event.
func (r *Recorder) Event(action, result string) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(action, result).Inc()
}

// Deployment records the outcome and duration of one watch.
func (r *Recorder) Deployment(result string, took time.Duration) {
	if r == nil {
		return
	}
	r.deployments.WithLabelValues(result).Inc()
	r.watchDuration.Observe(took.Seconds())
}

// PortsInUse sets the number of assigned preview ports.
func (r *Recorder) PortsInUse(n int) {
	if r == nil {
		return
	}
	r.portsInUse.Set(float64(n))
}
