// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus collectors for the clip pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExtractTotal tracks clip extraction outcomes.
	ExtractTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipd_extract_total",
		Help: "Total clip extraction attempts by result",
	}, []string{"result"})

	// ExtractDuration tracks wall-clock time of one extraction including verification.
	ExtractDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clipd_extract_duration_seconds",
		Help:    "Duration of clip extraction operations",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	// MergeTotal tracks merge job outcomes.
	MergeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipd_merge_total",
		Help: "Total merge jobs by result",
	}, []string{"result"})

	// MergeInputs tracks how many clips each merge job concatenates.
	MergeInputs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clipd_merge_inputs",
		Help:    "Number of input clips per merge job",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
	})

	// EngineInvocations tracks subprocess runs by command and result.
	EngineInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipd_engine_invocations_total",
		Help: "Total media engine subprocess invocations",
	}, []string{"command", "result"})

	// StreamRequestsTotal tracks streaming responses by status class.
	StreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipd_stream_requests_total",
		Help: "Total streaming requests by response status",
	}, []string{"status"})

	// StreamBytesTotal tracks bytes delivered to streaming clients.
	StreamBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipd_stream_bytes_total",
		Help: "Total bytes streamed to clients",
	})
)

// IncExtract records an extraction outcome.
func IncExtract(result string) {
	ExtractTotal.WithLabelValues(result).Inc()
}

// ObserveExtractDuration records the extraction wall-clock time.
func ObserveExtractDuration(d time.Duration) {
	ExtractDuration.Observe(d.Seconds())
}

// IncMerge records a merge outcome and its input count.
func IncMerge(result string, inputs int) {
	MergeTotal.WithLabelValues(result).Inc()
	MergeInputs.Observe(float64(inputs))
}

// IncEngineInvocation records one subprocess run.
func IncEngineInvocation(command string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	EngineInvocations.WithLabelValues(command, result).Inc()
}

// ObserveStream records a streaming response and its payload size.
func ObserveStream(status string, bytes int64) {
	StreamRequestsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		StreamBytesTotal.Add(float64(bytes))
	}
}
