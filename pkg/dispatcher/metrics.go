// Copyright 2025 Certen Protocol

package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are the dispatcher's ambient prometheus instrumentation:
// counters for outcomes of a drain cycle plus a histogram over how long
// a cycle takes end to end (CA round trip and validator submit included).
//
// Each Dispatcher owns its own registry rather than registering onto
// prometheus.DefaultRegisterer, so constructing more than one Dispatcher
// in a test process never panics on duplicate registration.
type metrics struct {
	registry *prometheus.Registry

	batchesSubmitted prometheus.Counter
	backpressure     prometheus.Counter
	malformed        prometheus.Counter
	dropped          prometheus.Counter
	cycleDuration    prometheus.Histogram
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		batchesSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_dispatcher_batches_submitted_total",
			Help: "number of batches successfully submitted to the validator",
		}),
		backpressure: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_dispatcher_backpressure_total",
			Help: "number of drain cycles that ended in validator QUEUE_FULL",
		}),
		malformed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_dispatcher_malformed_messages_total",
			Help: "number of upstream messages rejected for failing to parse",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_dispatcher_invalid_signature_drops_total",
			Help: "number of requests dropped for an invalid client signature",
		}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_dispatcher_cycle_duration_seconds",
			Help:    "wall-clock duration of one drain-build-submit cycle",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
