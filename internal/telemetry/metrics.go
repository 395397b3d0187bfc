package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration records request latency for every handled route.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "focusd",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

var FocusTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "focusd",
		Subsystem: "focus",
		Name:      "transitions_total",
		Help:      "Total number of focus state transitions by kind.",
	},
	[]string{"transition"},
)

var FocusActiveSessions = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "focusd",
		Subsystem: "focus",
		Name:      "active_sessions",
		Help:      "Current number of users with focus mode enabled.",
	},
)

var SchedulerJobsScheduledTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "focusd",
		Subsystem: "scheduler",
		Name:      "jobs_scheduled_total",
		Help:      "Total number of deferred jobs scheduled, by kind.",
	},
	[]string{"kind"},
)

var SchedulerJobsFiredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "focusd",
		Subsystem: "scheduler",
		Name:      "jobs_fired_total",
		Help:      "Total number of deferred jobs fired, by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

var ChatStatusSideEffectsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "focusd",
		Subsystem: "chatprovider",
		Name:      "side_effects_total",
		Help:      "Total number of chat-provider status/DND side effects attempted, by provider and outcome.",
	},
	[]string{"provider", "outcome"},
)

var WebhookDeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "focusd",
		Subsystem: "notifier",
		Name:      "webhook_deliveries_total",
		Help:      "Total number of outbound webhook deliveries, by outcome.",
	},
	[]string{"outcome"},
)

var SSEClientsConnected = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "focusd",
		Subsystem: "notifier",
		Name:      "sse_clients_connected",
		Help:      "Current number of open SSE subscriptions.",
	},
)

// All returns every focusd-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		FocusTransitionsTotal,
		FocusActiveSessions,
		SchedulerJobsScheduledTotal,
		SchedulerJobsFiredTotal,
		ChatStatusSideEffectsTotal,
		WebhookDeliveriesTotal,
		SSEClientsConnected,
	}
}

// NewMetricsRegistry builds a Prometheus registry carrying the Go/process
// collectors plus every collector in extra.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
