package guard

import "github.com/prometheus/client_golang/prometheus"

var (
	metricTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memwatchd",
		Subsystem: "guard",
		Name:      "ticks_total",
		Help:      "Completed monitoring ticks",
	})

	metricProbeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memwatchd",
		Subsystem: "guard",
		Name:      "probe_failures_total",
		Help:      "Memory probe failures (stale sample reused)",
	})

	metricUsagePct = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "memwatchd",
		Subsystem: "guard",
		Name:      "memory_usage_percent",
		Help:      "Latest sampled memory usage percentage",
	}, []string{"category"})

	metricTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memwatchd",
		Subsystem: "guard",
		Name:      "threshold_transitions_total",
		Help:      "Severity tier transitions",
	}, []string{"category", "level", "direction"})

	metricAlertsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "memwatchd",
		Subsystem: "guard",
		Name:      "alerts_active",
		Help:      "Currently active alerts",
	})

	metricUnloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memwatchd",
		Subsystem: "guard",
		Name:      "model_unloads_total",
		Help:      "Model unload attempts by outcome",
	}, []string{"outcome"})

	metricCleanups = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memwatchd",
		Subsystem: "guard",
		Name:      "emergency_cleanups_total",
		Help:      "Emergency cleanup runs",
	})
)

func init() {
	prometheus.MustRegister(metricTicks, metricProbeFailures, metricUsagePct,
		metricTransitions, metricAlertsActive, metricUnloads, metricCleanups)
}
