// Package telemetry defines the engine's Prometheus metrics: bounded-label
// histograms, counters and gauges recording turn timing, active source
// count, loader queue depth, and fade/command outcomes. Grounded directly
// on the teacher's internal/api/observability.go metric set and promauto
// registration style, retargeted from game-tick/render/websocket metrics
// to the music engine's own turn/loader/fade metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sms_turn_duration_seconds",
		Help:    "Time spent in one TurnHandle call",
		Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05},
	})

	activeSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sms_active_sources",
		Help: "Current number of mixing active sources",
	})

	loaderPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sms_loader_pending_tasks",
		Help: "Current number of in-flight loader decode tasks",
	})

	transportQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sms_transport_queue_batches",
		Help: "Batches drained from the command transport in the last turn",
	})

	// fadeCompletionsTotal uses a bounded label set: "flow" or "mixcontrol".
	fadeCompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_fade_completions_total",
		Help: "Fades that reached their target gain",
	}, []string{"kind"})

	commandWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sms_command_warnings_total",
		Help: "Commands or plays that referenced an unknown name or failed to open",
	})

	droppedCommandsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sms_dropped_commands_total",
		Help: "Commands dropped rather than queued (always zero: the transport grows instead of dropping)",
	})
)

// RecordTurn observes one TurnHandle's wall-clock duration, in seconds.
func RecordTurn(seconds float64) {
	turnDuration.Observe(seconds)
}

// SetActiveSources updates the active-source gauge.
func SetActiveSources(n int) {
	activeSources.Set(float64(n))
}

// SetLoaderPending updates the in-flight loader task gauge.
func SetLoaderPending(n int) {
	loaderPending.Set(float64(n))
}

// SetTransportQueueDepth records how many batches the last drain consumed.
func SetTransportQueueDepth(n int) {
	transportQueueDepth.Set(float64(n))
}

// RecordFadeCompletion increments the completion counter for kind ("flow"
// or "mixcontrol").
func RecordFadeCompletion(kind string) {
	fadeCompletionsTotal.WithLabelValues(kind).Inc()
}

// RecordCommandWarning increments the warning counter. It is called for
// each scheduler warning about an unknown name and for each failed open in
// the loader.
func RecordCommandWarning() {
	commandWarningsTotal.Inc()
}

// RecordDroppedCommand exists for interface symmetry with a transport that
// could drop under memory pressure; SMS's queue always grows instead, so
// this should never be called outside tests exercising the metric itself.
func RecordDroppedCommand() {
	droppedCommandsTotal.Inc()
}
