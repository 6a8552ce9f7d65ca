package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bot pipeline
type Metrics struct {
	// Webhook metrics
	WebhookEvents *prometheus.CounterVec
	Commands      *prometheus.CounterVec

	// Live play metrics
	Moves        *prometheus.CounterVec
	MoveDuration prometheus.Histogram

	// Review pipeline metrics
	ReviewStageTasks    *prometheus.GaugeVec
	ReviewStageDuration *prometheus.HistogramVec
	Reviews             *prometheus.CounterVec

	// Engine metrics
	EngineCalls        *prometheus.CounterVec
	EngineCallDuration *prometheus.HistogramVec

	// LLM metrics
	LLMCalls        *prometheus.CounterVec
	LLMCallDuration prometheus.Histogram

	// Messaging metrics
	Messages *prometheus.CounterVec

	// Media metrics
	MediaRenders *prometheus.CounterVec

	// Dispatch metrics
	DispatchQueueDepth prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		WebhookEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tengen_webhook_events_total",
				Help: "Total webhook events received, by message type",
			},
			[]string{"type"}, // type: text, file, other
		),

		Commands: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tengen_commands_total",
				Help: "Total parsed commands, by command name",
			},
			[]string{"command"},
		),

		Moves: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tengen_moves_total",
				Help: "Total move attempts on live boards",
			},
			[]string{"color", "result"}, // result: ok, rejected, error
		),

		MoveDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tengen_move_duration_seconds",
				Help:    "End-to-end handling time of one move command",
				Buckets: prometheus.DefBuckets,
			},
		),

		ReviewStageTasks: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tengen_review_stage_tasks",
				Help: "Review tasks currently in each pipeline stage",
			},
			[]string{"stage"},
		),

		ReviewStageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tengen_review_stage_duration_seconds",
				Help:    "Time spent in each review pipeline stage",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
			},
			[]string{"stage"},
		),

		Reviews: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tengen_reviews_total",
				Help: "Total review tasks by final outcome",
			},
			[]string{"outcome"}, // outcome: complete, engine_failed, llm_failed, delivery_failed
		),

		EngineCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tengen_engine_calls_total",
				Help: "Total engine invocations",
			},
			[]string{"kind", "status"}, // kind: review, genmove, evaluate
		),

		EngineCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tengen_engine_call_duration_seconds",
				Help:    "Engine invocation latency",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900},
			},
			[]string{"kind"},
		),

		LLMCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tengen_llm_calls_total",
				Help: "Total LLM commentary calls",
			},
			[]string{"status"},
		),

		LLMCallDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tengen_llm_call_duration_seconds",
				Help:    "LLM commentary call latency",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		Messages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tengen_messages_total",
				Help: "Total platform message deliveries",
			},
			[]string{"channel", "status"}, // channel: reply, push
		),

		MediaRenders: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tengen_media_renders_total",
				Help: "Total media artifacts rendered",
			},
			[]string{"kind", "status"}, // kind: board, overview, chart, animation
		),

		DispatchQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tengen_dispatch_queue_depth",
				Help: "Jobs waiting in the local dispatch queue",
			},
		),
	}
}

// RecordWebhookEvent records one inbound webhook event
func (m *Metrics) RecordWebhookEvent(messageType string) {
	m.WebhookEvents.WithLabelValues(messageType).Inc()
}

// RecordCommand records a parsed command
func (m *Metrics) RecordCommand(command string) {
	m.Commands.WithLabelValues(command).Inc()
}

// RecordMove records a move attempt and its handling time
func (m *Metrics) RecordMove(color string, result string, seconds float64) {
	m.Moves.WithLabelValues(color, result).Inc()
	m.MoveDuration.Observe(seconds)
}

// EnterReviewStage moves a task into a pipeline stage
func (m *Metrics) EnterReviewStage(stage string) {
	m.ReviewStageTasks.WithLabelValues(stage).Inc()
}

// LeaveReviewStage moves a task out of a pipeline stage and records dwell time
func (m *Metrics) LeaveReviewStage(stage string, seconds float64) {
	m.ReviewStageTasks.WithLabelValues(stage).Dec()
	m.ReviewStageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordReviewOutcome records the terminal outcome of one review task
func (m *Metrics) RecordReviewOutcome(outcome string) {
	m.Reviews.WithLabelValues(outcome).Inc()
}

// RecordEngineCall records an engine invocation
func (m *Metrics) RecordEngineCall(kind string, err error, seconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EngineCalls.WithLabelValues(kind, status).Inc()
	m.EngineCallDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordLLMCall records an LLM invocation
func (m *Metrics) RecordLLMCall(err error, seconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.LLMCalls.WithLabelValues(status).Inc()
	m.LLMCallDuration.Observe(seconds)
}

// RecordMessage records one delivery attempt to the platform
func (m *Metrics) RecordMessage(channel string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Messages.WithLabelValues(channel, status).Inc()
}

// RecordMediaRender records one rendered artifact
func (m *Metrics) RecordMediaRender(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.MediaRenders.WithLabelValues(kind, status).Inc()
}

// SetDispatchQueueDepth updates the local dispatch queue gauge
func (m *Metrics) SetDispatchQueueDepth(depth int) {
	m.DispatchQueueDepth.Set(float64(depth))
}
