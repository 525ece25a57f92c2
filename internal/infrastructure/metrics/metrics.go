package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "bastion"
	subsystem = "chat_api"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint", "status"},
	)

	ChatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chat_turns_total",
			Help:      "Chat turns by branch and outcome",
		},
		[]string{"branch", "outcome"},
	)

	TokensPromptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tokens_prompt_total",
			Help:      "Total prompt tokens consumed",
		},
		[]string{"model", "provider"},
	)

	TokensCompletionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tokens_completion_total",
			Help:      "Total completion tokens generated",
		},
		[]string{"model", "provider"},
	)

	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "provider_errors_total",
			Help:      "Total provider call failures",
		},
		[]string{"provider", "operation"},
	)

	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "llm_duration_seconds",
			Help:      "Model call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"model", "provider", "operation"},
	)

	FirstTokenDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "first_token_seconds",
			Help:      "Time to first streamed part",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"model", "provider"},
	)

	ActiveStreams = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_streams",
			Help:      "Currently active chat streams",
		},
		[]string{"model"},
	)

	ContextTruncationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "context_truncations_total",
			Help:      "Requests whose history was truncated to fit the context window",
		},
		[]string{"model"},
	)

	BackgroundFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "background_failures_total",
			Help:      "Isolated failures of title generation, related questions and persistence",
		},
		[]string{"task"},
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "payments_total",
			Help:      "Payment lifecycle events by source and status",
		},
		[]string{"source", "status"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "webhook_events_total",
			Help:      "Payment gateway webhook events",
		},
		[]string{"event", "outcome"},
	)
)

// RecordRequest records an HTTP request with its labels
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint, status).Observe(durationSec)
}

// RecordTokens records token usage for one model call
func RecordTokens(model, provider string, promptTokens, completionTokens int64) {
	if promptTokens > 0 {
		TokensPromptTotal.WithLabelValues(model, provider).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		TokensCompletionTotal.WithLabelValues(model, provider).Add(float64(completionTokens))
	}
}

func RecordLLMDuration(model, provider, operation string, durationSec float64) {
	LLMDuration.WithLabelValues(model, provider, operation).Observe(durationSec)
}

func RecordFirstToken(model, provider string, durationSec float64) {
	FirstTokenDuration.WithLabelValues(model, provider).Observe(durationSec)
}

func RecordProviderError(provider, operation string) {
	ProviderErrorsTotal.WithLabelValues(provider, operation).Inc()
}

func RecordChatTurn(branch, outcome string) {
	ChatTurnsTotal.WithLabelValues(branch, outcome).Inc()
}

func RecordTruncation(model string) {
	ContextTruncationsTotal.WithLabelValues(model).Inc()
}

// RecordBackgroundFailure counts a failure that was isolated from the response.
func RecordBackgroundFailure(task string) {
	BackgroundFailuresTotal.WithLabelValues(task).Inc()
}

func IncrementActiveStreams(model string) {
	ActiveStreams.WithLabelValues(model).Inc()
}

func DecrementActiveStreams(model string) {
	ActiveStreams.WithLabelValues(model).Dec()
}

func RecordPayment(source, status string) {
	PaymentsTotal.WithLabelValues(source, status).Inc()
}

func RecordWebhookEvent(event, outcome string) {
	if event == "" {
		event = "unknown"
	}
	WebhookEventsTotal.WithLabelValues(event, outcome).Inc()
}
