package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage pipeline.
type Metrics struct {
	IngestsTotal   *prometheus.CounterVec
	RetriagesTotal *prometheus.CounterVec
	TriagesTotal   *prometheus.CounterVec
	TriageAttempts prometheus.Histogram
	TriageDuration *prometheus.HistogramVec
	LLMCallsTotal  prometheus.Counter
	LLMTokensIn    prometheus.Counter
	LLMTokensOut   prometheus.Counter
	LLMDuration    prometheus.Histogram
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_ingests_total",
			Help: "Total log ingestions by source and triage outcome.",
		}, []string{"source", "outcome"}),
		RetriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_retriages_total",
			Help: "Total explicit re-triage requests by outcome.",
		}, []string{"outcome"}),
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_triages_total",
			Help: "Total triage runs by final outcome (success, exhausted, fatal).",
		}, []string{"outcome"}),
		TriageAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_triage_attempts",
			Help:    "LLM attempts per triage run.",
			Buckets: prometheus.LinearBuckets(1, 1, MaxAttempts),
		}),
		TriageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_triage_duration_seconds",
			Help:    "Duration of triage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s .. ~128s
		}, []string{"outcome"}),
		LLMCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_llm_calls_total",
			Help: "Total LLM provider calls.",
		}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. ~32s
		}),
	}

	reg.MustRegister(
		m.IngestsTotal,
		m.RetriagesTotal,
		m.TriagesTotal,
		m.TriageAttempts,
		m.TriageDuration,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
	)

	return m
}

// Hooks returns controller hooks that feed these metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnLLMCall: func(usage Usage, duration float64) {
			m.LLMCallsTotal.Inc()
			m.LLMTokensIn.Add(float64(usage.InputTokens))
			m.LLMTokensOut.Add(float64(usage.OutputTokens))
			m.LLMDuration.Observe(duration)
		},
		OnOutcome: func(outcome string, attempts int, duration float64) {
			m.TriagesTotal.WithLabelValues(outcome).Inc()
			m.TriageAttempts.Observe(float64(attempts))
			m.TriageDuration.WithLabelValues(outcome).Observe(duration)
		},
	}
}
