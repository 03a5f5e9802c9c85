package observability

import (
	"bytes"
	"net/http"
	"strconv"
	"time"
)

// Metrics holds the service's request, stage and LLM instruments. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	stageLatency *HistogramVec
	stageResults *CounterVec

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmRetries  *CounterVec

	all []collector
}

func NewMetrics() *Metrics {
	m := &Metrics{
		apiRequests: NewCounterVec("courselens_http_requests_total", "HTTP requests by method, route and status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec("courselens_http_request_duration_seconds", "HTTP request latency.", []string{"method", "route"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}),
		apiInflight: NewGauge("courselens_http_inflight_requests", "HTTP requests currently being served."),

		stageLatency: NewHistogramVec("courselens_pipeline_stage_duration_seconds", "Analysis pipeline stage latency.", []string{"stage"},
			[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60}),
		stageResults: NewCounterVec("courselens_pipeline_stage_total", "Analysis pipeline stage outcomes.", []string{"stage", "status"}),

		llmRequests: NewCounterVec("courselens_llm_requests_total", "Narrative generation calls by engine and status.", []string{"engine", "status"}),
		llmLatency: NewHistogramVec("courselens_llm_request_duration_seconds", "Narrative generation latency.", []string{"engine"},
			[]float64{0.5, 1, 2.5, 5, 10, 20, 40, 90}),
		llmRetries: NewCounterVec("courselens_llm_structured_output_fallbacks_total", "Retries without structured output after a provider rejection.", []string{"engine"}),
	}
	m.all = []collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.stageLatency, m.stageResults,
		m.llmRequests, m.llmLatency, m.llmRetries,
	}
	return m
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

// ObserveStage records one pipeline stage; status is "ok" or "error".
func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.Observe(dur.Seconds(), stage)
	m.stageResults.Inc(stage, status)
}

func (m *Metrics) StageCount(stage, status string) float64 {
	if m == nil {
		return 0
	}
	return m.stageResults.Value(stage, status)
}

func (m *Metrics) ObserveLLMRequest(engine, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(engine, status)
	m.llmLatency.Observe(dur.Seconds(), engine)
}

func (m *Metrics) IncStructuredOutputFallback(engine string) {
	if m != nil {
		m.llmRetries.Inc(engine)
	}
}

func (m *Metrics) LLMRequestCount(engine, status string) float64 {
	if m == nil {
		return 0
	}
	return m.llmRequests.Value(engine, status)
}

// WriteHTTP serves the registry in Prometheus text format.
func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if m != nil {
		for _, c := range m.all {
			if err := c.WritePrometheus(&buf); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
