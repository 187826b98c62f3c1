package observability

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/docchat-backend/internal/platform/envutil"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests   *CounterVec
	apiLatency    *HistogramVec
	apiInflight   *GaugeVec
	providerCalls *CounterVec
	providerTime  *HistogramVec
	ingestRuns    *CounterVec
	ingestChunks  *CounterVec
	answerSources *HistogramVec
}

var (
	initMu   sync.Mutex
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when metrics are disabled.
// Every method is nil-safe.
func Current() *Metrics {
	initMu.Lock()
	defer initMu.Unlock()
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initMu.Lock()
	defer initMu.Unlock()
	if instance == nil {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	}
	return instance
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("docchat_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"docchat_api_request_duration_seconds",
			"API request latency in seconds by method/route.",
			[]string{"method", "route"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight:   NewGaugeVec("docchat_api_inflight_requests", "In-flight API requests.", nil),
		providerCalls: NewCounterVec("docchat_provider_calls_total", "Provider calls by provider/op/status.", []string{"provider", "op", "status"}),
		providerTime: NewHistogramVec(
			"docchat_provider_call_duration_seconds",
			"Provider call latency in seconds.",
			[]string{"provider", "op"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		),
		ingestRuns:    NewCounterVec("docchat_ingest_runs_total", "Ingestion runs by source/status.", []string{"source", "status"}),
		ingestChunks:  NewCounterVec("docchat_ingest_chunks_total", "Chunks upserted or pruned by ingestion.", []string{"action"}),
		answerSources: NewHistogramVec("docchat_answer_sources", "Sources retrieved per answer.", nil, []float64{0, 1, 2, 4, 8, 16}),
	}
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflight(delta float64) {
	if m == nil {
		return
	}
	m.apiInflight.Add(delta)
}

// ObserveProvider records one call to an embedding, chat, vector or storage
// provider.
func (m *Metrics) ObserveProvider(provider, op string, err error, dur time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.providerCalls.Inc(provider, op, status)
	m.providerTime.Observe(dur.Seconds(), provider, op)
}

func (m *Metrics) ObserveIngest(source string, err error, upserted, pruned int) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ingestRuns.Inc(strings.ToLower(source), status)
	if upserted > 0 {
		m.ingestChunks.Add(float64(upserted), "upserted")
	}
	if pruned > 0 {
		m.ingestChunks.Add(float64(pruned), "pruned")
	}
}

func (m *Metrics) ObserveAnswer(sources int) {
	if m == nil {
		return
	}
	m.answerSources.Observe(float64(sources))
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.providerCalls, m.providerTime,
		m.ingestRuns, m.ingestChunks,
		m.answerSources,
	}
	for _, wr := range writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}
