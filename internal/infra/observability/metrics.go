package observability

import (
	"math"
	"sort"
	"time"

	"github.com/boddenberg/vendas-bot-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const (
	metricTurnDuration    = "vendasbot_turn_duration_seconds"
	metricIntents         = "vendasbot_intents_total"
	metricActions         = "vendasbot_actions_total"
	metricExternalErrors  = "vendasbot_external_errors_total"
	metricCacheHits       = "vendasbot_cache_hits_total"
	metricCacheMisses     = "vendasbot_cache_misses_total"
	metricLLMFallback     = "vendasbot_llm_fallback_total"
	metricDealTransitions = "vendasbot_deal_transitions_total"

	fallbackAction = "FALLBACK"
)

// Metrics holds all Prometheus metrics of the sales bot.
// It satisfies the metrics interfaces of the chat service, the dispatcher,
// the intent classifier (cache observer) and the deal registry.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	turnDuration    *prometheus.HistogramVec
	intents         *prometheus.CounterVec
	actions         *prometheus.CounterVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	llmFallback     *prometheus.CounterVec
	dealTransitions *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricTurnDuration,
				Help:    "Duration of engine operations.",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		intents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricIntents,
				Help: "Classified intents by classification method.",
			},
			[]string{"method"},
		),
		actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricActions,
				Help: "Decided actions by action code.",
			},
			[]string{"action"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricExternalErrors,
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricCacheHits,
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricCacheMisses,
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		llmFallback: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricLLMFallback,
				Help: "Stylistic turns sent to the text generator, by outcome.",
			},
			[]string{"outcome"},
		),
		dealTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricDealTransitions,
				Help: "Deal status transitions by target status.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.turnDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrIntent counts one classified turn by method (pattern, embedding, context...).
func (m *Metrics) IncrIntent(method string) {
	m.intents.WithLabelValues(method).Inc()
}

// IncrAction counts one decided action.
func (m *Metrics) IncrAction(action string) {
	m.actions.WithLabelValues(action).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrLLMFallback counts a text-generator attempt outcome ("generated" or "template").
func (m *Metrics) IncrLLMFallback(outcome string) {
	m.llmFallback.WithLabelValues(outcome).Inc()
}

// RecordDealTransition counts a deal entering status.
func (m *Metrics) RecordDealTransition(status string) {
	m.dealTransitions.WithLabelValues(status).Inc()
}

// GetEngineSnapshot returns a snapshot suitable for GET /v1/metrics/engine.
func (m *Metrics) GetEngineSnapshot() *domain.EngineMetrics {
	families := m.gather()

	intents := counterValues(families[metricIntents], "method")
	actions := counterValues(families[metricActions], "action")
	hits := sum(counterValues(families[metricCacheHits], "cache"))
	misses := sum(counterValues(families[metricCacheMisses], "cache"))

	totalTurns := sum(intents)
	fallbackRate := float64(0)
	if totalTurns > 0 {
		fallbackRate = getCounterValue(m.actions, fallbackAction) / float64(totalTurns)
	}
	cacheHitRate := float64(0)
	if hits+misses > 0 {
		cacheHitRate = float64(hits) / float64(hits+misses)
	}

	avg, p95 := histogramStats(families[metricTurnDuration], "handle_message")

	return &domain.EngineMetrics{
		TotalTurns:      totalTurns,
		AvgLatencyMs:    avg,
		P95LatencyMs:    p95,
		IntentsByMethod: intents,
		ActionsByCode:   actions,
		FallbackRate:    fallbackRate,
		LLMFallback:     counterValues(families[metricLLMFallback], "outcome"),
		ExternalErrors:  counterValues(families[metricExternalErrors], "service"),
		CacheHitRate:    cacheHitRate,
		DealTransitions: counterValues(families[metricDealTransitions], "status"),
		Period:          "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

func (m *Metrics) gather() map[string]*dto.MetricFamily {
	out := make(map[string]*dto.MetricFamily)
	families, err := m.Registry.Gather()
	if err != nil {
		return out
	}
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

// counterValues flattens a counter family into label value -> count.
func counterValues(f *dto.MetricFamily, label string) map[string]int64 {
	out := make(map[string]int64)
	if f == nil {
		return out
	}
	for _, metric := range f.GetMetric() {
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] += int64(metric.GetCounter().GetValue())
			}
		}
	}
	return out
}

func sum(values map[string]int64) int64 {
	var total int64
	for _, v := range values {
		total += v
	}
	return total
}

// histogramStats returns the mean and an upper-bound p95 (bucket edge), in ms.
func histogramStats(f *dto.MetricFamily, operation string) (avgMs, p95Ms float64) {
	if f == nil {
		return 0, 0
	}
	for _, metric := range f.GetMetric() {
		if !hasLabel(metric, "operation", operation) {
			continue
		}
		h := metric.GetHistogram()
		count := h.GetSampleCount()
		if count == 0 {
			return 0, 0
		}
		avgMs = h.GetSampleSum() / float64(count) * 1000

		buckets := h.GetBucket()
		sort.Slice(buckets, func(i, j int) bool { return buckets[i].GetUpperBound() < buckets[j].GetUpperBound() })
		target := uint64(math.Ceil(float64(count) * 0.95))
		p95Ms = math.Inf(1)
		for _, b := range buckets {
			if b.GetCumulativeCount() >= target {
				p95Ms = b.GetUpperBound() * 1000
				break
			}
		}
		if math.IsInf(p95Ms, 1) && len(buckets) > 0 {
			p95Ms = buckets[len(buckets)-1].GetUpperBound() * 1000
		}
		return avgMs, p95Ms
	}
	return 0, 0
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}
