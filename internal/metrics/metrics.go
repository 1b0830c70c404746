// Package metrics registra as métricas Prometheus da ingestão e da distribuição.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ofertas"

// Metrics agrupa os coletores do bot
type Metrics struct {
	registry *prometheus.Registry

	FragmentsTotal   *prometheus.CounterVec
	ProductsStored   *prometheus.CounterVec
	IngestDuration   *prometheus.HistogramVec
	SendsTotal       *prometheus.CounterVec
	SendDuration     *prometheus.HistogramVec
	PassesTotal      *prometheus.CounterVec
	PassDuration     prometheus.Histogram
	DealsDistributed prometheus.Counter
	PendingProducts  prometheus.Gauge
}

// New cria os coletores em um registro próprio
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.FragmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fragments_total",
		Help:      "Fragmentos de anúncio lidos, por fonte e resultado (stored, skipped, rejected, dropped).",
	}, []string{"source", "result"})

	m.ProductsStored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "products_stored_total",
		Help:      "Produtos gravados, separados entre inseridos e atualizados.",
	}, []string{"operation"})

	m.IngestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_duration_seconds",
		Help:      "Duração da coleta de cada fonte.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"source"})

	m.SendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channel_sends_total",
		Help:      "Envios por canal e resultado.",
	}, []string{"channel", "result"})

	m.SendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "channel_send_duration_seconds",
		Help:      "Duração dos envios por canal.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel"})

	m.PassesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "distribution_passes_total",
		Help:      "Passadas de distribuição por resultado (ok, abandoned, skipped, error).",
	}, []string{"result"})

	m.PassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "distribution_pass_duration_seconds",
		Help:      "Duração das passadas de distribuição.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	m.DealsDistributed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deals_distributed_total",
		Help:      "Ofertas registradas no histórico.",
	})

	m.PendingProducts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_products",
		Help:      "Produtos aguardando distribuição na última consulta.",
	})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FragmentsTotal,
		m.ProductsStored,
		m.IngestDuration,
		m.SendsTotal,
		m.SendDuration,
		m.PassesTotal,
		m.PassDuration,
		m.DealsDistributed,
		m.PendingProducts,
	)
	return m
}

// Handler expõe o endpoint /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSend(channel string, delivered bool, elapsed time.Duration) {
	result := "failed"
	if delivered {
		result = "delivered"
	}
	m.SendsTotal.WithLabelValues(channel, result).Inc()
	m.SendDuration.WithLabelValues(channel).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePass(result string, distributed int, elapsed time.Duration) {
	m.PassesTotal.WithLabelValues(result).Inc()
	m.DealsDistributed.Add(float64(distributed))
	if result != "skipped" {
		m.PassDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveFragment(source, result string) {
	m.FragmentsTotal.WithLabelValues(source, result).Inc()
}

func (m *Metrics) ObserveStored(inserted bool) {
	op := "updated"
	if inserted {
		op = "inserted"
	}
	m.ProductsStored.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveIngest(source string, elapsed time.Duration) {
	m.IngestDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// SetPending atualiza o total de produtos pendentes
func (m *Metrics) SetPending(n int) {
	m.PendingProducts.Set(float64(n))
}
