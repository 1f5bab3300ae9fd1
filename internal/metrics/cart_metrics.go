package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics содержит метрики корзин и обращений к внешнему API.
type CartMetrics struct {
	// Мутации корзины по типу действия
	mutations *prometheus.CounterVec
	// Уведомления, показанные пользователю
	notifications *prometheus.CounterVec
	// Ошибки загрузки/сохранения снапшотов
	snapshotFailures *prometheus.CounterVec
	// Корзины, поднятые в память
	loadedCarts prometheus.Gauge
	// Сумма корзины в момент оформления заказа
	checkoutTotal prometheus.Histogram

	// Запросы к внешнему REST API
	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
}

// NewCartMetrics создаёт метрики в глобальном регистре Prometheus.
func NewCartMetrics() *CartMetrics {
	return NewCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCartMetricsWithRegisterer создаёт метрики в указанном регистре (удобно для тестов).
func NewCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CartMetrics{
		mutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Total number of cart mutations grouped by action.",
		}, []string{"action"}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_notifications_total",
			Help: "Total number of user-facing notifications grouped by level.",
		}, []string{"level"}),
		snapshotFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_snapshot_failures_total",
			Help: "Total number of failed cart snapshot operations grouped by operation.",
		}, []string{"op"}),
		loadedCarts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_loaded_carts",
			Help: "Number of carts currently held in memory.",
		}),
		checkoutTotal: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_cart_total",
			Help:    "Cart total at the moment of checkout.",
			Buckets: prometheus.ExponentialBuckets(1000, 4, 8),
		}),
		backendRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_backend_requests_total",
			Help: "Total number of requests to the external REST API grouped by endpoint and result.",
		}, []string{"endpoint", "result"}),
		backendDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_backend_request_duration_seconds",
			Help:    "Duration of requests to the external REST API in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"endpoint"}),
	}
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordMutation увеличивает счётчик мутаций корзины.
func (m *CartMetrics) RecordMutation(action string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(action).Inc()
}

// RecordNotification увеличивает счётчик уведомлений.
func (m *CartMetrics) RecordNotification(level string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(level).Inc()
}

// RecordSnapshotFailure фиксирует ошибку load/save снапшота.
func (m *CartMetrics) RecordSnapshotFailure(op string) {
	if m == nil {
		return
	}
	m.snapshotFailures.WithLabelValues(op).Inc()
}

// SetLoadedCarts выставляет число корзин в памяти.
func (m *CartMetrics) SetLoadedCarts(n int) {
	if m == nil {
		return
	}
	m.loadedCarts.Set(float64(n))
}

// RecordCheckoutTotal записывает сумму оформленной корзины.
func (m *CartMetrics) RecordCheckoutTotal(total float64) {
	if m == nil {
		return
	}
	m.checkoutTotal.Observe(total)
}

// RecordBackendRequest записывает результат и длительность запроса к внешнему API.
func (m *CartMetrics) RecordBackendRequest(endpoint, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(endpoint, result).Inc()
	m.backendDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
