package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics метрики слоя команд и таблицы корреляции.
// Нулевой указатель допустим: все методы становятся no-op.
type Metrics struct {
	pending     prometheus.Gauge
	expired     *prometheus.CounterVec
	late        prometheus.Counter
	dropped     prometheus.Counter
	commands    *prometheus.CounterVec
	negotiation *prometheus.HistogramVec
}

// MetricsConfig конфигурация метрик
type MetricsConfig struct {
	// Namespace префикс Prometheus метрик
	Namespace string
	// Subsystem подсистема Prometheus метрик
	Subsystem string
	// Registerer куда регистрировать коллекторы, по умолчанию prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// DefaultMetricsConfig возвращает конфигурацию по умолчанию
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace:  "gb",
		Subsystem:  "session",
		Registerer: prometheus.DefaultRegisterer,
	}
}

// NewMetrics создает и регистрирует метрики
func NewMetrics(config *MetricsConfig) *Metrics {
	if config == nil {
		config = DefaultMetricsConfig()
	}
	reg := config.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "pending_waiters",
			Help:      "Number of registrations currently held by the correlation table",
		}),
		expired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "expired_total",
			Help:      "Registrations removed by the sweeper",
		}, []string{"kind"}),
		late: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "late_deliveries_total",
			Help:      "Responses that arrived after the exchange was deregistered",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "dropped_deliveries_total",
			Help:      "Responses dropped because the waiter channel was full",
		}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "commands_total",
			Help:      "Device commands by operation and result",
		}, []string{"op", "result"}),
		negotiation: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "invite_duration_seconds",
			Help:      "Duration of INVITE negotiations",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"op", "result"}),
	}
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) expire(kind string) {
	if m == nil {
		return
	}
	m.expired.WithLabelValues(kind).Inc()
}

func (m *Metrics) lateDelivery() {
	if m == nil {
		return
	}
	m.late.Inc()
}

func (m *Metrics) droppedDelivery() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// ObserveCommand учитывает завершение команды, result берется из класса ошибки
func (m *Metrics) ObserveCommand(op string, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(op, resultLabel(err)).Inc()
}

// ObserveNegotiation учитывает длительность согласования INVITE
func (m *Metrics) ObserveNegotiation(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.negotiation.WithLabelValues(op, resultLabel(err)).Observe(time.Since(started).Seconds())
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := KindOf(err); kind != "" {
		return kind.String()
	}
	return "error"
}
