package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 错误类型标签
const (
	ErrorKindValidation       = "validation"
	ErrorKindModelUnavailable = "model_unavailable"
	ErrorKindInternal         = "internal"
)

// Metrics 服务指标，每个实例使用独立的注册表
type Metrics struct {
	registry        *prometheus.Registry
	predictions     *prometheus.CounterVec
	errors          *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics 创建指标收集器，modelState 返回当前模型生命周期状态
func NewMetrics(modelState func() float64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "penguin_predictions_total",
			Help: "Successful predictions by predicted species.",
		}, []string{"species"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "penguin_prediction_errors_total",
			Help: "Rejected or failed prediction requests by kind.",
		}, []string{"kind"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "penguin_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.predictions,
		m.errors,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if modelState != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "penguin_model_state",
			Help: "Model lifecycle state: 0 unloaded, 1 loading, 2 ready, 3 failed.",
		}, modelState))
	}
	return m
}

// ObservePrediction 记录一次成功预测
func (m *Metrics) ObservePrediction(species string) {
	m.predictions.WithLabelValues(species).Inc()
}

// ObserveError 记录一次失败请求
func (m *Metrics) ObserveError(kind string) {
	m.errors.WithLabelValues(kind).Inc()
}

// ObserveRequest 记录请求耗时
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
