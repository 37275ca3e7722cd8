package monitor

import (
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器。所有方法对 nil 接收者安全。
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标
	ordersSent        *prometheus.CounterVec
	ordersUnsubmitted prometheus.Counter
	activeOrders      prometheus.Gauge
	throttleWait      prometheus.Histogram

	// 仓位指标
	position prometheus.Gauge

	// 会话损益指标
	realizedPnL   prometheus.Gauge
	peakPnL       prometheus.Gauge
	drawdown      prometheus.Gauge
	winRate       prometheus.Gauge
	matchedTrades prometheus.Counter

	// 连接指标
	wsConnected      *prometheus.GaugeVec
	streamMessages   *prometheus.CounterVec
	streamRejections *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "oms",
		Subsystem: "trading",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}

	return &Monitor{
		registry: reg,

		ordersSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_sent_total",
			Help:      "已发送的下单/改单/撤单请求数",
		}, []string{"op"}),
		ordersUnsubmitted: counter("orders_unsubmitted_total", "因数量为零或仓位更新中而未发送的订单数"),
		activeOrders:      gauge("active_orders", "活跃订单数"),
		throttleWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "throttle_wait_seconds",
			Help:      "限流等待时长（秒）",
			Buckets:   []float64{0.0005, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		position: gauge("position", "签名净仓位"),

		realizedPnL:   gauge("realized_pnl", "FIFO 已实现损益（扣除手续费）"),
		peakPnL:       gauge("peak_pnl", "会话内最高已实现损益"),
		drawdown:      gauge("drawdown", "会话内最大回撤"),
		winRate:       gauge("win_rate", "胜率（无配对成交时为 NaN）"),
		matchedTrades: counter("matched_trades_total", "FIFO 配对次数"),

		wsConnected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_connected",
			Help:      "连接状态（1=已连接）",
		}, []string{"channel"}),
		streamMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_messages_total",
			Help:      "入站消息数",
		}, []string{"channel"}),
		streamRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_rejections_total",
			Help:      "协议拒绝次数",
		}, []string{"channel"}),
	}
}

// 订单相关方法
func (m *Monitor) RecordOrderSent(op string) {
	if m == nil {
		return
	}
	m.ordersSent.WithLabelValues(op).Inc()
}

func (m *Monitor) RecordOrderUnsubmitted() {
	if m == nil {
		return
	}
	m.ordersUnsubmitted.Inc()
}

func (m *Monitor) UpdateActiveOrders(n int) {
	if m == nil {
		return
	}
	m.activeOrders.Set(float64(n))
}

func (m *Monitor) ObserveThrottleWait(d time.Duration) {
	if m == nil {
		return
	}
	m.throttleWait.Observe(d.Seconds())
}

// 仓位相关方法
func (m *Monitor) UpdatePosition(value float64) {
	if m == nil {
		return
	}
	m.position.Set(value)
}

// UpdateSession 刷新会话损益；ok=false 表示尚无配对，胜率记为 NaN。
func (m *Monitor) UpdateSession(pnl, peak, drawdown, winRate float64, ok bool) {
	if m == nil {
		return
	}
	m.realizedPnL.Set(pnl)
	m.peakPnL.Set(peak)
	m.drawdown.Set(drawdown)
	if !ok {
		winRate = math.NaN()
	}
	m.winRate.Set(winRate)
}

func (m *Monitor) RecordMatches(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.matchedTrades.Add(float64(n))
}

// 连接相关方法
func (m *Monitor) SetConnected(channel string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.wsConnected.WithLabelValues(channel).Set(v)
}

func (m *Monitor) RecordMessage(channel string) {
	if m == nil {
		return
	}
	m.streamMessages.WithLabelValues(channel).Inc()
}

func (m *Monitor) RecordRejection(channel string) {
	if m == nil {
		return
	}
	m.streamRejections.WithLabelValues(channel).Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
