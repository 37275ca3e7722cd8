package order

import (
	"context"

	"bybit-oms/gateway"
	"bybit-oms/infrastructure/logger"
	"bybit-oms/infrastructure/monitor"
	"bybit-oms/internal/exchange"
)

// OMSConfig 配置 OMS。
type OMSConfig struct {
	Symbol     string
	Category   string
	PrivateURL string
	TradeURL   string
	RecvWindow string
	Throttle   gateway.RateLimiter
	Exchange   exchange.Options // Logger/Monitor 为空时沿用本配置的值
	Logger     *logger.Logger
	Monitor    *monitor.Monitor
}

// OMS 把订单状态引擎接到三条连接上：订单流、快速成交流（均在私有地址上）与 trade 下单连接。
// 连接与下单共用同一个限流器。
type OMS struct {
	*Manager
	sup      *exchange.Supervisor
	throttle gateway.RateLimiter
}

func NewOMS(cfg OMSConfig) *OMS {
	if cfg.Throttle == nil {
		cfg.Throttle = gateway.NewThrottle(gateway.DefaultAPIRate)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.PrivateURL == "" {
		cfg.PrivateURL = gateway.DefaultPrivateURL
	}
	if cfg.TradeURL == "" {
		cfg.TradeURL = gateway.DefaultTradeURL
	}
	opts := cfg.Exchange
	if opts.Logger == nil {
		opts.Logger = cfg.Logger.Named("oms").Logger
	}
	if opts.Monitor == nil {
		opts.Monitor = cfg.Monitor
	}

	o := &OMS{throttle: cfg.Throttle}
	o.Manager = NewManager(nil, Config{
		Symbol:     cfg.Symbol,
		Category:   cfg.Category,
		RecvWindow: cfg.RecvWindow,
		Throttle:   cfg.Throttle,
		Logger:     cfg.Logger,
		Monitor:    cfg.Monitor,
	})
	o.sup = exchange.NewSupervisor(opts,
		exchange.Channel{Name: OrderChannel, URL: cfg.PrivateURL, Topics: []string{gateway.OrderTopic}, Handler: o.HandleOrders},
		exchange.Channel{Name: ExecutionChannel, URL: cfg.PrivateURL, Topics: []string{gateway.ExecutionTopic(cfg.Category)}, Handler: o.HandleExecutions},
		exchange.Channel{Name: TradeChannel, URL: cfg.TradeURL, Handler: o.HandleTrade},
	)
	o.gw = o.sup
	return o
}

// Connect 经限流后建立全部连接。
func (o *OMS) Connect(ctx context.Context) error {
	o.throttle.Wait()
	return o.sup.Connect(ctx)
}

// Reconnect 断开全部连接后重新 Connect。
func (o *OMS) Reconnect(ctx context.Context) error {
	o.sup.Kill()
	return o.Connect(ctx)
}

// Kill 关闭全部连接并等待后台 goroutine 退出。
func (o *OMS) Kill() { o.sup.Kill() }

// SetFatalErrorHandler 设置协议拒绝回调。
func (o *OMS) SetFatalErrorHandler(fn func(error)) { o.sup.SetFatalErrorHandler(fn) }

// Connected 报告指定连接是否存活。
func (o *OMS) Connected(channel string) bool { return o.sup.Connected(channel) }

// Err 返回指定连接最近一次的终止原因。
func (o *OMS) Err(channel string) error { return o.sup.Err(channel) }
