package container

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bybit-oms/config"
	"bybit-oms/gateway"
	"bybit-oms/infrastructure/alert"
	"bybit-oms/infrastructure/logger"
	"bybit-oms/infrastructure/monitor"
	"bybit-oms/internal/exchange"
	"bybit-oms/order"
	"bybit-oms/posttrade"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg *config.AppConfig

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager
	dialer  gateway.Dialer

	// 核心服务
	throttle *gateway.Throttle
	oms      *order.OMS
	session  *posttrade.Session

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(cfg), nil
}

// NewWithConfig 使用已加载的配置创建Container
func NewWithConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       &cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// SetDialer 替换连接拨号器（默认 gorilla/websocket），须在 Build 前调用
func (c *Container) SetDialer(d gateway.Dialer) { c.dialer = d }

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	c.buildCoreServices()
	c.registerLifecycleComponents()
	c.logger.Info("container built successfully", zap.String("symbol", c.cfg.Symbol), zap.String("category", c.cfg.Category))
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.monitor = monitor.New(monitor.DefaultConfig())
	c.alerts = alert.NewManager(time.Minute, alert.NewLogSink("log", c.logger.Named("alert").Logger))
	if c.dialer == nil {
		c.dialer = gateway.NewWSDialer()
	}
	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) exchangeOptions() exchange.Options {
	g := c.cfg.Gateway
	return exchange.Options{
		Credentials:  g,
		Dialer:       c.dialer,
		PingInterval: g.PingInterval(),
		AuthTimeout:  g.AuthTimeout(),
		AuthExpiry:   g.AuthExpiry(),
		Monitor:      c.monitor,
	}
}

func (c *Container) buildCoreServices() {
	g := c.cfg.Gateway
	c.throttle = gateway.NewThrottle(g.APIRate)
	c.throttle.SetWaitObserver(c.monitor.ObserveThrottleWait)

	c.oms = order.NewOMS(order.OMSConfig{
		Symbol:     c.cfg.Symbol,
		Category:   c.cfg.Category,
		PrivateURL: g.PrivateURL,
		TradeURL:   g.TradeURL,
		RecvWindow: g.RecvWindow(),
		Throttle:   c.throttle,
		Exchange:   c.exchangeOptions(),
		Logger:     c.logger,
		Monitor:    c.monitor,
	})
	sc := c.cfg.Constraints
	c.oms.SetConstraints(order.SymbolConstraints{
		TickSize:    decimal.NewFromFloat(sc.TickSize),
		StepSize:    decimal.NewFromFloat(sc.StepSize),
		MinQty:      decimal.NewFromFloat(sc.MinQty),
		MaxQty:      decimal.NewFromFloat(sc.MaxQty),
		MinNotional: decimal.NewFromFloat(sc.MinNotional),
	})

	c.session = posttrade.NewSession(posttrade.SessionConfig{
		Symbol:     c.cfg.Symbol,
		Category:   c.cfg.Category,
		PrivateURL: g.PrivateURL,
		Fees:       feesFrom(*c.cfg),
		Exchange:   c.exchangeOptions(),
		Logger:     c.logger,
		Monitor:    c.monitor,
	})
	c.logger.Info("core services built")
}

func feesFrom(cfg config.AppConfig) posttrade.Fees {
	return posttrade.Fees{Maker: cfg.Fees.MakerRate(), Taker: cfg.Fees.TakerRate()}
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Addr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
		})
	}
	c.lifecycle.Register(&streamComponent{
		name:    "session",
		connect: c.session.Connect,
		kill:    c.session.Kill,
		health: func() error {
			if !c.session.Connected() {
				return fmt.Errorf("session disconnected: %v", c.session.Err())
			}
			return nil
		},
		logger: c.logger,
	})
	c.lifecycle.Register(&streamComponent{
		name:    "oms",
		connect: c.oms.Connect,
		// 安全清场：退出前撤销全部挂单
		drain: c.oms.CancelAll,
		kill:  c.oms.Kill,
		health: func() error {
			for _, ch := range []string{order.OrderChannel, order.ExecutionChannel, order.TradeChannel} {
				if !c.oms.Connected(ch) {
					return fmt.Errorf("oms %s disconnected: %v", ch, c.oms.Err(ch))
				}
			}
			return nil
		},
		logger: c.logger,
	})
}

// SetFatalErrorHandler 协议拒绝时先告警再回调（OMS 与记账会话共用）
func (c *Container) SetFatalErrorHandler(fn func(error)) {
	handler := func(err error) {
		if aerr := c.alerts.ConnectionRejected(err); aerr != nil {
			c.logger.LogError(aerr, map[string]interface{}{"action": "alert"})
		}
		if fn != nil {
			fn(err)
		}
	}
	c.oms.SetFatalErrorHandler(handler)
	c.session.SetFatalErrorHandler(handler)
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	c.logger.Info("container stopped", zap.String("summary", posttrade.Summary(c.session.Snapshot())))
	_ = c.logger.Close()
	return err
}

// Reconnect 重建 OMS 与记账会话的全部连接
func (c *Container) Reconnect(ctx context.Context) error {
	if err := c.session.Reconnect(ctx); err != nil {
		return fmt.Errorf("session reconnect: %w", err)
	}
	if err := c.oms.Reconnect(ctx); err != nil {
		return fmt.Errorf("oms reconnect: %w", err)
	}
	return nil
}

// ApplyConfig 应用热更新的配置；目前只有费率可以在运行中变更
func (c *Container) ApplyConfig(cfg config.AppConfig) {
	fees := feesFrom(cfg)
	c.session.SetFees(fees)
	c.logger.Info("fees updated", zap.String("maker", fees.Maker.String()), zap.String("taker", fees.Taker.String()))
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

func (c *Container) Config() config.AppConfig { return *c.cfg }
func (c *Container) Logger() *logger.Logger { return c.logger }
func (c *Container) Monitor() *monitor.Monitor { return c.monitor }
func (c *Container) Alerts() *alert.Manager { return c.alerts }
func (c *Container) OMS() *order.OMS { return c.oms }
func (c *Container) Session() *posttrade.Session { return c.session }
