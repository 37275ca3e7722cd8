package posttrade

import (
	"context"

	"go.uber.org/zap"

	"bybit-oms/gateway"
	"bybit-oms/infrastructure/logger"
	"bybit-oms/infrastructure/monitor"
	"bybit-oms/internal/exchange"
)

// ExecutionChannel 是会话唯一的连接名。
const ExecutionChannel = "execution"

// SessionConfig 配置 Session。
type SessionConfig struct {
	Symbol     string
	Category   string
	PrivateURL string
	Fees       Fees
	Exchange   exchange.Options
	Logger     *logger.Logger
	Monitor    *monitor.Monitor
}

// Session 订阅快速成交流，把属于 symbol/category 的成交送入 Ledger。
// 传输错误只记录日志，由调用方 Reconnect；协议拒绝经 SetFatalErrorHandler 上报。
type Session struct {
	*Ledger
	cfg SessionConfig
	sup *exchange.Supervisor
	log *logger.Logger
	mon *monitor.Monitor
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.PrivateURL == "" {
		cfg.PrivateURL = gateway.DefaultPrivateURL
	}
	opts := cfg.Exchange
	if opts.Logger == nil {
		opts.Logger = cfg.Logger.Named("session").Logger
	}
	if opts.Monitor == nil {
		opts.Monitor = cfg.Monitor
	}
	s := &Session{
		Ledger: NewLedger(cfg.Fees),
		cfg:    cfg,
		log:    cfg.Logger.Named("posttrade"),
		mon:    cfg.Monitor,
	}
	s.sup = exchange.NewSupervisor(opts, exchange.Channel{
		Name:    ExecutionChannel,
		URL:     cfg.PrivateURL,
		Topics:  []string{gateway.ExecutionTopic(cfg.Category)},
		Handler: s.HandleExecutions,
	})
	return s
}

// HandleExecutions 解码一条成交推送并记账。
func (s *Session) HandleExecutions(env gateway.Envelope) error {
	execs, err := gateway.DecodeExecutions(env, ExecutionChannel, s.cfg.Symbol, s.cfg.Category)
	if err != nil {
		return err
	}
	fills := make([]Fill, 0, len(execs))
	for _, e := range execs {
		fills = append(fills, FillFromExecution(e))
	}
	matches := s.Apply(fills)
	s.publish(matches)
	return nil
}

func (s *Session) publish(matches []Match) {
	for _, m := range matches {
		s.log.LogTrade("match", map[string]interface{}{
			"qty":        m.Qty.String(),
			"buy_price":  m.BuyPrice.String(),
			"sell_price": m.SellPrice.String(),
			"fees":       m.BuyFee.Add(m.SellFee).String(),
			"net":        m.Net.String(),
		})
	}
	snap := s.Snapshot()
	rate, ok := snap.WinRate()
	s.mon.RecordMatches(len(matches))
	s.mon.UpdateSession(snap.PnL.InexactFloat64(), snap.Peak.InexactFloat64(), snap.Drawdown.InexactFloat64(), rate, ok)
	if len(matches) > 0 {
		s.log.Debug("session updated", zap.String("pnl", snap.PnL.String()), zap.Int("matched", snap.Matched))
	}
}

func (s *Session) Connect(ctx context.Context) error { return s.sup.Connect(ctx) }

func (s *Session) Reconnect(ctx context.Context) error { return s.sup.Reconnect(ctx) }

func (s *Session) Kill() { s.sup.Kill() }

func (s *Session) SetFatalErrorHandler(fn func(error)) { s.sup.SetFatalErrorHandler(fn) }

func (s *Session) Connected() bool { return s.sup.Connected(ExecutionChannel) }

func (s *Session) Err() error { return s.sup.Err(ExecutionChannel) }
