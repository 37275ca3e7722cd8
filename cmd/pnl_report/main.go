// Command pnl_report 只订阅成交流做 FIFO 记账，退出时打印盈亏摘要。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bybit-oms/config"
	"bybit-oms/infrastructure/logger"
	"bybit-oms/infrastructure/monitor"
	"bybit-oms/internal/exchange"
	"bybit-oms/metrics"
	"bybit-oms/posttrade"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	duration := flag.Duration("duration", 0, "统计时长，0 表示直到收到退出信号")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，默认取配置")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()

	mon := monitor.New(monitor.DefaultConfig())
	addr := cfg.Metrics.Addr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	if addr != "" {
		srv := metrics.NewServer(addr, mon.Handler())
		errc := metrics.Serve(srv)
		go func() {
			if err := <-errc; err != nil {
				lg.LogError(err, map[string]interface{}{"component": "metrics_server"})
			}
		}()
		defer srv.Close()
	}

	g := cfg.Gateway
	sess := posttrade.NewSession(posttrade.SessionConfig{
		Symbol:     cfg.Symbol,
		Category:   cfg.Category,
		PrivateURL: g.PrivateURL,
		Fees:       posttrade.Fees{Maker: cfg.Fees.MakerRate(), Taker: cfg.Fees.TakerRate()},
		Exchange: exchange.Options{
			Credentials:  g,
			PingInterval: g.PingInterval(),
			AuthTimeout:  g.AuthTimeout(),
			AuthExpiry:   g.AuthExpiry(),
		},
		Logger:  lg,
		Monitor: mon,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	fatal := make(chan error, 1)
	sess.SetFatalErrorHandler(func(err error) {
		select {
		case fatal <- err:
		default:
		}
	})
	if err := sess.Connect(ctx); err != nil {
		lg.LogError(err, map[string]interface{}{"action": "connect"})
		os.Exit(1)
	}
	lg.Info("pnl report started", zap.String("symbol", cfg.Symbol), zap.String("category", cfg.Category))

	// 传输断开后按固定间隔检查并重连
	check := time.NewTicker(5 * time.Second)
	defer check.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-fatal:
			lg.LogError(err, map[string]interface{}{"action": "reconnect"})
			if err := sess.Reconnect(ctx); err != nil {
				lg.LogError(err, map[string]interface{}{"action": "reconnect_failed"})
			}
		case <-check.C:
			if !sess.Connected() {
				lg.Warn("execution stream down, reconnecting", zap.Error(sess.Err()))
				if err := sess.Reconnect(ctx); err != nil {
					lg.LogError(err, map[string]interface{}{"action": "reconnect_failed"})
				}
			}
		}
	}

	sess.Kill()
	fmt.Printf("交易对: %s (%s)\n", cfg.Symbol, cfg.Category)
	if err := posttrade.WriteSummary(os.Stdout, sess.Snapshot()); err != nil {
		lg.LogError(err, map[string]interface{}{"action": "summary"})
	}
}
