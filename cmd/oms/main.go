// Command oms 连接交易所私有流与下单通道，维护订单/仓位状态并实时记账。
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

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"bybit-oms/config"
	"bybit-oms/infrastructure/logger"
	"bybit-oms/internal/container"
	"bybit-oms/posttrade"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	summaryEvery := flag.Duration("summaryInterval", time.Minute, "盈亏摘要日志间隔，0 关闭")
	watch := flag.Bool("watch", true, "监听配置文件变更并热更新费率")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建组件失败: %v", err)
	}
	lg := c.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 协议拒绝在独立 goroutine 中回调；只保留一个待处理的
	fatal := make(chan error, 1)
	c.SetFatalErrorHandler(func(err error) {
		select {
		case fatal <- err:
		default:
		}
	})

	if err := c.Start(ctx); err != nil {
		lg.LogError(err, map[string]interface{}{"action": "start"})
		_ = c.Stop()
		os.Exit(1)
	}
	notify(lg, daemon.SdNotifyReady)

	if *watch {
		startWatcher(ctx, *cfgPath, c, lg)
	}

	var summary <-chan time.Time
	if *summaryEvery > 0 {
		t := time.NewTicker(*summaryEvery)
		defer t.Stop()
		summary = t.C
	}
	var watchdog <-chan time.Time
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		watchdog = t.C
	}

	exitCode := 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-fatal:
			lg.LogError(err, map[string]interface{}{"action": "reconnect"})
			if err := c.Reconnect(ctx); err != nil {
				_ = c.Alerts().ReconnectFailed(err)
				exitCode = 1
				break loop
			}
			lg.Info("reconnected")
		case <-summary:
			logSnapshot(lg, c.Session().Snapshot())
		case <-watchdog:
			notify(lg, daemon.SdNotifyWatchdog)
		}
	}

	notify(lg, daemon.SdNotifyStopping)
	if err := c.Stop(); err != nil {
		exitCode = 1
	}
	fmt.Print(posttrade.Summary(c.Session().Snapshot()))
	os.Exit(exitCode)
}

func startWatcher(ctx context.Context, path string, c *container.Container, lg *logger.Logger) {
	w, err := config.NewWatcher(path, time.Second, lg.Logger)
	if err != nil {
		lg.Warn("config watcher disabled", zap.Error(err))
		return
	}
	go func() {
		if err := w.Run(ctx, c.ApplyConfig); err != nil {
			lg.Warn("config watcher stopped", zap.Error(err))
		}
	}()
}

func logSnapshot(lg *logger.Logger, m posttrade.Metrics) {
	fields := []zap.Field{
		zap.String("pnl", m.PnL.String()),
		zap.String("peak", m.Peak.String()),
		zap.String("drawdown", m.Drawdown.String()),
		zap.Int("matched", m.Matched),
	}
	if r, ok := m.WinRate(); ok {
		fields = append(fields, zap.Float64("win_rate", r))
	}
	lg.Info("session summary", fields...)
}

// notify 向 systemd 报告状态；不在 systemd 下运行时为空操作。
func notify(lg *logger.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		lg.Debug("sd_notify failed", zap.String("state", state), zap.Error(err))
	}
}
