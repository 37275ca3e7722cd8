package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"bybit-oms/gateway"
	"bybit-oms/infrastructure/monitor"
)

// Handler 处理一条已解析外壳的数据消息。返回 Irrelevant 类错误会被忽略，
// 返回 Rejection 类错误会终止该连接。
type Handler func(env gateway.Envelope) error

// Channel 描述一条逻辑连接。Topics 为空时只鉴权不订阅（如 trade 下单通道）。
type Channel struct {
	Name    string
	URL     string
	Topics  []string
	Handler Handler
}

// connection 是一条已拨通的连接及其读循环、心跳。
type connection struct {
	ch   Channel
	conn gateway.Conn
	log  *zap.Logger
	mon  *monitor.Monitor

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err error
}

func newConnection(ch Channel, conn gateway.Conn, log *zap.Logger, mon *monitor.Monitor) *connection {
	return &connection{
		ch:    ch,
		conn:  conn,
		log:   log.With(zap.String("channel", ch.Name)),
		mon:   mon,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (c *connection) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", c.ch.Name, err)
	}
	if err := c.conn.WriteMessage(data); err != nil {
		return gateway.Transport(c.ch.Name, err)
	}
	return nil
}

// authorize 发送鉴权消息，随后按需订阅。
func (c *connection) authorize(creds gateway.CredentialProvider, now time.Time, expiry time.Duration) error {
	if err := c.send(gateway.AuthMessage(creds, now, expiry)); err != nil {
		return err
	}
	if len(c.ch.Topics) == 0 {
		return nil
	}
	return c.send(gateway.SubscribeMessage(c.ch.Topics...))
}

// readLoop 顺序读取并分发消息，直到连接关闭或收到协议拒绝。
// exit 在循环因错误退出时回调；被 Kill 关闭时不回调。
func (c *connection) readLoop(ctx context.Context, exit func(*connection, error)) {
	defer close(c.done)
	for {
		raw, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			exit(c, gateway.Transport(c.ch.Name, err))
			return
		}
		c.mon.RecordMessage(c.ch.Name)

		env, err := gateway.ParseEnvelope(raw)
		if err != nil {
			c.log.Debug("drop undecodable message", zap.Error(err))
			continue
		}
		if rej := env.Rejection(c.ch.Name); rej != nil {
			exit(c, rej)
			return
		}
		if env.IsControl() {
			if env.Op == gateway.OpAuth {
				c.readyOnce.Do(func() { close(c.ready) })
			}
			continue
		}
		if c.ch.Handler == nil {
			continue
		}
		if err := c.ch.Handler(env); err != nil {
			switch gateway.KindOf(err) {
			case gateway.KindIrrelevant:
				c.log.Debug("ignore message", zap.Error(err))
			case gateway.KindRejection:
				exit(c, err)
				return
			default:
				c.log.Warn("handle message failed", zap.Error(err))
			}
		}
	}
}

// keepalive 周期发送 ping，直到 ctx 取消或读循环退出。
func (c *connection) keepalive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.send(gateway.PingMessage()); err != nil {
				c.log.Debug("ping failed", zap.Error(err))
			}
		}
	}
}

func (c *connection) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *connection) authorized() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

func (c *connection) alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}
