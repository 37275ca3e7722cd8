package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// 默认 v5 私有流与交易流地址。
	DefaultPrivateURL = "wss://stream.bybit.com/v5/private"
	DefaultTradeURL   = "wss://stream.bybit.com/v5/trade"
)

// Conn 是一条可靠、有序、按消息分帧的持久双向连接。
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer 打开到 url 的连接。
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer 基于 gorilla/websocket 建立连接。
type WSDialer struct {
	Dialer       *websocket.Dialer
	ReadTimeout  time.Duration // 0 表示不设读超时
	WriteTimeout time.Duration
}

func NewWSDialer() *WSDialer {
	return &WSDialer{
		Dialer:       websocket.DefaultDialer,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{conn: conn, readTimeout: d.ReadTimeout, writeTimeout: d.WriteTimeout}, nil
}

// wsConn 串行化写入；gorilla 连接只允许一个并发写者。
type wsConn struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close 等待进行中的写入完成，发送 close 帧后关闭底层连接。
func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
