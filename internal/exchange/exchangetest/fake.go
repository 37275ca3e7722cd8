// Package exchangetest 提供内存版 Conn/Dialer，用于在无网络的情况下驱动 Supervisor。
package exchangetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"bybit-oms/gateway"
)

// ErrClosed 由已关闭的 Conn 返回。
var ErrClosed = errors.New("fake conn closed")

// Conn 是内存连接：Push 注入入站消息，Writes 读取出站消息。
// 收到 auth 请求时自动回报成功（RejectAuth 置位时回报失败）。
type Conn struct {
	URL string

	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu         sync.Mutex
	writes     [][]byte
	failErr    error
	rejectAuth bool
	silentAuth bool
	closeCalls int
}

func NewConn(url string) *Conn {
	return &Conn{URL: url, inbound: make(chan []byte, 256), closed: make(chan struct{})}
}

func (c *Conn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.failErr != nil {
			return nil, c.failErr
		}
		return nil, ErrClosed
	}
}

func (c *Conn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.mu.Lock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	reject, silent := c.rejectAuth, c.silentAuth
	c.mu.Unlock()

	var ctl gateway.ControlMessage
	if json.Unmarshal(data, &ctl) == nil && ctl.Op == gateway.OpAuth && !silent {
		c.Push(c.authAck(!reject))
	}
	return nil
}

func (c *Conn) authAck(ok bool) string {
	if strings.Contains(c.URL, "trade") {
		if ok {
			return `{"retCode":0,"retMsg":"OK","op":"auth"}`
		}
		return `{"retCode":10004,"retMsg":"Invalid sign","op":"auth"}`
	}
	return fmt.Sprintf(`{"success":%t,"ret_msg":"","op":"auth"}`, ok)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Push 注入一条入站消息。
func (c *Conn) Push(msg string) {
	select {
	case c.inbound <- []byte(msg):
	case <-c.closed:
	}
}

// Fail 以 err 断开连接，模拟传输错误。
func (c *Conn) Fail(err error) {
	c.mu.Lock()
	c.failErr = err
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
}

// RejectAuth 让后续 auth 请求收到失败回报。
func (c *Conn) RejectAuth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectAuth = true
}

// SilenceAuth 让后续 auth 请求得不到回报。
func (c *Conn) SilenceAuth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.silentAuth = true
}

func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Writes 返回所有出站消息的拷贝。
func (c *Conn) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	for i, w := range c.writes {
		out[i] = string(w)
	}
	return out
}

// WritesWithOp 返回 op 字段等于 op 的出站消息。
func (c *Conn) WritesWithOp(op string) []string {
	var out []string
	for _, w := range c.Writes() {
		var probe struct {
			Op string `json:"op"`
		}
		if json.Unmarshal([]byte(w), &probe) == nil && probe.Op == op {
			out = append(out, w)
		}
	}
	return out
}

// Dialer 按 URL 创建 Conn，并保留全部历史连接。
type Dialer struct {
	mu    sync.Mutex
	conns []*Conn
	err   map[string]error
	setup func(*Conn)
}

func NewDialer() *Dialer { return &Dialer{err: make(map[string]error)} }

// FailURL 让到 url 的拨号失败。
func (d *Dialer) FailURL(url string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err[url] = err
}

// OnDial 在每条新连接交给调用方之前执行 fn。
func (d *Dialer) OnDial(fn func(*Conn)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setup = fn
}

func (d *Dialer) Dial(ctx context.Context, url string) (gateway.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.err[url]; err != nil {
		return nil, err
	}
	c := NewConn(url)
	if d.setup != nil {
		d.setup(c)
	}
	d.conns = append(d.conns, c)
	return c, nil
}

// ByURL 返回到 url 的最近一条连接。
func (d *Dialer) ByURL(url string) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.conns) - 1; i >= 0; i-- {
		if d.conns[i].URL == url {
			return d.conns[i]
		}
	}
	return nil
}

// ByTopic 返回最近一条订阅了 topic 的连接。
func (d *Dialer) ByTopic(topic string) *Conn {
	d.mu.Lock()
	conns := append([]*Conn(nil), d.conns...)
	d.mu.Unlock()
	for i := len(conns) - 1; i >= 0; i-- {
		for _, w := range conns[i].WritesWithOp(gateway.OpSubscribe) {
			if strings.Contains(w, `"`+topic+`"`) {
				return conns[i]
			}
		}
	}
	return nil
}

// Dials 返回累计拨号次数。
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}
