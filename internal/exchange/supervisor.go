package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"bybit-oms/gateway"
	"bybit-oms/infrastructure/monitor"
)

// ErrAlreadyConnected 表示需要先 Kill（或直接 Reconnect）。
var ErrAlreadyConnected = errors.New("supervisor already connected")

// Options 配置 Supervisor。
type Options struct {
	Credentials  gateway.CredentialProvider
	Dialer       gateway.Dialer
	PingInterval time.Duration
	AuthTimeout  time.Duration // 等待鉴权回报的上限
	AuthExpiry   time.Duration // 签名有效期
	Logger       *zap.Logger
	Monitor      *monitor.Monitor
	Now          func() time.Time
}

func (o *Options) defaults() {
	if o.Dialer == nil {
		o.Dialer = gateway.NewWSDialer()
	}
	if o.PingInterval <= 0 {
		o.PingInterval = gateway.DefaultPingInterval
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 10 * time.Second
	}
	if o.AuthExpiry <= 0 {
		o.AuthExpiry = gateway.DefaultAuthExpiry
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Credentials == nil {
		o.Credentials = gateway.StaticCredentials{}
	}
}

// session 是一次 Connect 建立的连接集合，Kill 时整体拆除。
type session struct {
	cancel context.CancelFunc
	ctx    context.Context
	wg     conc.WaitGroup
	conns  map[string]*connection
	opened []*connection // 本次 Connect 打开过的全部连接，含已退出的
}

// Supervisor 持有若干命名连接，每条连接一个读 goroutine 和一个心跳 goroutine。
// 连接之间相互独立：一条连接失败不会拆除其他连接；重连由调用方触发。
type Supervisor struct {
	opts     Options
	channels []Channel
	log      *zap.Logger

	mu      sync.Mutex
	cur     *session
	errs    map[string]error
	onFatal func(error)
}

func NewSupervisor(opts Options, channels ...Channel) *Supervisor {
	opts.defaults()
	return &Supervisor{
		opts:     opts,
		channels: channels,
		log:      opts.Logger.Named("supervisor"),
		errs:     make(map[string]error),
	}
}

// SetFatalErrorHandler 设置协议拒绝回调（在独立 goroutine 中调用，可在其中 Reconnect）。
func (s *Supervisor) SetFatalErrorHandler(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFatal = fn
}

// Connect 并行拨通所有连接，发送鉴权/订阅，启动读循环与心跳，
// 并等待每条连接的鉴权回报。任一失败则拆除全部并返回错误。
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.cur != nil {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	runCtx, cancel := context.WithCancel(context.Background())
	sess := &session{ctx: runCtx, cancel: cancel, conns: make(map[string]*connection, len(s.channels))}
	s.cur = sess
	s.errs = make(map[string]error)
	s.mu.Unlock()

	p := pool.New().WithErrors()
	for _, ch := range s.channels {
		ch := ch
		p.Go(func() error { return s.open(ctx, sess, ch) })
	}
	err := p.Wait()
	if err == nil {
		err = s.awaitReady(ctx, sess)
	}
	if err != nil {
		s.Kill()
		return err
	}
	s.log.Info("connected", zap.Int("channels", len(s.channels)))
	return nil
}

func (s *Supervisor) open(ctx context.Context, sess *session, ch Channel) error {
	conn, err := s.opts.Dialer.Dial(ctx, ch.URL)
	if err != nil {
		return fmt.Errorf("open %s: %w", ch.Name, gateway.Transport(ch.Name, err))
	}
	c := newConnection(ch, conn, s.opts.Logger, s.opts.Monitor)

	s.mu.Lock()
	if s.cur != sess {
		s.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("open %s: %w", ch.Name, context.Canceled)
	}
	sess.conns[ch.Name] = c
	sess.opened = append(sess.opened, c)
	s.mu.Unlock()

	sess.wg.Go(func() { c.readLoop(sess.ctx, s.exit) })
	if err := c.authorize(s.opts.Credentials, s.opts.Now(), s.opts.AuthExpiry); err != nil {
		return fmt.Errorf("authorize %s: %w", ch.Name, err)
	}
	sess.wg.Go(func() { c.keepalive(sess.ctx, s.opts.PingInterval) })

	s.opts.Monitor.SetConnected(ch.Name, true)
	s.log.Info("connection opened", zap.String("channel", ch.Name), zap.Strings("topics", ch.Topics))
	return nil
}

func (s *Supervisor) awaitReady(ctx context.Context, sess *session) error {
	s.mu.Lock()
	conns := append([]*connection(nil), sess.opened...)
	s.mu.Unlock()

	timer := time.NewTimer(s.opts.AuthTimeout)
	defer timer.Stop()
	for _, c := range conns {
		select {
		case <-c.ready:
		case <-c.done:
			if err := c.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%s: %w", c.ch.Name, gateway.ErrNotConnected)
		case <-timer.C:
			return fmt.Errorf("%s: timeout waiting for auth ack", c.ch.Name)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// exit 由读循环在出错退出时调用。协议拒绝触发致命回调；传输错误只记录日志，
// 由调用方决定何时 Reconnect。
func (s *Supervisor) exit(c *connection, err error) {
	c.setErr(err)
	name := c.ch.Name

	s.mu.Lock()
	s.errs[name] = err
	if s.cur != nil && s.cur.conns[name] == c {
		delete(s.cur.conns, name)
	}
	onFatal := s.onFatal
	s.mu.Unlock()

	_ = c.conn.Close()
	s.opts.Monitor.SetConnected(name, false)

	if gateway.IsRejection(err) {
		s.opts.Monitor.RecordRejection(name)
		s.log.Error("connection rejected", zap.String("channel", name), zap.Error(err))
		// 鉴权阶段的拒绝由 Connect 返回，不再回调
		if onFatal != nil && c.authorized() {
			go onFatal(err)
		}
		return
	}
	s.log.Warn("connection lost", zap.String("channel", name), zap.Error(err))
}

// Kill 停止心跳、关闭所有连接并等待所有 goroutine 退出。关闭错误被忽略。
// 不得在 Handler 内同步调用。
func (s *Supervisor) Kill() {
	s.mu.Lock()
	sess := s.cur
	s.cur = nil
	var conns []*connection
	if sess != nil {
		for _, c := range sess.conns {
			conns = append(conns, c)
		}
	}
	s.mu.Unlock()
	if sess == nil {
		return
	}

	sess.cancel()
	for _, c := range conns {
		if err := c.conn.Close(); err != nil {
			s.log.Debug("close connection", zap.String("channel", c.ch.Name), zap.Error(err))
		}
		s.opts.Monitor.SetConnected(c.ch.Name, false)
	}
	sess.wg.Wait()
	s.log.Info("connections closed", zap.Int("channels", len(conns)))
}

// Reconnect = Kill + Connect。
func (s *Supervisor) Reconnect(ctx context.Context) error {
	s.Kill()
	return s.Connect(ctx)
}

// Send 在指定连接上发送一条 JSON 消息。
func (s *Supervisor) Send(ctx context.Context, channel string, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := s.lookup(channel)
	if c == nil || !c.alive() {
		return fmt.Errorf("send on %s: %w", channel, gateway.ErrNotConnected)
	}
	return c.send(msg)
}

// Connected 报告连接是否存活。
func (s *Supervisor) Connected(channel string) bool {
	c := s.lookup(channel)
	return c != nil && c.alive()
}

// Err 返回连接最近一次的终止原因（拒绝或传输错误）。
func (s *Supervisor) Err(channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[channel]
}

// Channels 返回所有连接名（已排序）。
func (s *Supervisor) Channels() []string {
	names := make([]string, 0, len(s.channels))
	for _, ch := range s.channels {
		names = append(names, ch.Name)
	}
	sort.Strings(names)
	return names
}

func (s *Supervisor) lookup(channel string) *connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.conns[channel]
}
