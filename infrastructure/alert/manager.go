package alert

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"bybit-oms/gateway"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Alert 告警信息
type Alert struct {
	Level     Level
	Channel   string // 连接名（order/execution/trade）
	Message   string
	Code      int // 交易所返回码，0 表示无
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Sink 告警输出
type Sink interface {
	Send(alert Alert) error
	Name() string
}

// Throttler 告警限流器：同一 key 在 interval 内只放行一次
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow 检查是否允许发送
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	last, ok := t.lastSent[key]
	if !ok || now.Sub(last) >= t.interval {
		t.lastSent[key] = now
		return true
	}
	return false
}

// Clear 清空所有限流记录
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

// Manager 把连接告警分发到所有 Sink
type Manager struct {
	sinks    []Sink
	throttle *Throttler
	mu       sync.RWMutex
}

func NewManager(throttleInterval time.Duration, sinks ...Sink) *Manager {
	return &Manager{
		sinks:    sinks,
		throttle: NewThrottler(throttleInterval),
	}
}

// Send 发送告警。被限流时静默返回 nil；只有全部 Sink 失败才返回错误。
func (m *Manager) Send(a Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	key := fmt.Sprintf("%s:%s:%s:%d", a.Level, a.Channel, a.Message, a.Code)
	if !m.throttle.Allow(key) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(a); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	if len(errs) == len(m.sinks) {
		return errors.Join(errs...)
	}
	return nil
}

// ConnectionRejected 上报协议拒绝（鉴权失败、订阅失败或下单回报 retCode 非零）
func (m *Manager) ConnectionRejected(err error) error {
	a := Alert{Level: LevelCritical, Message: "connection rejected", Fields: map[string]interface{}{"error": err.Error()}}
	var se *gateway.StreamError
	if errors.As(err, &se) {
		a.Channel = se.Channel
		a.Code = se.Code
		if se.Msg != "" {
			a.Fields["reason"] = se.Msg
		}
	}
	return m.Send(a)
}

// ReconnectFailed 上报重连失败
func (m *Manager) ReconnectFailed(err error) error {
	return m.Send(Alert{Level: LevelCritical, Message: "reconnect failed", Fields: map[string]interface{}{"error": err.Error()}})
}

// AddSink 添加告警输出
func (m *Manager) AddSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Sinks 获取所有输出名称
func (m *Manager) Sinks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name())
	}
	return names
}

// ResetThrottle 重置限流器
func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}
