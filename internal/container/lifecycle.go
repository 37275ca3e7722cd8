package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"bybit-oms/infrastructure/logger"
	"bybit-oms/metrics"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

// LifecycleManager 生命周期管理器
type LifecycleManager struct {
	components []Lifecycle
	mu         sync.RWMutex
}

// NewLifecycleManager 创建新的生命周期管理器
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{
		components: make([]Lifecycle, 0),
	}
}

// Register 注册组件
func (m *LifecycleManager) Register(component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component)
}

// StartAll 按顺序启动所有组件
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, component := range m.components {
		if err := component.Start(ctx); err != nil {
			// 启动失败，回滚已启动的组件
			for j := i - 1; j >= 0; j-- {
				_ = m.components[j].Stop()
			}
			return fmt.Errorf("start component %d failed: %w", i, err)
		}
	}
	return nil
}

// StopAll 逆序停止所有组件，返回全部错误
func (m *LifecycleManager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for i := len(m.components) - 1; i >= 0; i-- {
		if err := m.components[i].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckHealth 检查所有组件健康状态
func (m *LifecycleManager) CheckHealth() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, component := range m.components {
		if err := component.Health(); err != nil {
			return fmt.Errorf("component %d unhealthy: %w", i, err)
		}
	}
	return nil
}

// httpServerComponent HTTP服务器组件
type httpServerComponent struct {
	name    string
	handler http.Handler
	addr    string
	logger  *logger.Logger
	server  *http.Server
	started bool
	mu      sync.Mutex
}

func (h *httpServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}

	h.server = metrics.NewServer(h.addr, h.handler)
	errc := metrics.Serve(h.server)
	h.logger.Info("http server listening", zap.String("component", h.name), zap.String("addr", h.addr))

	// 在后台记录监听错误
	go func() {
		if err := <-errc; err != nil {
			h.logger.LogError(err, map[string]interface{}{
				"component": h.name,
				"action":    "listen",
			})
		}
	}()

	h.started = true
	return nil
}

func (h *httpServerComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started || h.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", h.name, err)
	}

	h.logger.Info("http server stopped", zap.String("component", h.name))
	h.started = false
	return nil
}

func (h *httpServerComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return fmt.Errorf("%s not started", h.name)
	}
	return nil
}

// streamComponent 把一组长连接（OMS 或记账会话）包装为生命周期组件
type streamComponent struct {
	name    string
	connect func(ctx context.Context) error
	drain   func(ctx context.Context) error // Stop 前执行，如撤销全部挂单
	kill    func()
	health  func() error
	logger  *logger.Logger
}

func (s *streamComponent) Start(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return fmt.Errorf("%s connect: %w", s.name, err)
	}
	s.logger.Info("stream started", zap.String("component", s.name))
	return nil
}

func (s *streamComponent) Stop() error {
	var err error
	if s.drain != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = s.drain(ctx)
		cancel()
		if err != nil {
			s.logger.LogError(err, map[string]interface{}{"component": s.name, "action": "drain"})
		}
	}
	s.kill()
	s.logger.Info("stream stopped", zap.String("component", s.name))
	return err
}

func (s *streamComponent) Health() error {
	if s.health == nil {
		return nil
	}
	return s.health()
}
