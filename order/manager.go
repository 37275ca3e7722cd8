package order

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bybit-oms/gateway"
	"bybit-oms/infrastructure/logger"
	"bybit-oms/infrastructure/monitor"
	"bybit-oms/inventory"
)

// 连接名。
const (
	OrderChannel     = "order"
	ExecutionChannel = "execution"
	TradeChannel     = "trade"
)

// Gateway 把请求发到指定连接；由 exchange.Supervisor 实现。
type Gateway interface {
	Send(ctx context.Context, channel string, msg any) error
}

// Config 配置 Manager。
type Config struct {
	Symbol     string
	Category   string
	RecvWindow string // 毫秒，默认 "8000"
	Throttle   gateway.RateLimiter
	Logger     *logger.Logger
	Monitor    *monitor.Monitor
	Now        func() time.Time
}

// Manager 维护单个 symbol/category 的活跃订单、订单状态与签名仓位，
// 并经限流器把下单/改单/撤单请求发往 trade 连接。
//
// 成交批处理期间持有 posGate 写锁；Create 以 TryRLock 检测这一状态，
// 拿不到读锁说明仓位正在更新，此时订单记为 Unsubmitted 而不发送。
type Manager struct {
	cfg      Config
	gw       Gateway
	throttle gateway.RateLimiter
	log      *logger.Logger
	mon      *monitor.Monitor

	posGate sync.RWMutex
	pos     inventory.Tracker

	mu          sync.RWMutex
	active      map[string]Order
	status      map[string]Status
	constraints SymbolConstraints

	linkPrefix string
	linkSeq    atomic.Int64
}

func NewManager(gw Gateway, cfg Config) *Manager {
	if cfg.Throttle == nil {
		cfg.Throttle = gateway.NewThrottle(gateway.DefaultAPIRate)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RecvWindow == "" {
		cfg.RecvWindow = gateway.DefaultRecvWindow
	}
	return &Manager{
		cfg:        cfg,
		gw:         gw,
		throttle:   cfg.Throttle,
		log:        cfg.Logger.Named("order"),
		mon:        cfg.Monitor,
		active:     make(map[string]Order),
		status:     make(map[string]Status),
		linkPrefix: newLinkPrefix(),
	}
}

// newLinkPrefix 取随机 UUID 的 URL 安全 base64 前 10 位，保证进程间唯一。
func newLinkPrefix() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])[:10]
}

func (m *Manager) nextLinkID() string {
	n := m.linkSeq.Add(1) - 1
	return fmt.Sprintf("%s-%d", m.linkPrefix, n)
}

// SetConstraints 设置交易对的精度/名义限制，仅对数量非零的下单生效。
func (m *Manager) SetConstraints(c SymbolConstraints) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constraints = c
}

// HandleOrders 处理订单推送：过滤、按 updatedTime 排序后逐条覆盖状态，
// leavesQty 非零的进入活跃集合，否则移出（状态保留）。
func (m *Manager) HandleOrders(env gateway.Envelope) error {
	events, err := gateway.DecodeOrders(env, OrderChannel, m.cfg.Symbol, m.cfg.Category)
	if err != nil {
		return err
	}
	m.mu.Lock()
	for _, ev := range events {
		m.status[ev.OrderLinkID] = Status(ev.OrderStatus)
		if !ev.LeavesQty.IsZero() {
			m.active[ev.OrderLinkID] = fromEvent(ev)
		} else {
			delete(m.active, ev.OrderLinkID)
		}
	}
	n := len(m.active)
	m.mu.Unlock()

	m.mon.UpdateActiveOrders(n)
	m.log.Debug("orders applied", zap.Int("events", len(events)), zap.Int("active", n))
	return nil
}

// HandleExecutions 处理成交推送并累加签名仓位。整批处理期间持有 posGate 写锁。
func (m *Manager) HandleExecutions(env gateway.Envelope) error {
	execs, err := gateway.DecodeExecutions(env, ExecutionChannel, m.cfg.Symbol, m.cfg.Category)
	if err != nil {
		return err
	}
	m.posGate.Lock()
	for _, e := range execs {
		m.pos.Apply(e.Side, e.Qty.Decimal)
	}
	m.posGate.Unlock()

	pos := m.pos.NetExposure()
	m.mon.UpdatePosition(pos.InexactFloat64())
	m.log.Debug("executions applied", zap.Int("fills", len(execs)), zap.String("position", pos.String()))
	return nil
}

// HandleTrade 处理 trade 连接上的请求回报。非零 retCode 已由连接层视为拒绝。
func (m *Manager) HandleTrade(env gateway.Envelope) error {
	if !strings.HasPrefix(env.Op, "order.") {
		return gateway.Irrelevant(TradeChannel, fmt.Errorf("op %q", env.Op))
	}
	var ack gateway.TradeAck
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			return gateway.Irrelevant(TradeChannel, err)
		}
	}
	m.log.LogOrder(env.Op+".ack", ack.OrderLinkID, map[string]interface{}{"order_id": ack.OrderID})
	return nil
}

// Create 下单并返回订单的 link-id。
//
// 请求先校验再进限流器；限流后若数量为 0 或仓位正在更新，记为 Unsubmitted 不发送。
func (m *Manager) Create(ctx context.Context, req CreateRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if !req.Qty.IsZero() {
		m.mu.RLock()
		c := m.constraints
		m.mu.RUnlock()
		if err := c.Validate(req.Price, req.Qty); err != nil {
			return "", fmt.Errorf("%w: %v", gateway.ErrInvalidRequest, err)
		}
	}

	linkID := req.OrderLinkID
	if linkID == "" {
		linkID = m.nextLinkID()
	}
	m.setStatus(linkID, StatusUnset)

	m.throttle.Wait()

	if req.Qty.IsZero() {
		m.markUnsubmitted(linkID, "zero qty")
		return linkID, nil
	}
	if !m.posGate.TryRLock() {
		m.markUnsubmitted(linkID, "position updating")
		return linkID, nil
	}
	defer m.posGate.RUnlock()

	msg := gateway.NewOrderRequest(gateway.OpCreate, m.cfg.Now(), m.cfg.RecvWindow,
		req.args(m.cfg.Symbol, m.cfg.Category, linkID))
	if err := m.gw.Send(ctx, TradeChannel, msg); err != nil {
		return linkID, fmt.Errorf("create %s: %w", linkID, err)
	}
	m.mon.RecordOrderSent("create")
	m.log.LogOrder("create", linkID, map[string]interface{}{
		"side": string(req.Side), "type": string(req.OrderType), "qty": req.Qty.String(), "price": req.Price.String(),
	})
	return linkID, nil
}

// Amend 改单。总是发送；改后数量为 0 时同时记为 Unsubmitted。
func (m *Manager) Amend(ctx context.Context, req AmendRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	linkID := req.OrderLinkID
	if linkID == "" {
		linkID = m.linkIDFor(req.OrderID)
	}

	m.throttle.Wait()

	msg := gateway.NewOrderRequest(gateway.OpAmend, m.cfg.Now(), m.cfg.RecvWindow, req.args(m.cfg.Symbol, m.cfg.Category))
	if err := m.gw.Send(ctx, TradeChannel, msg); err != nil {
		return fmt.Errorf("amend %s: %w", linkID, err)
	}
	m.mon.RecordOrderSent("amend")
	if req.zeroQty() && linkID != "" {
		m.markUnsubmitted(linkID, "zero qty")
	}
	m.log.LogOrder("amend", linkID, map[string]interface{}{"qty": req.Qty.Decimal.String(), "price": req.Price.Decimal.String()})
	return nil
}

// Cancel 撤销活跃订单。link-id 不在活跃集合中时什么也不做。
func (m *Manager) Cancel(ctx context.Context, linkID string) error {
	o, ok := m.Order(linkID)
	if !ok || o.OrderID == "" {
		return nil
	}

	m.throttle.Wait()

	msg := gateway.NewOrderRequest(gateway.OpCancel, m.cfg.Now(), m.cfg.RecvWindow, gateway.CancelArgs{
		Category: m.cfg.Category,
		Symbol:   m.cfg.Symbol,
		OrderID:  o.OrderID,
	})
	if err := m.gw.Send(ctx, TradeChannel, msg); err != nil {
		return fmt.Errorf("cancel %s: %w", linkID, err)
	}
	m.mon.RecordOrderSent("cancel")
	m.log.LogOrder("cancel", linkID, map[string]interface{}{"order_id": o.OrderID})
	return nil
}

// CancelAll 对当前活跃订单的快照逐个撤单，每次独立限流。
func (m *Manager) CancelAll(ctx context.Context) error {
	var errs []error
	for _, linkID := range m.activeLinkIDs() {
		if err := m.Cancel(ctx, linkID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OrderStatus 返回订单最近一次状态；未知 link-id 返回 ("", false)。
func (m *Manager) OrderStatus(linkID string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.status[linkID]
	return st, ok
}

// ClearStatus 删除 link-id 的状态记录。
func (m *Manager) ClearStatus(linkID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.status, linkID)
}

// ActiveOrders 返回活跃订单快照，按 link-id 排序。
func (m *Manager) ActiveOrders() []Order {
	m.mu.RLock()
	out := make([]Order, 0, len(m.active))
	for _, o := range m.active {
		out = append(out, o)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b Order) int { return strings.Compare(a.LinkID, b.LinkID) })
	return out
}

func (m *Manager) HasActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active) > 0
}

// Order 按 link-id 查找活跃订单。
func (m *Manager) Order(linkID string) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.active[linkID]
	return o, ok
}

// Position 签名净仓位。
func (m *Manager) Position() decimal.Decimal { return m.pos.NetExposure() }

// LastSide 最近一笔成交的方向。
func (m *Manager) LastSide() string { return m.pos.LastSide() }

func (m *Manager) setStatus(linkID string, st Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[linkID] = st
}

func (m *Manager) markUnsubmitted(linkID, reason string) {
	m.setStatus(linkID, StatusUnsubmitted)
	m.mon.RecordOrderUnsubmitted()
	m.log.LogOrder("unsubmitted", linkID, map[string]interface{}{"reason": reason})
}

func (m *Manager) activeLinkIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *Manager) linkIDFor(orderID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, o := range m.active {
		if o.OrderID == orderID {
			return id
		}
	}
	return ""
}
