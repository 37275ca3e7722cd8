package inventory

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Tracker 维护签名净仓位：买入成交 +qty，卖出成交 -qty。
// 与 FIFO 配对队列无关，只是对同一成交流的简单折叠。
type Tracker struct {
	mu       sync.RWMutex
	net      decimal.Decimal
	lastSide string
	fills    int
}

// Apply 按成交方向累加数量，并记录最近一笔成交的方向。未知方向忽略。
func (t *Tracker) Apply(side string, qty decimal.Decimal) {
	var delta decimal.Decimal
	switch {
	case strings.EqualFold(side, "Buy"):
		delta = qty
	case strings.EqualFold(side, "Sell"):
		delta = qty.Neg()
	default:
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.net = t.net.Add(delta)
	t.lastSide = side
	t.fills++
}

func (t *Tracker) NetExposure() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.net
}

// LastSide 最近一笔成交的方向，尚无成交时为空。
func (t *Tracker) LastSide() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSide
}

func (t *Tracker) Fills() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fills
}
