package posttrade

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bybit-oms/gateway"
)

// Fees 是 maker/taker 费率（小数，如 0.0002 表示 0.02%）。
type Fees struct {
	Maker decimal.Decimal `yaml:"maker"`
	Taker decimal.Decimal `yaml:"taker"`
}

func (f Fees) rate(maker bool) decimal.Decimal {
	if maker {
		return f.Maker
	}
	return f.Taker
}

// Fill 是进入 FIFO 队列的一笔成交。
type Fill struct {
	Side    string
	Price   decimal.Decimal
	Qty     decimal.Decimal
	IsMaker bool
	Time    time.Time
}

func FillFromExecution(e gateway.Execution) Fill {
	return Fill{
		Side:    e.Side,
		Price:   e.Price.Decimal,
		Qty:     e.Qty.Decimal,
		IsMaker: e.IsMaker,
		Time:    e.ExecTime.Time(),
	}
}

// Match 是一次买卖配对的结果。
type Match struct {
	Qty       decimal.Decimal
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
	BuyFee    decimal.Decimal
	SellFee   decimal.Decimal
	Net       decimal.Decimal
}

// Metrics 是会话累计指标。
type Metrics struct {
	PnL      decimal.Decimal
	Peak     decimal.Decimal
	Drawdown decimal.Decimal
	Matched  int
	Wins     int
	OpenBuy  decimal.Decimal // 未配对买入数量
	OpenSell decimal.Decimal // 未配对卖出数量
}

// WinRate 返回 wins/matched；尚无配对时 ok=false。
func (m Metrics) WinRate() (rate float64, ok bool) {
	if m.Matched == 0 {
		return 0, false
	}
	return float64(m.Wins) / float64(m.Matched), true
}

type lot struct {
	price   decimal.Decimal
	qty     decimal.Decimal
	isMaker bool
}

// Ledger 按 FIFO 把买入与卖出成交配对，累计扣除手续费后的已实现盈亏。
//
// 任意时刻买卖两个队列至少有一个为空，且非空队列的队首剩余数量大于 0。
type Ledger struct {
	mu    sync.Mutex
	fees  Fees
	buys  []lot
	sells []lot
	m     Metrics
}

func NewLedger(fees Fees) *Ledger {
	return &Ledger{fees: fees}
}

// SetFees 替换费率，只影响之后的配对。
func (l *Ledger) SetFees(f Fees) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fees = f
}

func (l *Ledger) Fees() Fees {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fees
}

// Apply 把一批成交按时间稳定排序后入队并尽可能配对，返回本批产生的配对。
// 数量为 0 或方向未知的成交被忽略。
func (l *Ledger) Apply(fills []Fill) []Match {
	batch := slices.Clone(fills)
	slices.SortStableFunc(batch, func(a, b Fill) int { return cmp.Compare(a.Time.UnixNano(), b.Time.UnixNano()) })

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range batch {
		if !f.Qty.IsPositive() {
			continue
		}
		lt := lot{price: f.Price, qty: f.Qty, isMaker: f.IsMaker}
		switch {
		case strings.EqualFold(f.Side, "Buy"):
			l.buys = append(l.buys, lt)
		case strings.EqualFold(f.Side, "Sell"):
			l.sells = append(l.sells, lt)
		}
	}
	return l.matchLocked()
}

func (l *Ledger) matchLocked() []Match {
	var out []Match
	for len(l.buys) > 0 && len(l.sells) > 0 {
		b, s := &l.buys[0], &l.sells[0]
		q := decimal.Min(b.qty, s.qty)
		match := Match{Qty: q, BuyPrice: b.price, SellPrice: s.price}

		vb := q.Mul(b.price)
		vs := q.Mul(s.price)
		cb := vb.Mul(l.fees.rate(b.isMaker))
		cs := vs.Mul(l.fees.rate(s.isMaker))
		net := vs.Sub(vb).Sub(cb).Sub(cs)

		l.m.PnL = l.m.PnL.Add(net)
		l.m.Matched++
		if !net.IsNegative() {
			l.m.Wins++
		}

		b.qty = b.qty.Sub(q)
		s.qty = s.qty.Sub(q)
		if b.qty.IsZero() {
			l.buys = l.buys[1:]
		}
		if s.qty.IsZero() {
			l.sells = l.sells[1:]
		}

		l.m.Peak = decimal.Max(l.m.Peak, l.m.PnL)
		l.m.Drawdown = decimal.Max(l.m.Drawdown, l.m.Peak.Sub(l.m.PnL))

		match.BuyFee, match.SellFee, match.Net = cb, cs, net
		out = append(out, match)
	}
	return out
}

// Snapshot 返回当前指标的拷贝。
func (l *Ledger) Snapshot() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.m
	m.OpenBuy = sumQty(l.buys)
	m.OpenSell = sumQty(l.sells)
	return m
}

func (l *Ledger) PnL() decimal.Decimal      { return l.Snapshot().PnL }
func (l *Ledger) PeakPnL() decimal.Decimal  { return l.Snapshot().Peak }
func (l *Ledger) Drawdown() decimal.Decimal { return l.Snapshot().Drawdown }

// WinRate 尚无配对时 ok=false。
func (l *Ledger) WinRate() (float64, bool) { return l.Snapshot().WinRate() }

func sumQty(lots []lot) decimal.Decimal {
	total := decimal.Zero
	for _, lt := range lots {
		total = total.Add(lt.qty)
	}
	return total
}
