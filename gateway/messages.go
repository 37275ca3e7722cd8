package gateway

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const (
	// OrderTopic 订单推送 topic。
	OrderTopic = "order"
	// ExecutionTopicPrefix 快速成交推送 topic 前缀，完整 topic 为 execution.fast.<category>。
	ExecutionTopicPrefix = "execution.fast."
)

// ExecutionTopic 返回某品类的快速成交 topic。
func ExecutionTopic(category string) string { return ExecutionTopicPrefix + category }

// Envelope 是所有入站消息的外层结构；控制回报与数据推送共用。
type Envelope struct {
	Topic   string          `json:"topic"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetCode *int            `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Message string          `json:"ret_msg"`
	Data    json.RawMessage `json:"data"`
}

// ParseEnvelope 解析外层结构。
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Rejection 在 success=false 或 retCode 非零时返回协议拒绝错误，否则返回 nil。
func (e Envelope) Rejection(channel string) error {
	if e.Success != nil && !*e.Success {
		return Rejection(channel, 0, e.reason())
	}
	if e.RetCode != nil && *e.RetCode != 0 {
		return Rejection(channel, *e.RetCode, e.reason())
	}
	return nil
}

// IsControl 判断是否为 auth/subscribe/ping/pong 控制回报。
func (e Envelope) IsControl() bool {
	switch e.Op {
	case OpAuth, OpSubscribe, OpPing, OpPong:
		return true
	}
	return false
}

func (e Envelope) reason() string {
	msg := e.RetMsg
	if msg == "" {
		msg = e.Message
	}
	if e.Op != "" {
		return e.Op + " " + msg
	}
	return msg
}

// Num 是容忍空字符串的十进制字段（交易所以字符串下发数值，缺省时为 ""）。
type Num struct {
	decimal.Decimal
}

func NewNum(s string) Num { return Num{Decimal: decimal.RequireFromString(s)} }

func (n *Num) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		n.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("decode number %q: %w", s, err)
	}
	n.Decimal = d
	return nil
}

// Millis 是毫秒时间戳，兼容字符串与数字两种编码。
type Millis int64

func (m *Millis) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("decode millis %q: %w", s, err)
	}
	*m = Millis(v)
	return nil
}

func (m Millis) Time() time.Time { return time.UnixMilli(int64(m)) }

// OrderEvent 是订单推送中的一条订单快照。
type OrderEvent struct {
	Symbol      string `json:"symbol"`
	Category    string `json:"category"`
	Side        string `json:"side"`
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	OrderType   string `json:"orderType"`
	OrderStatus string `json:"orderStatus"`
	Price       Num    `json:"price"`
	Qty         Num    `json:"qty"`
	LeavesQty   Num    `json:"leavesQty"`
	CumExecQty  Num    `json:"cumExecQty"`
	UpdatedTime Millis `json:"updatedTime"`
}

// Execution 是一笔成交，观察后不可变。
type Execution struct {
	Symbol      string `json:"symbol"`
	Category    string `json:"category"`
	Side        string `json:"side"`
	ExecID      string `json:"execId"`
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Price       Num    `json:"execPrice"`
	Qty         Num    `json:"execQty"`
	IsMaker     bool   `json:"isMaker"`
	ExecTime    Millis `json:"execTime"`
	Seq         int64  `json:"seq"`
}

// IsBuy 判断成交方向。
func (e Execution) IsBuy() bool { return strings.EqualFold(e.Side, "Buy") }

// IsSell 判断成交方向。
func (e Execution) IsSell() bool { return strings.EqualFold(e.Side, "Sell") }

// DecodeOrders 取出属于 symbol/category 的订单，按 updatedTime 升序排列。
func DecodeOrders(env Envelope, channel, symbol, category string) ([]OrderEvent, error) {
	if env.Topic != OrderTopic {
		return nil, Irrelevant(channel, nil)
	}
	var data []OrderEvent
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, Irrelevant(channel, err)
	}
	out := filterSorted(data,
		func(o OrderEvent) bool { return o.Symbol == symbol && o.Category == category },
		func(o OrderEvent) int64 { return int64(o.UpdatedTime) },
	)
	if len(out) == 0 {
		return nil, Irrelevant(channel, nil)
	}
	return out, nil
}

// DecodeExecutions 取出属于 symbol/category 的成交，按 execTime 升序排列。
func DecodeExecutions(env Envelope, channel, symbol, category string) ([]Execution, error) {
	if env.Topic != ExecutionTopic(category) {
		return nil, Irrelevant(channel, nil)
	}
	var data []Execution
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, Irrelevant(channel, err)
	}
	out := filterSorted(data,
		func(e Execution) bool { return e.Symbol == symbol && e.Category == category },
		func(e Execution) int64 { return int64(e.ExecTime) },
	)
	if len(out) == 0 {
		return nil, Irrelevant(channel, nil)
	}
	return out, nil
}

// SortExecutions 按 execTime 稳定升序排序（原地）。
func SortExecutions(execs []Execution) {
	slices.SortStableFunc(execs, func(a, b Execution) int {
		return cmp.Compare(a.ExecTime, b.ExecTime)
	})
}

func filterSorted[T any](items []T, keep func(T) bool, ts func(T) int64) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	slices.SortStableFunc(out, func(a, b T) int { return cmp.Compare(ts(a), ts(b)) })
	return out
}
