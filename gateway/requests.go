package gateway

import (
	"strconv"
	"time"
)

const (
	OpCreate = "order.create"
	OpAmend  = "order.amend"
	OpCancel = "order.cancel"

	// DefaultRecvWindow 交易所接受请求的时间窗口（毫秒）。
	DefaultRecvWindow = "8000"
)

// RequestHeader 随每个下单类请求发送。
type RequestHeader struct {
	Timestamp  string `json:"X-BAPI-TIMESTAMP"`
	RecvWindow string `json:"X-BAPI-RECV-WINDOW"`
}

// OrderRequest 是 trade 连接上的下单/改单/撤单请求。
type OrderRequest struct {
	Header RequestHeader `json:"header"`
	Op     string        `json:"op"`
	Args   []any         `json:"args"`
}

// NewOrderRequest 以 now 作为时间戳构造请求。
func NewOrderRequest(op string, now time.Time, recvWindow string, args any) OrderRequest {
	if recvWindow == "" {
		recvWindow = DefaultRecvWindow
	}
	return OrderRequest{
		Header: RequestHeader{
			Timestamp:  strconv.FormatInt(now.UnixMilli(), 10),
			RecvWindow: recvWindow,
		},
		Op:   op,
		Args: []any{args},
	}
}

// CreateArgs 是 order.create 的参数。
type CreateArgs struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	IsLeverage  int    `json:"isLeverage,omitempty"`
	PositionIdx int    `json:"positionIdx,omitempty"`
	OrderLinkID string `json:"orderLinkId"`
}

// AmendArgs 是 order.amend 的参数。
type AmendArgs struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	OrderID     string `json:"orderId,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
	Qty         string `json:"qty,omitempty"`
	Price       string `json:"price,omitempty"`
}

// CancelArgs 是 order.cancel 的参数。
type CancelArgs struct {
	Category string `json:"category"`
	Symbol   string `json:"symbol"`
	OrderID  string `json:"orderId"`
}

// TradeAck 是 trade 连接对下单类请求的回报数据。
type TradeAck struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}
