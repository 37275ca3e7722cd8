package order

import (
	"time"

	"github.com/shopspring/decimal"

	"bybit-oms/gateway"
)

// Status 是交易所回报的订单状态标签，不是严格的状态机：收到什么就记录什么。
type Status string

const (
	StatusUnset           Status = ""
	StatusUnsubmitted     Status = "Unsubmitted" // 本地未发送（数量为 0 或仓位正在更新）
	StatusNew             Status = "New"
	StatusPartiallyFilled Status = "PartiallyFilled"
	StatusFilled          Status = "Filled"
	StatusCancelled       Status = "Cancelled"
	StatusRejected        Status = "Rejected"
)

// Order 是活跃订单的本地视图。
type Order struct {
	LinkID    string
	OrderID   string
	Symbol    string
	Category  string
	Side      string
	OrderType string
	Price     decimal.Decimal
	Qty       decimal.Decimal
	Leaves    decimal.Decimal
	CumExec   decimal.Decimal
	Status    Status
	UpdatedAt time.Time
}

func fromEvent(ev gateway.OrderEvent) Order {
	return Order{
		LinkID:    ev.OrderLinkID,
		OrderID:   ev.OrderID,
		Symbol:    ev.Symbol,
		Category:  ev.Category,
		Side:      ev.Side,
		OrderType: ev.OrderType,
		Price:     ev.Price.Decimal,
		Qty:       ev.Qty.Decimal,
		Leaves:    ev.LeavesQty.Decimal,
		CumExec:   ev.CumExecQty.Decimal,
		Status:    Status(ev.OrderStatus),
		UpdatedAt: ev.UpdatedTime.Time(),
	}
}
