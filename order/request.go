package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bybit-oms/gateway"
)

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

type OrderType string

const (
	TypeLimit  OrderType = "Limit"
	TypeMarket OrderType = "Market"
)

// CreateRequest 是一次下单意图。symbol/category 由 Manager 补齐。
// Qty 为 0 是合法的：订单会被记为 Unsubmitted 而不发送。
type CreateRequest struct {
	Side        Side
	OrderType   OrderType
	Qty         decimal.Decimal
	Price       decimal.Decimal // Limit 必填
	TimeInForce string
	ReduceOnly  bool
	IsLeverage  int
	PositionIdx int
	OrderLinkID string // 为空时自动生成
}

func (r CreateRequest) Validate() error {
	switch r.Side {
	case SideBuy, SideSell:
	default:
		return fmt.Errorf("%w: side %q", gateway.ErrInvalidRequest, r.Side)
	}
	switch r.OrderType {
	case TypeLimit:
		if !r.Price.IsPositive() {
			return fmt.Errorf("%w: limit order needs a positive price", gateway.ErrInvalidRequest)
		}
	case TypeMarket:
	default:
		return fmt.Errorf("%w: order type %q", gateway.ErrInvalidRequest, r.OrderType)
	}
	if r.Qty.IsNegative() {
		return fmt.Errorf("%w: negative qty %s", gateway.ErrInvalidRequest, r.Qty)
	}
	return nil
}

func (r CreateRequest) args(symbol, category, linkID string) gateway.CreateArgs {
	a := gateway.CreateArgs{
		Category:    category,
		Symbol:      symbol,
		Side:        string(r.Side),
		OrderType:   string(r.OrderType),
		Qty:         r.Qty.String(),
		TimeInForce: r.TimeInForce,
		ReduceOnly:  r.ReduceOnly,
		IsLeverage:  r.IsLeverage,
		PositionIdx: r.PositionIdx,
		OrderLinkID: linkID,
	}
	if r.OrderType == TypeLimit {
		a.Price = r.Price.String()
	}
	return a
}

// AmendRequest 修改一张活跃订单的数量或价格。未设置（Valid=false）的字段保持不变。
type AmendRequest struct {
	OrderLinkID string
	OrderID     string
	Qty         decimal.NullDecimal
	Price       decimal.NullDecimal
}

func (r AmendRequest) Validate() error {
	if r.OrderLinkID == "" && r.OrderID == "" {
		return fmt.Errorf("%w: amend needs orderLinkId or orderId", gateway.ErrInvalidRequest)
	}
	if !r.Qty.Valid && !r.Price.Valid {
		return fmt.Errorf("%w: amend changes nothing", gateway.ErrInvalidRequest)
	}
	if r.Qty.Valid && r.Qty.Decimal.IsNegative() {
		return fmt.Errorf("%w: negative qty %s", gateway.ErrInvalidRequest, r.Qty.Decimal)
	}
	if r.Price.Valid && !r.Price.Decimal.IsPositive() {
		return fmt.Errorf("%w: non-positive price %s", gateway.ErrInvalidRequest, r.Price.Decimal)
	}
	return nil
}

// zeroQty 报告改单后数量是否为 0。
func (r AmendRequest) zeroQty() bool { return r.Qty.Valid && r.Qty.Decimal.IsZero() }

func (r AmendRequest) args(symbol, category string) gateway.AmendArgs {
	a := gateway.AmendArgs{
		Category:    category,
		Symbol:      symbol,
		OrderID:     r.OrderID,
		OrderLinkID: r.OrderLinkID,
	}
	if r.Qty.Valid {
		a.Qty = r.Qty.Decimal.String()
	}
	if r.Price.Valid {
		a.Price = r.Price.Decimal.String()
	}
	return a
}
