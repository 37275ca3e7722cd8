package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SymbolConstraints 描述交易对的步长与名义限制。零值字段不做检查。
type SymbolConstraints struct {
	TickSize    decimal.Decimal
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	MinNotional decimal.Decimal
}

// Validate 检查订单价格/数量是否符合精度与最小名义。price 为 0（市价单）时跳过价格相关检查。
func (c SymbolConstraints) Validate(price, qty decimal.Decimal) error {
	if c.TickSize.IsPositive() && !price.IsZero() && !isMultiple(price, c.TickSize) {
		return fmt.Errorf("price %s not aligned to tickSize %s", price, c.TickSize)
	}
	if c.StepSize.IsPositive() && !isMultiple(qty, c.StepSize) {
		return fmt.Errorf("qty %s not aligned to stepSize %s", qty, c.StepSize)
	}
	if c.MinQty.IsPositive() && qty.LessThan(c.MinQty) {
		return fmt.Errorf("qty %s < minQty %s", qty, c.MinQty)
	}
	if c.MaxQty.IsPositive() && qty.GreaterThan(c.MaxQty) {
		return fmt.Errorf("qty %s > maxQty %s", qty, c.MaxQty)
	}
	if c.MinNotional.IsPositive() && !price.IsZero() {
		if n := price.Mul(qty); n.LessThan(c.MinNotional) {
			return fmt.Errorf("notional %s < minNotional %s", n, c.MinNotional)
		}
	}
	return nil
}

func isMultiple(value, step decimal.Decimal) bool {
	return value.Mod(step).IsZero()
}
