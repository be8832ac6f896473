package cart

import "github.com/shopspring/decimal"

// recalculate rewrites every derived field from the raw fields. The order is
// fixed: line discount, sum, cart discount, tax on the discounted amount,
// then the floor at zero.
func (s *State) recalculate() {
	subtotal := decimal.Zero
	for i := range s.Lines {
		l := &s.Lines[i]
		l.Subtotal = l.Product.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		l.DiscountAmount = l.Subtotal.Mul(l.DiscountPercent).Div(hundred)
		l.Total = l.Subtotal.Sub(l.DiscountAmount)
		subtotal = subtotal.Add(l.Total)
	}

	var discount decimal.Decimal
	switch s.Discount.Type {
	case DiscountFixed:
		// Not clamped to the subtotal: a fixed discount larger than the cart
		// yields a negative base and a negative tax before the final floor.
		discount = s.Discount.Value
	default:
		discount = subtotal.Mul(s.Discount.Value).Div(hundred)
	}

	after := subtotal.Sub(discount)
	tax := after.Mul(s.TaxRate).Div(hundred)
	grand := after.Add(tax)
	if grand.IsNegative() {
		grand = decimal.Zero
	}

	s.Totals = Totals{
		Subtotal:              subtotal,
		DiscountAmount:        discount,
		SubtotalAfterDiscount: after,
		TaxAmount:             tax,
		GrandTotal:            grand,
	}
}

func clampPercent(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(hundred) {
		return hundred
	}
	return v
}

func clampNonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
