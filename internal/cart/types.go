package cart

import (
	"github.com/shopspring/decimal"
)

// DiscountType selects how a cart-level discount value is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

var hundred = decimal.NewFromInt(100)

// Product is the catalog descriptor a line is built from.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	SKU       string          `json:"sku,omitempty"`
}

// Line is one product entry in the cart. Subtotal, DiscountAmount and Total
// are derived and overwritten on every recalculation.
type Line struct {
	Product         Product         `json:"product"`
	Quantity        int             `json:"quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Notes           string          `json:"notes,omitempty"`

	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
}

// Customer links a cart to a loyalty/customer record.
type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Discount is the cart-level discount descriptor.
type Discount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// Totals holds the derived monetary values of a cart.
type Totals struct {
	Subtotal              decimal.Decimal `json:"subtotal"`
	DiscountAmount        decimal.Decimal `json:"discount_amount"`
	SubtotalAfterDiscount decimal.Decimal `json:"subtotal_after_discount"`
	TaxAmount             decimal.Decimal `json:"tax_amount"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
}

// State is the cart aggregate. It is only changed through Reduce.
type State struct {
	Lines      []Line          `json:"lines"`
	Customer   *Customer       `json:"customer,omitempty"`
	Discount   Discount        `json:"discount"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
	Notes      string          `json:"notes,omitempty"`
	HoldID     string          `json:"hold_id,omitempty"`
	Processing bool            `json:"processing"`
	Totals     Totals          `json:"totals"`
}

// EmptyState returns the initial cart: no lines, percentage discount of 0, tax rate 0.
func EmptyState() State {
	return State{
		Lines:    []Line{},
		Discount: Discount{Type: DiscountPercentage, Value: decimal.Zero},
		TaxRate:  decimal.Zero,
	}
}

// IsEmpty reports whether the cart has no lines.
func (s State) IsEmpty() bool {
	return len(s.Lines) == 0
}

// ItemCount is the sum of quantities over all lines.
func (s State) ItemCount() int {
	n := 0
	for _, l := range s.Lines {
		n += l.Quantity
	}
	return n
}

// Line returns the line for productID, if present.
func (s State) Line(productID string) (Line, bool) {
	if i := s.indexOf(productID); i >= 0 {
		return s.Lines[i], true
	}
	return Line{}, false
}

func (s State) indexOf(productID string) int {
	for i := range s.Lines {
		if s.Lines[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// clone copies the state so reducers never write through to the caller's value.
func (s State) clone() State {
	out := s
	out.Lines = make([]Line, len(s.Lines))
	copy(out.Lines, s.Lines)
	if s.Customer != nil {
		c := *s.Customer
		out.Customer = &c
	}
	return out
}

// CloneLines returns a copy of the cart lines that shares no memory with the state.
func (s State) CloneLines() []Line {
	out := make([]Line, len(s.Lines))
	copy(out, s.Lines)
	return out
}
