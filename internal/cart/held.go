package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// HeldLine is the raw, non-derived part of a line kept in a held sale.
type HeldLine struct {
	Product         Product         `json:"product"`
	Quantity        int             `json:"quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Notes           string          `json:"notes,omitempty"`
}

// HeldSale is a parked cart snapshot. Derived totals are not stored; Restore
// recomputes them.
type HeldSale struct {
	HoldID    string          `json:"hold_id"`
	StoreID   string          `json:"store_id"`
	CashierID string          `json:"cashier_id,omitempty"`
	Lines     []HeldLine      `json:"lines"`
	Customer  *Customer       `json:"customer,omitempty"`
	Discount  Discount        `json:"discount"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Notes     string          `json:"notes,omitempty"`
	HeldAt    time.Time       `json:"held_at"`

	// Display-only copy of the grand total at hold time.
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// Hold builds a HeldSale from the current state.
func Hold(s State, holdID, storeID, cashierID string, at time.Time) HeldSale {
	lines := make([]HeldLine, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, HeldLine{
			Product:         l.Product,
			Quantity:        l.Quantity,
			DiscountPercent: l.DiscountPercent,
			Notes:           l.Notes,
		})
	}
	var customer *Customer
	if s.Customer != nil {
		c := *s.Customer
		customer = &c
	}
	return HeldSale{
		HoldID:     holdID,
		StoreID:    storeID,
		CashierID:  cashierID,
		Lines:      lines,
		Customer:   customer,
		Discount:   s.Discount,
		TaxRate:    s.TaxRate,
		Notes:      s.Notes,
		HeldAt:     at,
		GrandTotal: s.Totals.GrandTotal,
	}
}

// Restore rebuilds a cart from a held sale by replaying AddLine for each
// line. Replay alone would drop line discounts and notes, the cart discount,
// the tax rate, the customer and the notes, so those are re-applied as
// explicit actions afterwards.
func Restore(h HeldSale) State {
	s := EmptyState()
	for _, l := range h.Lines {
		if l.Quantity <= 0 {
			continue
		}
		s = Reduce(s, AddLine{Product: l.Product, Quantity: l.Quantity})
	}
	for _, l := range h.Lines {
		s = Apply(s,
			SetLineDiscount{ProductID: l.Product.ID, Percent: l.DiscountPercent},
			SetLineNotes{ProductID: l.Product.ID, Notes: l.Notes},
		)
	}
	s = Apply(s,
		SetCartDiscount{Type: h.Discount.Type, Value: h.Discount.Value},
		SetTaxRate{Rate: h.TaxRate},
		SetNotes{Notes: h.Notes},
		SetHoldID{HoldID: h.HoldID},
	)
	if h.Customer != nil {
		s = Reduce(s, SetCustomer{ID: h.Customer.ID, Name: h.Customer.Name})
	}
	return s
}
