package cart

import "github.com/shopspring/decimal"

// Action is a cart mutation handled by Reduce.
type Action interface {
	isAction()
}

// AddLine increments the product's line or appends a new one. A zero
// Quantity means 1; the sign is the caller's responsibility.
type AddLine struct {
	Product  Product
	Quantity int
}

// UpdateLineQuantity sets a line's quantity; values <= 0 remove the line.
type UpdateLineQuantity struct {
	ProductID string
	Quantity  int
}

type RemoveLine struct {
	ProductID string
}

// ClearCart resets to EmptyState, including the tax rate.
type ClearCart struct{}

// SetLineDiscount sets a line discount percentage, clamped to [0, 100].
type SetLineDiscount struct {
	ProductID string
	Percent   decimal.Decimal
}

type RemoveLineDiscount struct {
	ProductID string
}

// SetCartDiscount sets the cart-level discount; Value is clamped to >= 0.
type SetCartDiscount struct {
	Type  DiscountType
	Value decimal.Decimal
}

type RemoveCartDiscount struct{}

type SetCustomer struct {
	ID   string
	Name string
}

type RemoveCustomer struct{}

type SetNotes struct {
	Notes string
}

type SetLineNotes struct {
	ProductID string
	Notes     string
}

// SetTaxRate sets the tax percentage. Negative rates become 0; rates above
// 100 are kept as given.
type SetTaxRate struct {
	Rate decimal.Decimal
}

// SetHoldID records the identifier a parked cart was stored under.
type SetHoldID struct {
	HoldID string
}

// BeginCheckout raises the processing flag. Reduce does not reject
// mutations while it is set; callers decide what to do with it.
type BeginCheckout struct{}

// CheckoutSucceeded resets the cart like ClearCart.
type CheckoutSucceeded struct{}

// CheckoutFailed lowers the processing flag. Reason is informational only.
type CheckoutFailed struct {
	Reason string
}

// Recalculate recomputes the totals without changing any raw field.
type Recalculate struct{}

func (AddLine) isAction()            {}
func (UpdateLineQuantity) isAction() {}
func (RemoveLine) isAction()         {}
func (ClearCart) isAction()          {}
func (SetLineDiscount) isAction()    {}
func (RemoveLineDiscount) isAction() {}
func (SetCartDiscount) isAction()    {}
func (RemoveCartDiscount) isAction() {}
func (SetCustomer) isAction()        {}
func (RemoveCustomer) isAction()     {}
func (SetNotes) isAction()           {}
func (SetLineNotes) isAction()       {}
func (SetTaxRate) isAction()         {}
func (SetHoldID) isAction()          {}
func (BeginCheckout) isAction()      {}
func (CheckoutSucceeded) isAction()  {}
func (CheckoutFailed) isAction()     {}
func (Recalculate) isAction()        {}

// Reduce applies an action to a copy of s and returns the result. The input
// state is never modified. Unknown product ids are silent no-ops.
func Reduce(s State, a Action) State {
	next := s.clone()

	switch a := a.(type) {
	case AddLine:
		qty := a.Quantity
		if qty == 0 {
			qty = 1
		}
		if i := next.indexOf(a.Product.ID); i >= 0 {
			next.Lines[i].Quantity += qty
		} else {
			next.Lines = append(next.Lines, Line{
				Product:         a.Product,
				Quantity:        qty,
				DiscountPercent: decimal.Zero,
			})
		}

	case UpdateLineQuantity:
		i := next.indexOf(a.ProductID)
		if i < 0 {
			return next
		}
		if a.Quantity <= 0 {
			next.Lines = removeAt(next.Lines, i)
		} else {
			next.Lines[i].Quantity = a.Quantity
		}

	case RemoveLine:
		if i := next.indexOf(a.ProductID); i >= 0 {
			next.Lines = removeAt(next.Lines, i)
		}

	case ClearCart, CheckoutSucceeded:
		next = EmptyState()

	case SetLineDiscount:
		if i := next.indexOf(a.ProductID); i >= 0 {
			next.Lines[i].DiscountPercent = clampPercent(a.Percent)
		}

	case RemoveLineDiscount:
		return Reduce(s, SetLineDiscount{ProductID: a.ProductID, Percent: decimal.Zero})

	case SetCartDiscount:
		t := a.Type
		if t != DiscountFixed {
			t = DiscountPercentage
		}
		next.Discount = Discount{Type: t, Value: clampNonNegative(a.Value)}

	case RemoveCartDiscount:
		next.Discount = Discount{Type: DiscountPercentage, Value: decimal.Zero}

	case SetCustomer:
		next.Customer = &Customer{ID: a.ID, Name: a.Name}
		return next

	case RemoveCustomer:
		next.Customer = nil
		return next

	case SetNotes:
		next.Notes = a.Notes
		return next

	case SetLineNotes:
		if i := next.indexOf(a.ProductID); i >= 0 {
			next.Lines[i].Notes = a.Notes
		}
		return next

	case SetTaxRate:
		next.TaxRate = clampNonNegative(a.Rate)

	case SetHoldID:
		next.HoldID = a.HoldID
		return next

	case BeginCheckout:
		next.Processing = true
		return next

	case CheckoutFailed:
		next.Processing = false
		return next

	case Recalculate:
	}

	next.recalculate()
	return next
}

// Apply folds a sequence of actions over s.
func Apply(s State, actions ...Action) State {
	for _, a := range actions {
		s = Reduce(s, a)
	}
	return s
}

func removeAt(lines []Line, i int) []Line {
	out := make([]Line, 0, len(lines)-1)
	out = append(out, lines[:i]...)
	return append(out, lines[i+1:]...)
}
