package validation

import (
	"github.com/imrishuroy/go-pos-cartflow/internal/cart"
	"github.com/imrishuroy/go-pos-cartflow/internal/checkout"
	"github.com/shopspring/decimal"
)

// CreateSessionRequest is the payload for POST /sessions
type CreateSessionRequest struct {
	CashierID string           `json:"cashier_id" validate:"required"`
	StoreID   string           `json:"store_id" validate:"required"`
	TenantID  string           `json:"tenant_id,omitempty"`
	TaxRate   *decimal.Decimal `json:"tax_rate,omitempty" validate:"omitempty,gte=0"` // register default, falls back to config
}

type ProductInput struct {
	ID        string          `json:"id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
	SKU       string          `json:"sku,omitempty"`
}

// AddLineRequest is the payload for POST /sessions/:id/lines
type AddLineRequest struct {
	Product  ProductInput `json:"product"`
	Quantity int          `json:"quantity" validate:"gte=0"` // 0 means 1
}

func (r AddLineRequest) Action() cart.AddLine {
	return cart.AddLine{
		Product: cart.Product{
			ID:        r.Product.ID,
			Name:      r.Product.Name,
			UnitPrice: r.Product.UnitPrice,
			SKU:       r.Product.SKU,
		},
		Quantity: r.Quantity,
	}
}

// UpdateQuantityRequest may carry zero or a negative quantity; both remove the line.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type LineDiscountRequest struct {
	Percent *decimal.Decimal `json:"percent" validate:"required"`
}

type CartDiscountRequest struct {
	Type  string           `json:"type" validate:"required,oneof=percentage fixed"`
	Value *decimal.Decimal `json:"value" validate:"required"`
}

type TaxRateRequest struct {
	Rate *decimal.Decimal `json:"rate" validate:"required"`
}

type CustomerRequest struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"max=200"`
}

type NotesRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type CardInput struct {
	Last4     string `json:"last4,omitempty" validate:"omitempty,len=4,numeric"`
	Type      string `json:"type,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type MobileInput struct {
	Provider  string `json:"provider" validate:"required"`
	Number    string `json:"number,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// CheckoutRequest is the payment outcome for POST /sessions/:id/checkout
type CheckoutRequest struct {
	Method     string          `json:"method" validate:"required,oneof=cash card mobile multiple"`
	AmountPaid decimal.Decimal `json:"amount_paid" validate:"gte=0"`
	Card       *CardInput      `json:"card,omitempty"`
	Mobile     *MobileInput    `json:"mobile,omitempty"`

	CashAmount   decimal.Decimal `json:"cash_amount" validate:"gte=0"`
	CardAmount   decimal.Decimal `json:"card_amount" validate:"gte=0"`
	MobileAmount decimal.Decimal `json:"mobile_amount" validate:"gte=0"`
}

func (r CheckoutRequest) Outcome() checkout.PaymentOutcome {
	p := checkout.PaymentOutcome{
		Method:       r.Method,
		AmountPaid:   r.AmountPaid,
		CashAmount:   r.CashAmount,
		CardAmount:   r.CardAmount,
		MobileAmount: r.MobileAmount,
	}
	if r.Card != nil {
		p.Card = &checkout.CardDetails{Last4: r.Card.Last4, Type: r.Card.Type, Reference: r.Card.Reference}
	}
	if r.Mobile != nil {
		p.Mobile = &checkout.MobileDetails{Provider: r.Mobile.Provider, Number: r.Mobile.Number, Reference: r.Mobile.Reference}
	}
	return p
}
