package checkout

import (
	"errors"
	"time"

	"github.com/imrishuroy/go-pos-cartflow/internal/cart"
	"github.com/shopspring/decimal"
)

// Payment methods. MethodMultiple is what the payment step reports for a
// split tender; it is stored on the transaction as MethodSplit.
const (
	MethodCash     = "cash"
	MethodCard     = "card"
	MethodMobile   = "mobile"
	MethodMultiple = "multiple"
	MethodSplit    = "split"
)

// Transaction statuses
const (
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
	StatusCancelled = "cancelled"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInsufficientPayment  = errors.New("amount paid is less than grand total")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrCheckoutInProgress   = errors.New("checkout already in progress")
	ErrPersistenceFailed    = errors.New("transaction was not persisted")
)

type CardDetails struct {
	Last4     string `json:"last4,omitempty"`
	Type      string `json:"type,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type MobileDetails struct {
	Provider  string `json:"provider,omitempty"`
	Number    string `json:"number,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// PaymentOutcome is what the payment step hands to checkout. For
// MethodMultiple the per-method amounts are used and AmountPaid is ignored.
type PaymentOutcome struct {
	Method     string          `json:"method"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Card       *CardDetails    `json:"card,omitempty"`
	Mobile     *MobileDetails  `json:"mobile,omitempty"`

	CashAmount   decimal.Decimal `json:"cash_amount"`
	CardAmount   decimal.Decimal `json:"card_amount"`
	MobileAmount decimal.Decimal `json:"mobile_amount"`
}

// SplitTotal sums the per-method amounts of a split tender.
func (p PaymentOutcome) SplitTotal() decimal.Decimal {
	return p.CashAmount.Add(p.CardAmount).Add(p.MobileAmount)
}

// SplitPayment is one tender of a split transaction.
type SplitPayment struct {
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
}

// PaymentDetails carries method-specific metadata.
type PaymentDetails struct {
	Card   *CardDetails   `json:"card,omitempty"`
	Mobile *MobileDetails `json:"mobile,omitempty"`
}

// Meta identifies who rang up the sale and where.
type Meta struct {
	CashierID string `json:"cashier_id,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	StoreID   string `json:"store_id,omitempty"`
}

// Transaction is the frozen record of a completed sale. None of its monetary
// fields are recomputed after assembly.
type Transaction struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	CreatedAt time.Time `json:"created_at"`

	Lines []cart.Line `json:"lines"`

	Subtotal       decimal.Decimal   `json:"subtotal"`
	DiscountType   cart.DiscountType `json:"discount_type"`
	DiscountValue  decimal.Decimal   `json:"discount_value"`
	DiscountAmount decimal.Decimal   `json:"discount_amount"`
	TaxRate        decimal.Decimal   `json:"tax_rate"`
	TaxAmount      decimal.Decimal   `json:"tax_amount"`
	GrandTotal     decimal.Decimal   `json:"grand_total"`
	AmountPaid     decimal.Decimal   `json:"amount_paid"`
	Change         decimal.Decimal   `json:"change"`

	PaymentMethod  string         `json:"payment_method"`
	PaymentDetails PaymentDetails `json:"payment_details"`
	SplitPayments  []SplitPayment `json:"split_payments,omitempty"`

	Customer *cart.Customer `json:"customer,omitempty"`
	Meta
	Notes  string `json:"notes,omitempty"`
	Status string `json:"status"`
}
