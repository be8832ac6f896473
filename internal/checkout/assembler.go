package checkout

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/go-pos-cartflow/internal/cart"
	"github.com/shopspring/decimal"
)

// Numberer hands out human-readable transaction numbers. The sequence is
// process-wide, so numbers are unique within a running service even when two
// sales share the same second.
type Numberer struct {
	seq atomic.Uint64
}

func (n *Numberer) Next(at time.Time) string {
	return fmt.Sprintf("TRX-%s-%04d", at.UTC().Format("20060102-150405"), n.seq.Add(1))
}

// Assembler freezes a cart and a payment outcome into a Transaction.
type Assembler struct {
	numbers *Numberer
	nowFunc func() time.Time
	newID   func() string
}

func NewAssembler() *Assembler {
	return &Assembler{
		numbers: &Numberer{},
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// ValidateTender checks that a payment covers the grand total. The assembler
// itself does not enforce this; callers run it first. Card and mobile
// payments are treated as exact tender.
func ValidateTender(grandTotal decimal.Decimal, p PaymentOutcome) error {
	switch p.Method {
	case MethodCash:
		if p.AmountPaid.LessThan(grandTotal) {
			return fmt.Errorf("%w: paid %s, due %s", ErrInsufficientPayment, p.AmountPaid, grandTotal)
		}
	case MethodCard, MethodMobile:
	case MethodMultiple:
		if paid := p.SplitTotal(); paid.LessThan(grandTotal) {
			return fmt.Errorf("%w: paid %s, due %s", ErrInsufficientPayment, paid, grandTotal)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, p.Method)
	}
	return nil
}

// Assemble builds the Transaction. Lines are deep-copied and the monetary
// fields are taken verbatim from the cart's derived totals.
func (a *Assembler) Assemble(s cart.State, p PaymentOutcome, meta Meta) (Transaction, error) {
	if s.IsEmpty() {
		return Transaction{}, ErrEmptyCart
	}

	now := a.nowFunc().UTC()
	tx := Transaction{
		ID:             a.newID(),
		Number:         a.numbers.Next(now),
		CreatedAt:      now,
		Lines:          s.CloneLines(),
		Subtotal:       s.Totals.Subtotal,
		DiscountType:   s.Discount.Type,
		DiscountValue:  s.Discount.Value,
		DiscountAmount: s.Totals.DiscountAmount,
		TaxRate:        s.TaxRate,
		TaxAmount:      s.Totals.TaxAmount,
		GrandTotal:     s.Totals.GrandTotal,
		Meta:           meta,
		Notes:          s.Notes,
		Status:         StatusCompleted,
	}
	if s.Customer != nil {
		c := *s.Customer
		tx.Customer = &c
	}

	switch p.Method {
	case MethodCash:
		tx.PaymentMethod = MethodCash
		tx.AmountPaid = p.AmountPaid
		tx.Change = p.AmountPaid.Sub(tx.GrandTotal)
	case MethodCard:
		tx.PaymentMethod = MethodCard
		tx.AmountPaid = tx.GrandTotal
		tx.Change = decimal.Zero
		tx.PaymentDetails.Card = copyCard(p.Card)
	case MethodMobile:
		tx.PaymentMethod = MethodMobile
		tx.AmountPaid = tx.GrandTotal
		tx.Change = decimal.Zero
		tx.PaymentDetails.Mobile = copyMobile(p.Mobile)
	case MethodMultiple:
		tx.PaymentMethod = MethodSplit
		tx.SplitPayments = splitPayments(p)
		tx.AmountPaid = p.SplitTotal()
		tx.Change = decimal.Max(decimal.Zero, tx.AmountPaid.Sub(tx.GrandTotal))
		tx.PaymentDetails = PaymentDetails{Card: copyCard(p.Card), Mobile: copyMobile(p.Mobile)}
	default:
		return Transaction{}, fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, p.Method)
	}

	return tx, nil
}

// splitPayments lists the positive parts of a split tender in cash, card,
// mobile order.
func splitPayments(p PaymentOutcome) []SplitPayment {
	out := make([]SplitPayment, 0, 3)
	if p.CashAmount.IsPositive() {
		out = append(out, SplitPayment{Method: MethodCash, Amount: p.CashAmount})
	}
	if p.CardAmount.IsPositive() {
		sp := SplitPayment{Method: MethodCard, Amount: p.CardAmount}
		if p.Card != nil {
			sp.Reference = p.Card.Reference
		}
		out = append(out, sp)
	}
	if p.MobileAmount.IsPositive() {
		sp := SplitPayment{Method: MethodMobile, Amount: p.MobileAmount}
		if p.Mobile != nil {
			sp.Reference = p.Mobile.Reference
		}
		out = append(out, sp)
	}
	return out
}

func copyCard(c *CardDetails) *CardDetails {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func copyMobile(m *MobileDetails) *MobileDetails {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}
