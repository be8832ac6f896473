package transactions

import (
	"fmt"
	"time"

	"github.com/imrishuroy/go-pos-cartflow/internal/cart"
	"github.com/imrishuroy/go-pos-cartflow/internal/checkout"
	"github.com/shopspring/decimal"
)

// Record represents the item stored in the Transactions DynamoDB table.
// Money is stored as decimal strings so amounts survive the round trip exactly.
type Record struct {
	TransactionID  string        `dynamodbav:"transaction_id"`
	Number         string        `dynamodbav:"number"`
	Status         string        `dynamodbav:"status"`
	Lines          []LineRecord  `dynamodbav:"lines"`
	Subtotal       string        `dynamodbav:"subtotal"`
	DiscountType   string        `dynamodbav:"discount_type"`
	DiscountValue  string        `dynamodbav:"discount_value"`
	DiscountAmount string        `dynamodbav:"discount_amount"`
	TaxRate        string        `dynamodbav:"tax_rate"`
	TaxAmount      string        `dynamodbav:"tax_amount"`
	GrandTotal     string        `dynamodbav:"grand_total"`
	AmountPaid     string        `dynamodbav:"amount_paid"`
	Change         string        `dynamodbav:"change"`
	PaymentMethod  string        `dynamodbav:"payment_method"`
	Card           *CardRecord   `dynamodbav:"card,omitempty"`
	Mobile         *MobileRecord `dynamodbav:"mobile,omitempty"`
	SplitPayments  []SplitRecord `dynamodbav:"split_payments,omitempty"`
	CustomerID     string        `dynamodbav:"customer_id,omitempty"`
	CustomerName   string        `dynamodbav:"customer_name,omitempty"`
	CashierID      string        `dynamodbav:"cashier_id,omitempty"`
	TenantID       string        `dynamodbav:"tenant_id,omitempty"`
	StoreID        string        `dynamodbav:"store_id,omitempty"`
	Notes          string        `dynamodbav:"notes,omitempty"`
	CreatedAt      time.Time     `dynamodbav:"created_at"`
	UpdatedAt      time.Time     `dynamodbav:"updated_at"`
}

type LineRecord struct {
	ProductID       string `dynamodbav:"product_id"`
	Name            string `dynamodbav:"name"`
	SKU             string `dynamodbav:"sku,omitempty"`
	UnitPrice       string `dynamodbav:"unit_price"`
	Quantity        int    `dynamodbav:"quantity"`
	DiscountPercent string `dynamodbav:"discount_percent"`
	Subtotal        string `dynamodbav:"subtotal"`
	DiscountAmount  string `dynamodbav:"discount_amount"`
	Total           string `dynamodbav:"total"`
	Notes           string `dynamodbav:"notes,omitempty"`
}

type CardRecord struct {
	Last4     string `dynamodbav:"last4,omitempty"`
	Type      string `dynamodbav:"type,omitempty"`
	Reference string `dynamodbav:"reference,omitempty"`
}

type MobileRecord struct {
	Provider  string `dynamodbav:"provider,omitempty"`
	Number    string `dynamodbav:"number,omitempty"`
	Reference string `dynamodbav:"reference,omitempty"`
}

type SplitRecord struct {
	Method    string `dynamodbav:"method"`
	Amount    string `dynamodbav:"amount"`
	Reference string `dynamodbav:"reference,omitempty"`
}

func toRecord(tx checkout.Transaction) Record {
	r := Record{
		TransactionID:  tx.ID,
		Number:         tx.Number,
		Status:         tx.Status,
		Lines:          make([]LineRecord, 0, len(tx.Lines)),
		Subtotal:       tx.Subtotal.String(),
		DiscountType:   string(tx.DiscountType),
		DiscountValue:  tx.DiscountValue.String(),
		DiscountAmount: tx.DiscountAmount.String(),
		TaxRate:        tx.TaxRate.String(),
		TaxAmount:      tx.TaxAmount.String(),
		GrandTotal:     tx.GrandTotal.String(),
		AmountPaid:     tx.AmountPaid.String(),
		Change:         tx.Change.String(),
		PaymentMethod:  tx.PaymentMethod,
		CashierID:      tx.CashierID,
		TenantID:       tx.TenantID,
		StoreID:        tx.StoreID,
		Notes:          tx.Notes,
		CreatedAt:      tx.CreatedAt,
	}
	for _, l := range tx.Lines {
		r.Lines = append(r.Lines, LineRecord{
			ProductID:       l.Product.ID,
			Name:            l.Product.Name,
			SKU:             l.Product.SKU,
			UnitPrice:       l.Product.UnitPrice.String(),
			Quantity:        l.Quantity,
			DiscountPercent: l.DiscountPercent.String(),
			Subtotal:        l.Subtotal.String(),
			DiscountAmount:  l.DiscountAmount.String(),
			Total:           l.Total.String(),
			Notes:           l.Notes,
		})
	}
	if c := tx.PaymentDetails.Card; c != nil {
		r.Card = &CardRecord{Last4: c.Last4, Type: c.Type, Reference: c.Reference}
	}
	if m := tx.PaymentDetails.Mobile; m != nil {
		r.Mobile = &MobileRecord{Provider: m.Provider, Number: m.Number, Reference: m.Reference}
	}
	for _, sp := range tx.SplitPayments {
		r.SplitPayments = append(r.SplitPayments, SplitRecord{Method: sp.Method, Amount: sp.Amount.String(), Reference: sp.Reference})
	}
	if tx.Customer != nil {
		r.CustomerID = tx.Customer.ID
		r.CustomerName = tx.Customer.Name
	}
	return r
}

func (r Record) toTransaction() (checkout.Transaction, error) {
	p := moneyParser{}
	tx := checkout.Transaction{
		ID:             r.TransactionID,
		Number:         r.Number,
		CreatedAt:      r.CreatedAt,
		Lines:          make([]cart.Line, 0, len(r.Lines)),
		Subtotal:       p.parse("subtotal", r.Subtotal),
		DiscountType:   cart.DiscountType(r.DiscountType),
		DiscountValue:  p.parse("discount_value", r.DiscountValue),
		DiscountAmount: p.parse("discount_amount", r.DiscountAmount),
		TaxRate:        p.parse("tax_rate", r.TaxRate),
		TaxAmount:      p.parse("tax_amount", r.TaxAmount),
		GrandTotal:     p.parse("grand_total", r.GrandTotal),
		AmountPaid:     p.parse("amount_paid", r.AmountPaid),
		Change:         p.parse("change", r.Change),
		PaymentMethod:  r.PaymentMethod,
		Meta:           checkout.Meta{CashierID: r.CashierID, TenantID: r.TenantID, StoreID: r.StoreID},
		Notes:          r.Notes,
		Status:         r.Status,
	}
	for _, l := range r.Lines {
		tx.Lines = append(tx.Lines, cart.Line{
			Product: cart.Product{
				ID:        l.ProductID,
				Name:      l.Name,
				SKU:       l.SKU,
				UnitPrice: p.parse("unit_price", l.UnitPrice),
			},
			Quantity:        l.Quantity,
			DiscountPercent: p.parse("discount_percent", l.DiscountPercent),
			Notes:           l.Notes,
			Subtotal:        p.parse("line subtotal", l.Subtotal),
			DiscountAmount:  p.parse("line discount_amount", l.DiscountAmount),
			Total:           p.parse("line total", l.Total),
		})
	}
	if c := r.Card; c != nil {
		tx.PaymentDetails.Card = &checkout.CardDetails{Last4: c.Last4, Type: c.Type, Reference: c.Reference}
	}
	if m := r.Mobile; m != nil {
		tx.PaymentDetails.Mobile = &checkout.MobileDetails{Provider: m.Provider, Number: m.Number, Reference: m.Reference}
	}
	for _, sp := range r.SplitPayments {
		tx.SplitPayments = append(tx.SplitPayments, checkout.SplitPayment{
			Method:    sp.Method,
			Amount:    p.parse("split amount", sp.Amount),
			Reference: sp.Reference,
		})
	}
	if r.CustomerID != "" {
		tx.Customer = &cart.Customer{ID: r.CustomerID, Name: r.CustomerName}
	}
	if p.err != nil {
		return checkout.Transaction{}, p.err
	}
	return tx, nil
}

// moneyParser keeps the first parse error so toTransaction can convert every
// field before checking.
type moneyParser struct {
	err error
}

func (p *moneyParser) parse(field, v string) decimal.Decimal {
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("parse %s %q: %w", field, v, err)
	}
	return d
}
