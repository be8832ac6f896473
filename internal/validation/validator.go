package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/imrishuroy/go-pos-cartflow/internal/checkout"
	"github.com/shopspring/decimal"
)

// New returns a configured validator. Decimal fields are exposed to the
// numeric tags (gte, gt, ...) as float64.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	v.RegisterTagNameFunc(jsonFieldName)

	// register struct-level validation for CheckoutRequest so the payment
	// fields match the chosen method.
	v.RegisterStructValidation(checkoutStructValidation, CheckoutRequest{})

	return v
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// jsonFieldName makes field errors report the JSON name the client sent.
func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

func checkoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CheckoutRequest)

	// cash is covered by the gte=0 tag on amount_paid
	switch req.Method {
	case checkout.MethodCard:
		if req.Card == nil {
			sl.ReportError(req.Card, "card", "Card", "card_details_required", "")
		}
	case checkout.MethodMobile:
		if req.Mobile == nil {
			sl.ReportError(req.Mobile, "mobile", "Mobile", "mobile_details_required", "")
		}
	case checkout.MethodMultiple:
		if req.CashAmount.Add(req.CardAmount).Add(req.MobileAmount).IsZero() {
			sl.ReportError(req.CashAmount, "cash_amount", "CashAmount", "split_amounts_required", "")
		}
		if req.CardAmount.IsPositive() && req.Card == nil {
			sl.ReportError(req.Card, "card", "Card", "card_details_required", "")
		}
		if req.MobileAmount.IsPositive() && req.Mobile == nil {
			sl.ReportError(req.Mobile, "mobile", "Mobile", "mobile_details_required", "")
		}
	}
}
