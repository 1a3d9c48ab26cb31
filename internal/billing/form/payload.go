package form

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/calc"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
)

var hundred = decimal.NewFromInt(100)

const msgTooPrecise = "Use at most 2 decimal places"

// tooPrecise reports whether d carries more digits than the numeric(.,2)
// columns can store.
func tooPrecise(d decimal.Decimal) bool {
	return !d.Equal(d.Round(calc.MoneyScale))
}

// PayloadValidator checks outbound wire payloads against their struct
// tags before they leave the drawer or after the server binds them.
type PayloadValidator struct {
	validate *validator.Validate
}

func NewPayloadValidator() *PayloadValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &PayloadValidator{validate: v}
}

// BillPayload validates a create/update body.
func (p *PayloadValidator) BillPayload(payload domain.BillPayload) FieldErrors {
	errs := p.structErrors(payload)
	if payload.BillDate.IsZero() {
		errs.add(FieldBillDate, "Bill date is required")
	}
	switch {
	case payload.DiscountPercent.IsNegative() || payload.DiscountPercent.GreaterThan(hundred):
		errs.add("discount_percent", "Discount must be between 0 and 100")
	case tooPrecise(payload.DiscountPercent):
		errs.add("discount_percent", msgTooPrecise)
	}
	switch {
	case payload.ReceivedAmount.IsNegative():
		errs.add("received_amount", "Amount cannot be negative")
	case tooPrecise(payload.ReceivedAmount):
		errs.add("received_amount", msgTooPrecise)
	}
	for i, item := range payload.Items {
		field := fmt.Sprintf("items[%d].unit_charge", i)
		switch {
		case item.UnitCharge.IsNegative():
			errs.add(field, "Charge cannot be negative")
		case tooPrecise(item.UnitCharge):
			errs.add(field, msgTooPrecise)
		}
	}
	return errs
}

// Payment validates a record-payment body.
func (p *PayloadValidator) Payment(req domain.PaymentRequest) FieldErrors {
	errs := p.structErrors(req)
	switch {
	case req.Amount.IsNegative():
		errs.add(FieldAmount, "Amount cannot be negative")
	case tooPrecise(req.Amount):
		errs.add(FieldAmount, msgTooPrecise)
	}
	return errs
}

func (p *PayloadValidator) structErrors(v any) FieldErrors {
	errs := FieldErrors{}
	err := p.validate.Struct(v)
	if err == nil {
		return errs
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.add("request", "Invalid request")
		return errs
	}
	for _, fe := range verrs {
		errs.add(fieldPath(fe), messageFor(fe))
	}
	return errs
}

// fieldPath drops the root struct name: "BillPayload.items[0].name"
// becomes "items[0].name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return fmt.Sprintf("Must contain at least %s entries", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	default:
		return "Invalid value"
	}
}
