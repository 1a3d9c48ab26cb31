// Package form implements the drawer's mode state machine and the
// pre-submit validation that gates every call to the bill API.
package form

import (
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
)

const (
	FieldPatient     = "patient"
	FieldDoctor      = "doctor"
	FieldBillDate    = "bill_date"
	FieldItems       = "items"
	FieldPaymentMode = "payment_mode"
	FieldAmount      = "amount"
)

var ErrInvalidTransition = errors.New("invalid_mode_transition")

// FieldErrors maps a field name to the message shown next to it. A
// submit is allowed only when the map is empty.
type FieldErrors map[string]string

func (f FieldErrors) Empty() bool { return len(f) == 0 }

// Fields returns the failing field names in a stable order.
func (f FieldErrors) Fields() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (f FieldErrors) add(field, message string) {
	if _, exists := f[field]; !exists {
		f[field] = message
	}
}

// create -> view once persisted; view <-> edit; view -> collect -> view.
var transitions = map[domain.Mode]map[domain.Mode]bool{
	domain.ModeCreate:  {domain.ModeView: true},
	domain.ModeView:    {domain.ModeEdit: true, domain.ModeCollect: true},
	domain.ModeEdit:    {domain.ModeView: true},
	domain.ModeCollect: {domain.ModeView: true},
}

// Transition validates a mode change.
func Transition(from, to domain.Mode) (domain.Mode, error) {
	if transitions[from][to] {
		return to, nil
	}
	return from, ErrInvalidTransition
}

// Rules holds the configurable parts of validation.
type Rules struct {
	PaymentModes []string
}

// PaymentModeAllowed reports whether mode is configured. An empty list
// accepts any non-empty mode.
func (r Rules) PaymentModeAllowed(mode string) bool {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		return false
	}
	if len(r.PaymentModes) == 0 {
		return true
	}
	for _, allowed := range r.PaymentModes {
		if strings.EqualFold(allowed, mode) {
			return true
		}
	}
	return false
}

// ValidateBill checks the create/edit requirements: patient, doctor,
// bill date, at least one line item and a known payment mode.
func (r Rules) ValidateBill(b domain.Bill) FieldErrors {
	errs := FieldErrors{}
	if b.Patient.IsZero() {
		errs.add(FieldPatient, "Patient is required")
	}
	if b.Doctor.IsZero() {
		errs.add(FieldDoctor, "Doctor is required")
	}
	if b.BillDate.IsZero() {
		errs.add(FieldBillDate, "Bill date is required")
	}
	if len(b.Items) == 0 {
		errs.add(FieldItems, "Add at least one item")
	}
	if !r.PaymentModeAllowed(b.PaymentMode) {
		errs.add(FieldPaymentMode, "Select a payment mode")
	}
	return errs
}

// ValidatePayment checks a collect-mode payment: the amount must parse
// as a non-negative number.
func (r Rules) ValidatePayment(d domain.PaymentDraft) FieldErrors {
	errs := FieldErrors{}
	if _, msg := ParseAmount(d.Amount); msg != "" {
		errs.add(FieldAmount, msg)
	}
	if !r.PaymentModeAllowed(d.Mode) {
		errs.add(FieldPaymentMode, "Select a payment mode")
	}
	return errs
}

// Validate runs the checks for the given mode. View mode has nothing to
// submit and always validates.
func (r Rules) Validate(mode domain.Mode, b domain.Bill, d domain.PaymentDraft) FieldErrors {
	switch mode {
	case domain.ModeCreate, domain.ModeEdit:
		return r.ValidateBill(b)
	case domain.ModeCollect:
		return r.ValidatePayment(d)
	default:
		return FieldErrors{}
	}
}

// ParseAmount parses operator input. The returned message is empty when
// the input is a valid non-negative number.
func ParseAmount(input string) (decimal.Decimal, string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return decimal.Zero, "Amount is required"
	}
	amount, err := decimal.NewFromString(input)
	if err != nil {
		return decimal.Zero, "Enter a valid amount"
	}
	if amount.IsNegative() {
		return decimal.Zero, "Amount cannot be negative"
	}
	if tooPrecise(amount) {
		return decimal.Zero, msgTooPrecise
	}
	return amount, ""
}
