package calc

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
)

// Reconcile derives balance and payment status from the total and the
// received amount. The balance is not clamped: an overpayment shows as a
// negative balance.
//
// The paid check runs first so a zero total with nothing received is
// paid, not unpaid.
func Reconcile(total, received decimal.Decimal) domain.Reconciliation {
	status := domain.PaymentStatusPartial
	switch {
	case received.GreaterThanOrEqual(total):
		status = domain.PaymentStatusPaid
	case received.IsZero():
		status = domain.PaymentStatusUnpaid
	}

	return domain.Reconciliation{
		BalanceAmount: total.Sub(received),
		PaymentStatus: status,
	}
}

// ClampReceived floors a received amount at zero.
func ClampReceived(received decimal.Decimal) decimal.Decimal {
	return nonNegative(received)
}
