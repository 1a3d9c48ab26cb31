// Package calc holds the bill arithmetic: line totals, aggregation,
// payment reconciliation and the reducer that keeps them consistent.
//
// Every function here is pure. Inputs are clamped, never rejected, so the
// functions are total over any decimal input.
package calc

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
)

// MoneyScale is the number of decimal places kept for derived amounts
// that involve a division.
const MoneyScale = 2

var (
	hundred = decimal.NewFromInt(100)

	// TaxRate is applied to (subtotal - discount). Tax rules are not
	// modelled yet, so the rate is zero; the computed field stays so the
	// summary shape does not change when they are.
	TaxRate = decimal.Zero
)

// LineTotal returns quantity x unitPrice - lineDiscount, floored at zero.
func LineTotal(item domain.LineItem) decimal.Decimal {
	return nonNegative(lineGross(item).Sub(lineDiscount(item)))
}

// Aggregate computes the bill summary.
//
// The global percentage discount is taken on the already line-discounted
// subtotal and is added to the per-line discounts:
//
//	discountAmount = sum(lineDiscount) + subtotal * pct / 100
func Aggregate(items []domain.LineItem, discountPercent decimal.Decimal) domain.Summary {
	pct := ClampPercent(discountPercent)

	subtotal := decimal.Zero
	lineDiscounts := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LineTotal(item))
		lineDiscounts = lineDiscounts.Add(lineDiscount(item))
	}

	globalDiscount := subtotal.Mul(pct).Div(hundred).Round(MoneyScale)
	discount := lineDiscounts.Add(globalDiscount)

	taxable := nonNegative(subtotal.Sub(discount))
	tax := taxable.Mul(TaxRate).Round(MoneyScale)

	total := nonNegative(subtotal.Sub(discount).Add(tax))

	return domain.Summary{
		SubtotalAmount: subtotal,
		DiscountAmount: discount,
		TaxAmount:      tax,
		TotalAmount:    total,
	}
}

// ClampPercent limits a discount percentage to [0, 100].
func ClampPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

func lineGross(item domain.LineItem) decimal.Decimal {
	qty := item.Quantity
	if qty < 1 {
		qty = 1
	}
	return nonNegative(item.UnitPrice).Mul(decimal.NewFromInt(qty))
}

// lineDiscount is the line discount limited to [0, gross].
func lineDiscount(item domain.LineItem) decimal.Decimal {
	discount := nonNegative(item.LineDiscount)
	if gross := lineGross(item); discount.GreaterThan(gross) {
		return gross
	}
	return discount
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
