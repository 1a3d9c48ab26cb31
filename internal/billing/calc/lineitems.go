package calc

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
)

// The line-item operations below never modify their input slice. Each
// returns a new slice with every line total recomputed.

// AddItem appends a catalog entry as a new line with quantity 1. An entry
// whose id is already on the bill is ignored; its quantity should be
// changed instead.
func AddItem(items []domain.LineItem, entry domain.CatalogEntry) []domain.LineItem {
	for _, item := range items {
		if item.SameCatalogItem(entry.ID) {
			return cloneItems(items)
		}
	}

	id := entry.ID
	out := cloneItems(items)
	out = append(out, normalizeLine(domain.LineItem{
		ItemID:       &id,
		Name:         strings.TrimSpace(entry.Name),
		Code:         strings.TrimSpace(entry.Code),
		Quantity:     1,
		UnitPrice:    entry.UnitPrice,
		LineDiscount: decimal.Zero,
	}))
	return out
}

// AddManualItem appends a free-text line. Manual lines have no catalog id
// and are never treated as duplicates.
func AddManualItem(items []domain.LineItem, name string, unitPrice decimal.Decimal) []domain.LineItem {
	out := cloneItems(items)
	out = append(out, normalizeLine(domain.LineItem{
		Name:         strings.TrimSpace(name),
		Quantity:     1,
		UnitPrice:    unitPrice,
		LineDiscount: decimal.Zero,
	}))
	return out
}

// UpdateQuantity sets the quantity of one line, clamped to >= 1. The line
// discount is re-clamped against the new gross amount.
func UpdateQuantity(items []domain.LineItem, index int, quantity int64) []domain.LineItem {
	out := cloneItems(items)
	if !inRange(out, index) {
		return out
	}
	if quantity < 1 {
		quantity = 1
	}
	out[index].Quantity = quantity
	out[index] = normalizeLine(out[index])
	return out
}

// UpdateLineDiscount sets the discount of one line, clamped to
// [0, quantity x unitPrice].
func UpdateLineDiscount(items []domain.LineItem, index int, discount decimal.Decimal) []domain.LineItem {
	out := cloneItems(items)
	if !inRange(out, index) {
		return out
	}
	out[index].LineDiscount = discount
	out[index] = normalizeLine(out[index])
	return out
}

// UpdateNote replaces the note of one line. Money fields are untouched.
func UpdateNote(items []domain.LineItem, index int, note string) []domain.LineItem {
	out := cloneItems(items)
	if !inRange(out, index) {
		return out
	}
	out[index].Note = note
	return out
}

// RemoveItem drops one line. Remaining lines keep their catalog ids.
func RemoveItem(items []domain.LineItem, index int) []domain.LineItem {
	if !inRange(items, index) {
		return cloneItems(items)
	}
	out := make([]domain.LineItem, 0, len(items)-1)
	out = append(out, items[:index]...)
	out = append(out, items[index+1:]...)
	return out
}

// normalizeLine enforces quantity >= 1, unitPrice >= 0 and
// 0 <= lineDiscount <= quantity x unitPrice, then sets the line total.
func normalizeLine(item domain.LineItem) domain.LineItem {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	item.UnitPrice = nonNegative(item.UnitPrice)

	gross := lineGross(item)
	switch {
	case item.LineDiscount.IsNegative():
		item.LineDiscount = decimal.Zero
	case item.LineDiscount.GreaterThan(gross):
		item.LineDiscount = gross
	}

	item.LineTotal = LineTotal(item)
	return item
}

func inRange(items []domain.LineItem, index int) bool {
	return index >= 0 && index < len(items)
}

func cloneItems(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, len(items), len(items)+1)
	copy(out, items)
	return out
}
