package calc

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func line(qty int64, unitPrice, discount string) domain.LineItem {
	return normalizeLine(domain.LineItem{
		Name:         "line",
		Quantity:     qty,
		UnitPrice:    dec(unitPrice),
		LineDiscount: dec(discount),
	})
}

func entry(id int64, name, price string) domain.CatalogEntry {
	return domain.CatalogEntry{
		ID:        snowflake.ID(id),
		Name:      name,
		Code:      "C" + name,
		UnitPrice: dec(price),
	}
}

func TestAggregate_SingleLineWithPercentDiscount(t *testing.T) {
	summary := Aggregate([]domain.LineItem{line(2, "500", "0")}, dec("10"))

	assertDecimal(t, "1000", summary.SubtotalAmount)
	assertDecimal(t, "100", summary.DiscountAmount)
	assertDecimal(t, "0", summary.TaxAmount)
	assertDecimal(t, "900", summary.TotalAmount)
}

func TestAggregate_EmptyItems(t *testing.T) {
	summary := Aggregate(nil, dec("50"))

	assertDecimal(t, "0", summary.SubtotalAmount)
	assertDecimal(t, "0", summary.DiscountAmount)
	assertDecimal(t, "0", summary.TaxAmount)
	assertDecimal(t, "0", summary.TotalAmount)
}

func TestAggregate_LineDiscountIsAddedToPercentDiscount(t *testing.T) {
	// gross 1000, line discount 200 -> line total 800 -> subtotal 800.
	// discount = 200 + 800 * 10% = 280; total = 800 - 280 = 520.
	summary := Aggregate([]domain.LineItem{line(2, "500", "200")}, dec("10"))

	assertDecimal(t, "800", summary.SubtotalAmount)
	assertDecimal(t, "280", summary.DiscountAmount)
	assertDecimal(t, "520", summary.TotalAmount)
}

func TestAggregate_ClampsDiscountPercent(t *testing.T) {
	items := []domain.LineItem{line(1, "250", "0")}

	over := Aggregate(items, dec("150"))
	assertDecimal(t, "250", over.DiscountAmount)
	assertDecimal(t, "0", over.TotalAmount)

	under := Aggregate(items, dec("-20"))
	assertDecimal(t, "0", under.DiscountAmount)
	assertDecimal(t, "250", under.TotalAmount)
}

func TestAggregate_RoundsPercentDiscountToCents(t *testing.T) {
	summary := Aggregate([]domain.LineItem{line(1, "99.99", "0")}, dec("33.333"))

	assertDecimal(t, "33.33", summary.DiscountAmount)
	assertDecimal(t, "66.66", summary.TotalAmount)
}

func TestAggregate_NeverNegative(t *testing.T) {
	cases := []struct {
		name  string
		items []domain.LineItem
		pct   string
	}{
		{name: "full line discount", items: []domain.LineItem{line(3, "100", "300")}, pct: "0"},
		{name: "line discount above gross", items: []domain.LineItem{line(1, "100", "5000")}, pct: "100"},
		{name: "double discount exceeds subtotal", items: []domain.LineItem{line(1, "100", "90")}, pct: "100"},
		{name: "raw negative inputs", items: []domain.LineItem{{Quantity: -4, UnitPrice: dec("-10"), LineDiscount: dec("-3")}}, pct: "-5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			summary := Aggregate(tc.items, dec(tc.pct))
			assert.False(t, summary.SubtotalAmount.IsNegative())
			assert.False(t, summary.TotalAmount.IsNegative())
			for _, item := range tc.items {
				assert.False(t, LineTotal(item).IsNegative())
			}
		})
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	items := []domain.LineItem{line(2, "123.45", "10"), line(5, "19.99", "0"), line(1, "0", "0")}

	first := Aggregate(items, dec("12.5"))
	second := Aggregate(items, dec("12.5"))

	assert.True(t, first.SubtotalAmount.Equal(second.SubtotalAmount))
	assert.True(t, first.DiscountAmount.Equal(second.DiscountAmount))
	assert.True(t, first.TaxAmount.Equal(second.TaxAmount))
	assert.True(t, first.TotalAmount.Equal(second.TotalAmount))
}

func TestReconcile(t *testing.T) {
	cases := []struct {
		name     string
		total    string
		received string
		balance  string
		status   domain.PaymentStatus
	}{
		{name: "fully paid", total: "900", received: "900", balance: "0", status: domain.PaymentStatusPaid},
		{name: "partial", total: "900", received: "300", balance: "600", status: domain.PaymentStatusPartial},
		{name: "unpaid", total: "900", received: "0", balance: "900", status: domain.PaymentStatusUnpaid},
		{name: "overpaid keeps negative balance", total: "900", received: "1000", balance: "-100", status: domain.PaymentStatusPaid},
		{name: "nothing owed", total: "0", received: "0", balance: "0", status: domain.PaymentStatusPaid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Reconcile(dec(tc.total), dec(tc.received))
			assertDecimal(t, tc.balance, got.BalanceAmount)
			assert.Equal(t, tc.status, got.PaymentStatus)
		})
	}
}

func TestReconcile_StatusIsMonotonic(t *testing.T) {
	total := dec("10")
	seen := []domain.PaymentStatus{}
	for cents := int64(0); cents <= 1000; cents += 25 {
		status := Reconcile(total, decimal.New(cents, -2)).PaymentStatus
		if len(seen) == 0 || seen[len(seen)-1] != status {
			seen = append(seen, status)
		}
	}

	assert.Equal(t, []domain.PaymentStatus{
		domain.PaymentStatusUnpaid,
		domain.PaymentStatusPartial,
		domain.PaymentStatusPaid,
	}, seen)
}

func TestAddItem_IgnoresDuplicateCatalogID(t *testing.T) {
	items := AddItem(nil, entry(7, "xray", "400"))
	items = AddItem(items, entry(7, "xray", "400"))

	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].Quantity)
}

func TestAddManualItem_NeverDeduplicated(t *testing.T) {
	items := AddManualItem(nil, "dressing", dec("50"))
	items = AddManualItem(items, "dressing", dec("50"))

	require.Len(t, items, 2)
	assert.Nil(t, items[0].ItemID)
}

func TestAddItem_SnapshotsCatalogFields(t *testing.T) {
	e := entry(3, "ecg", "300")
	items := AddItem(nil, e)
	e.Name = "renamed"
	e.UnitPrice = dec("999")

	require.Len(t, items, 1)
	assert.Equal(t, "ecg", items[0].Name)
	assertDecimal(t, "300", items[0].UnitPrice)
	assertDecimal(t, "300", items[0].LineTotal)
}

func TestUpdateQuantity_ClampsAndReclampsDiscount(t *testing.T) {
	items := AddItem(nil, entry(1, "cbc", "100"))
	items = UpdateQuantity(items, 0, 3)
	items = UpdateLineDiscount(items, 0, dec("250"))
	assertDecimal(t, "50", items[0].LineTotal)

	items = UpdateQuantity(items, 0, 0)
	assert.Equal(t, int64(1), items[0].Quantity)
	assertDecimal(t, "100", items[0].LineDiscount)
	assertDecimal(t, "0", items[0].LineTotal)
}

func TestUpdateLineDiscount_Clamps(t *testing.T) {
	items := AddItem(nil, entry(1, "cbc", "100"))

	negative := UpdateLineDiscount(items, 0, dec("-5"))
	assertDecimal(t, "0", negative[0].LineDiscount)

	tooLarge := UpdateLineDiscount(items, 0, dec("1000"))
	assertDecimal(t, "100", tooLarge[0].LineDiscount)
	assertDecimal(t, "0", tooLarge[0].LineTotal)
}

func TestLineOperations_OutOfRangeIsNoop(t *testing.T) {
	items := AddItem(nil, entry(1, "cbc", "100"))

	assert.Len(t, RemoveItem(items, 5), 1)
	assert.Equal(t, int64(1), UpdateQuantity(items, -1, 9)[0].Quantity)
	assertDecimal(t, "0", UpdateLineDiscount(items, 3, dec("10"))[0].LineDiscount)
	assert.Equal(t, "", UpdateNote(items, 1, "x")[0].Note)
}

func TestRemoveItem_KeepsRemainingCatalogIDs(t *testing.T) {
	items := AddItem(nil, entry(11, "a", "10"))
	items = AddItem(items, entry(22, "b", "20"))
	items = AddItem(items, entry(33, "c", "30"))

	items = RemoveItem(items, 1)

	require.Len(t, items, 2)
	assert.Equal(t, snowflake.ID(11), *items[0].ItemID)
	assert.Equal(t, snowflake.ID(33), *items[1].ItemID)
}

func TestLineOperations_DoNotMutateInput(t *testing.T) {
	items := AddItem(nil, entry(1, "cbc", "100"))
	_ = UpdateQuantity(items, 0, 4)
	_ = UpdateNote(items, 0, "fasting")
	_ = RemoveItem(items, 0)

	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].Quantity)
	assert.Equal(t, "", items[0].Note)
}
