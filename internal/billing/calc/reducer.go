package calc

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
)

// Action is one user edit to a bill.
type Action interface {
	// Scope is the capability a mode needs to allow this edit.
	Scope() domain.Scope
	apply(domain.Bill) domain.Bill
}

type AddCatalogItem struct{ Entry domain.CatalogEntry }

type AddManualLine struct {
	Name      string
	UnitPrice decimal.Decimal
}

type RemoveLine struct{ Index int }

type SetQuantity struct {
	Index    int
	Quantity int64
}

type SetLineDiscount struct {
	Index    int
	Discount decimal.Decimal
}

type SetLineNote struct {
	Index int
	Note  string
}

type SetDiscountPercent struct{ Percent decimal.Decimal }

type SetReceivedAmount struct{ Amount decimal.Decimal }

type SetPaymentMode struct{ Mode string }

type SetPaymentNotes struct{ Notes string }

func (AddCatalogItem) Scope() domain.Scope     { return domain.ScopeItems }
func (AddManualLine) Scope() domain.Scope      { return domain.ScopeItems }
func (RemoveLine) Scope() domain.Scope         { return domain.ScopeItems }
func (SetQuantity) Scope() domain.Scope        { return domain.ScopeItems }
func (SetLineDiscount) Scope() domain.Scope    { return domain.ScopeItems }
func (SetLineNote) Scope() domain.Scope        { return domain.ScopeItems }
func (SetDiscountPercent) Scope() domain.Scope { return domain.ScopeItems }
func (SetReceivedAmount) Scope() domain.Scope  { return domain.ScopeReceived }
func (SetPaymentMode) Scope() domain.Scope     { return domain.ScopePayment }
func (SetPaymentNotes) Scope() domain.Scope    { return domain.ScopePayment }

func (a AddCatalogItem) apply(b domain.Bill) domain.Bill {
	b.Items = AddItem(b.Items, a.Entry)
	return b
}

func (a AddManualLine) apply(b domain.Bill) domain.Bill {
	b.Items = AddManualItem(b.Items, a.Name, a.UnitPrice)
	return b
}

func (a RemoveLine) apply(b domain.Bill) domain.Bill {
	b.Items = RemoveItem(b.Items, a.Index)
	return b
}

func (a SetQuantity) apply(b domain.Bill) domain.Bill {
	b.Items = UpdateQuantity(b.Items, a.Index, a.Quantity)
	return b
}

func (a SetLineDiscount) apply(b domain.Bill) domain.Bill {
	b.Items = UpdateLineDiscount(b.Items, a.Index, a.Discount)
	return b
}

func (a SetLineNote) apply(b domain.Bill) domain.Bill {
	b.Items = UpdateNote(b.Items, a.Index, a.Note)
	return b
}

func (a SetDiscountPercent) apply(b domain.Bill) domain.Bill {
	b.DiscountPercent = ClampPercent(a.Percent)
	return b
}

func (a SetReceivedAmount) apply(b domain.Bill) domain.Bill {
	b.ReceivedAmount = ClampReceived(a.Amount)
	return b
}

func (a SetPaymentMode) apply(b domain.Bill) domain.Bill {
	b.PaymentMode = a.Mode
	return b
}

func (a SetPaymentNotes) apply(b domain.Bill) domain.Bill {
	b.PaymentNotes = a.Notes
	return b
}

// Reduce applies one action to a copy of the bill and recomputes every
// derived field. The input bill is not modified.
func Reduce(b domain.Bill, action Action) domain.Bill {
	next := b.Clone()
	if action != nil {
		next = action.apply(next)
	}
	return Recompute(next)
}

// Recompute normalizes the inputs of a bill and rewrites all derived
// fields together: line totals, summary, balance and payment status.
func Recompute(b domain.Bill) domain.Bill {
	out := b.Clone()
	for i := range out.Items {
		out.Items[i] = normalizeLine(out.Items[i])
	}
	out.DiscountPercent = ClampPercent(out.DiscountPercent)
	out.ReceivedAmount = ClampReceived(out.ReceivedAmount)

	out.Summary = Aggregate(out.Items, out.DiscountPercent)
	out.Reconciliation = Reconcile(out.TotalAmount, out.ReceivedAmount)
	return out
}
