// Package domain contains the bill model shared by the drawer, the REST
// client and the backend bill service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PaymentStatus is derived from the total and the received amount.
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

const (
	BillTypeOPD = "opd"
	BillTypeIPD = "ipd"
)

// PartyRef identifies a patient or a doctor on a bill.
type PartyRef struct {
	ID   snowflake.ID `json:"id"`
	Name string       `json:"name"`
}

func (p PartyRef) IsZero() bool { return p.ID == 0 }

// LineItem is one billable entry. Name and Code are snapshotted when the
// line is added so later catalog edits do not rewrite historical bills.
type LineItem struct {
	ItemID       *snowflake.ID   `json:"item_id,omitempty"`
	Name         string          `json:"name"`
	Code         string          `json:"code,omitempty"`
	Quantity     int64           `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineDiscount decimal.Decimal `json:"line_discount"`
	LineTotal    decimal.Decimal `json:"line_total"`
	Note         string          `json:"note,omitempty"`
}

// SameCatalogItem reports whether the line was added from the given catalog id.
func (l LineItem) SameCatalogItem(id snowflake.ID) bool {
	return l.ItemID != nil && *l.ItemID == id
}

// Summary is the aggregation result over the line items.
type Summary struct {
	SubtotalAmount decimal.Decimal `json:"subtotal_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

// Reconciliation is the payment state derived from total and received amounts.
type Reconciliation struct {
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
}

// Bill is the in-memory bill edited by a drawer.
//
// Summary and Reconciliation are derived fields. They are only written by
// calc.Recompute, which always rewrites all of them together.
type Bill struct {
	ID              snowflake.ID    `json:"id,omitempty"`
	BillNumber      string          `json:"bill_number,omitempty"`
	Patient         PartyRef        `json:"patient"`
	Doctor          PartyRef        `json:"doctor"`
	VisitID         *snowflake.ID   `json:"visit_id,omitempty"`
	BillDate        time.Time       `json:"bill_date"`
	BillType        string          `json:"bill_type"`
	Category        string          `json:"category,omitempty"`
	Items           []LineItem      `json:"items"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	ReceivedAmount  decimal.Decimal `json:"received_amount"`
	PaymentMode     string          `json:"payment_mode,omitempty"`
	PaymentNotes    string          `json:"payment_notes,omitempty"`

	Summary
	Reconciliation
}

// Persisted reports whether the bill has a server-assigned identity.
func (b Bill) Persisted() bool { return b.ID != 0 }

// Clone returns a copy that shares no mutable state with b.
func (b Bill) Clone() Bill {
	out := b
	if b.Items != nil {
		out.Items = make([]LineItem, len(b.Items))
		copy(out.Items, b.Items)
	}
	if b.VisitID != nil {
		id := *b.VisitID
		out.VisitID = &id
	}
	return out
}

// PaymentDraft is the incremental payment entered in collect mode.
// Amount holds the operator's raw input until it is validated.
type PaymentDraft struct {
	Amount  string `json:"amount"`
	Mode    string `json:"mode"`
	Details string `json:"details,omitempty"`
}

// CatalogEntry is a billable item returned by the catalog lookup.
type CatalogEntry struct {
	ID        snowflake.ID    `json:"id"`
	Name      string          `json:"name"`
	Code      string          `json:"code"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
