// Package adapter maps the in-memory bill to the bill API wire shapes and
// hydrates stored records back into a bill.
package adapter

import (
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/calc"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/billing/form"
)

// ToPayload builds the create/update body. Item order is the current
// position on the bill, starting at 1. Line discounts are not sent.
func ToPayload(b domain.Bill) domain.BillPayload {
	items := make([]domain.WireItem, 0, len(b.Items))
	for i, item := range b.Items {
		items = append(items, domain.WireItem{
			ProcedureID: copyID(item.ItemID),
			Name:        item.Name,
			Code:        item.Code,
			Note:        item.Note,
			Quantity:    item.Quantity,
			UnitCharge:  item.UnitPrice,
			LineTotal:   item.LineTotal,
			ItemOrder:   i + 1,
		})
	}

	billType := b.BillType
	if billType == "" {
		billType = domain.BillTypeOPD
	}

	return domain.BillPayload{
		VisitID:         copyID(b.VisitID),
		PatientID:       b.Patient.ID,
		DoctorID:        b.Doctor.ID,
		BillDate:        b.BillDate,
		BillType:        billType,
		Category:        b.Category,
		DiscountPercent: b.DiscountPercent,
		PaymentMode:     b.PaymentMode,
		PaymentNotes:    b.PaymentNotes,
		ReceivedAmount:  b.ReceivedAmount,
		Items:           items,
	}
}

// ToPaymentRequest converts a validated collect-mode draft. Callers are
// expected to run form.Rules.ValidatePayment first; an unparsable amount
// is sent as zero.
func ToPaymentRequest(d domain.PaymentDraft) domain.PaymentRequest {
	amount, _ := form.ParseAmount(d.Amount)
	return domain.PaymentRequest{
		Amount:         amount,
		PaymentMode:    strings.TrimSpace(d.Mode),
		PaymentDetails: d.Details,
	}
}

// Hydrate turns a stored record into a bill. Line totals are recomputed
// from unit charge and quantity and line discounts start at zero, since
// the API does not store them. All derived fields go through
// calc.Recompute.
func Hydrate(resp domain.BillResponse) domain.Bill {
	items := make([]domain.LineItem, 0, len(resp.Items))
	for _, wi := range sortedByOrder(resp.Items) {
		items = append(items, domain.LineItem{
			ItemID:       copyID(wi.ProcedureID),
			Name:         wi.Name,
			Code:         wi.Code,
			Quantity:     wi.Quantity,
			UnitPrice:    wi.UnitCharge,
			LineDiscount: decimal.Zero,
			Note:         wi.Note,
		})
	}

	billType := resp.BillType
	if billType == "" {
		billType = domain.BillTypeOPD
	}

	return calc.Recompute(domain.Bill{
		ID:              resp.ID,
		BillNumber:      resp.BillNumber,
		Patient:         domain.PartyRef{ID: resp.PatientID, Name: resp.PatientName},
		Doctor:          domain.PartyRef{ID: resp.DoctorID, Name: resp.DoctorName},
		VisitID:         copyID(resp.VisitID),
		BillDate:        resp.BillDate,
		BillType:        billType,
		Category:        resp.Category,
		Items:           items,
		DiscountPercent: resp.DiscountPercent,
		ReceivedAmount:  resp.ReceivedAmount,
		PaymentMode:     resp.PaymentMode,
		PaymentNotes:    resp.PaymentNotes,
	})
}

// sortedByOrder returns the items ordered by ItemOrder; items with equal
// order keep their relative position.
func sortedByOrder(items []domain.WireItem) []domain.WireItem {
	out := make([]domain.WireItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ItemOrder < out[j].ItemOrder
	})
	return out
}

func copyID(id *snowflake.ID) *snowflake.ID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
