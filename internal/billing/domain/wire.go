package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/pkg/db/pagination"
)

// WireItem is a bill line as sent to and returned by the bill API.
// Per-line discounts are not part of the wire format.
type WireItem struct {
	ProcedureID *snowflake.ID   `json:"procedure_id,omitempty"`
	Name        string          `json:"name" validate:"required,max=255"`
	Code        string          `json:"code,omitempty"`
	Note        string          `json:"note,omitempty" validate:"max=1000"`
	Quantity    int64           `json:"quantity" validate:"gte=1"`
	UnitCharge  decimal.Decimal `json:"unit_charge"`
	LineTotal   decimal.Decimal `json:"line_total,omitempty"`
	ItemOrder   int             `json:"item_order" validate:"gte=1"`
}

// BillPayload is the create/update request body. Update always carries
// the full item list.
type BillPayload struct {
	VisitID         *snowflake.ID   `json:"visit_id,omitempty"`
	PatientID       snowflake.ID    `json:"patient_id" validate:"required"`
	DoctorID        snowflake.ID    `json:"doctor_id" validate:"required"`
	BillDate        time.Time       `json:"bill_date"`
	BillType        string          `json:"bill_type" validate:"required,oneof=opd ipd"`
	Category        string          `json:"category,omitempty" validate:"max=64"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	PaymentMode     string          `json:"payment_mode" validate:"required"`
	PaymentNotes    string          `json:"payment_notes,omitempty" validate:"max=1000"`
	ReceivedAmount  decimal.Decimal `json:"received_amount"`
	Items           []WireItem      `json:"items" validate:"required,min=1,dive"`
}

// PaymentRequest records an incremental payment against a stored bill.
type PaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	PaymentMode    string          `json:"payment_mode" validate:"required"`
	PaymentDetails string          `json:"payment_details,omitempty" validate:"max=1000"`
}

// BillResponse is a stored bill as returned by the bill API.
type BillResponse struct {
	ID              snowflake.ID    `json:"id"`
	BillNumber      string          `json:"bill_number"`
	VisitID         *snowflake.ID   `json:"visit_id,omitempty"`
	PatientID       snowflake.ID    `json:"patient_id"`
	PatientName     string          `json:"patient_name"`
	DoctorID        snowflake.ID    `json:"doctor_id"`
	DoctorName      string          `json:"doctor_name"`
	BillDate        time.Time       `json:"bill_date"`
	BillType        string          `json:"bill_type"`
	Category        string          `json:"category,omitempty"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	SubtotalAmount  decimal.Decimal `json:"subtotal_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ReceivedAmount  decimal.Decimal `json:"received_amount"`
	BalanceAmount   decimal.Decimal `json:"balance_amount"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	PaymentMode     string          `json:"payment_mode"`
	PaymentNotes    string          `json:"payment_notes,omitempty"`
	Items           []WireItem      `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PaymentResponse is one recorded payment.
type PaymentResponse struct {
	ID             snowflake.ID    `json:"id"`
	BillID         snowflake.ID    `json:"bill_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMode    string          `json:"payment_mode"`
	PaymentDetails string          `json:"payment_details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type ListBillRequest struct {
	PageToken     string
	PageSize      int32
	PatientID     string
	DoctorID      string
	PaymentStatus string
	BillFrom      *time.Time
	BillTo        *time.Time
}

type ListBillFilter struct {
	PatientID     snowflake.ID
	DoctorID      snowflake.ID
	PaymentStatus PaymentStatus
	BillFrom      *time.Time
	BillTo        *time.Time
}

type ListBillResponse struct {
	pagination.PageInfo
	Bills []BillResponse `json:"bills"`
}
