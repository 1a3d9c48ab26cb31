package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// CatalogQuery is the catalog lookup request.
type CatalogQuery struct {
	SearchText string
	ActiveOnly bool
	PageSize   int
}

// CatalogLookup finds billable items.
type CatalogLookup interface {
	SearchCatalog(ctx context.Context, q CatalogQuery) ([]CatalogEntry, error)
}

// PartyKind selects patients or doctors in a PartyLookup.
type PartyKind string

const (
	PartyPatient PartyKind = "patient"
	PartyDoctor  PartyKind = "doctor"
)

// PartyLookup resolves patient and doctor identities.
type PartyLookup interface {
	SearchParties(ctx context.Context, kind PartyKind, text string) ([]PartyRef, error)
	GetParty(ctx context.Context, kind PartyKind, id snowflake.ID) (PartyRef, error)
}

// BillGateway is the persistence side used by a drawer: hydration fetch,
// create/update and payment recording.
type BillGateway interface {
	FetchBill(ctx context.Context, id snowflake.ID) (BillResponse, error)
	CreateBill(ctx context.Context, payload BillPayload) (BillResponse, error)
	UpdateBill(ctx context.Context, id snowflake.ID, payload BillPayload) (BillResponse, error)
	RecordPayment(ctx context.Context, id snowflake.ID, req PaymentRequest) (BillResponse, error)
}

// Service is the backend bill service behind the bill API.
type Service interface {
	Create(ctx context.Context, payload BillPayload) (BillResponse, error)
	Update(ctx context.Context, id string, payload BillPayload) (BillResponse, error)
	Get(ctx context.Context, id string) (BillResponse, error)
	List(ctx context.Context, req ListBillRequest) (ListBillResponse, error)
	RecordPayment(ctx context.Context, id string, req PaymentRequest) (BillResponse, error)
	ListPayments(ctx context.Context, id string) ([]PaymentResponse, error)
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidPatient     = errors.New("invalid_patient")
	ErrInvalidDoctor      = errors.New("invalid_doctor")
	ErrInvalidBillDate    = errors.New("invalid_bill_date")
	ErrInvalidBillType    = errors.New("invalid_bill_type")
	ErrInvalidItems       = errors.New("invalid_items")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidUnitCharge  = errors.New("invalid_unit_charge")
	ErrInvalidDiscount    = errors.New("invalid_discount")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidPaymentMode = errors.New("invalid_payment_mode")
	ErrInvalidProcedure   = errors.New("invalid_procedure")
	ErrPartyImmutable     = errors.New("party_immutable")
	ErrInvalidStatus      = errors.New("invalid_payment_status")
)

// ValidationError carries per-field messages for a rejected request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "validation_failed"
}
