package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/clinicdesk/internal/billing/domain"
)

// Service manages the procedure catalog. It also serves as the bill
// drawer's catalog lookup.
type Service interface {
	billingdomain.CatalogLookup

	Create(ctx context.Context, req CreateProcedureRequest) (Procedure, error)
	Get(ctx context.Context, id snowflake.ID) (Procedure, error)
	GetMany(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]Procedure, error)
}

var (
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidCode       = errors.New("invalid_code")
	ErrInvalidUnitCharge = errors.New("invalid_unit_charge")
	ErrDuplicateCode     = errors.New("duplicate_code")
	ErrNotFound          = errors.New("not_found")
)
