package domain

import (
	"context"
	"errors"

	billingdomain "github.com/smallbiznis/clinicdesk/internal/billing/domain"
)

// Service resolves patient and doctor identities for bills.
type Service interface {
	billingdomain.PartyLookup

	CreatePatient(ctx context.Context, req CreatePatientRequest) (Patient, error)
	CreateDoctor(ctx context.Context, req CreateDoctorRequest) (Doctor, error)
}

var (
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidMRN     = errors.New("invalid_mrn")
	ErrInvalidRegNo   = errors.New("invalid_registration_no")
	ErrInvalidKind    = errors.New("invalid_party_kind")
	ErrDuplicate      = errors.New("duplicate_party")
	ErrNotFound       = errors.New("not_found")
	ErrInactiveDoctor = errors.New("inactive_doctor")
)
