package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/clock"
	"github.com/smallbiznis/clinicdesk/internal/party/domain"
	pkgdb "github.com/smallbiznis/clinicdesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const searchLimit = 20

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("party.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) CreatePatient(ctx context.Context, req domain.CreatePatientRequest) (domain.Patient, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Patient{}, domain.ErrInvalidName
	}
	mrn := strings.ToUpper(strings.TrimSpace(req.MRN))
	if mrn == "" {
		return domain.Patient{}, domain.ErrInvalidMRN
	}

	now := s.clock.Now()
	patient := domain.Patient{
		ID:          s.genID.Generate(),
		MRN:         mrn,
		Name:        name,
		Phone:       strings.TrimSpace(req.Phone),
		Gender:      strings.ToLower(strings.TrimSpace(req.Gender)),
		DateOfBirth: req.DateOfBirth,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertPatient(ctx, s.db, &patient); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.Patient{}, domain.ErrDuplicate
		}
		return domain.Patient{}, err
	}
	return patient, nil
}

func (s *Service) CreateDoctor(ctx context.Context, req domain.CreateDoctorRequest) (domain.Doctor, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Doctor{}, domain.ErrInvalidName
	}
	regNo := strings.ToUpper(strings.TrimSpace(req.RegistrationNo))
	if regNo == "" {
		return domain.Doctor{}, domain.ErrInvalidRegNo
	}

	now := s.clock.Now()
	doctor := domain.Doctor{
		ID:             s.genID.Generate(),
		RegistrationNo: regNo,
		Name:           name,
		Specialty:      strings.TrimSpace(req.Specialty),
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.InsertDoctor(ctx, s.db, &doctor); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.Doctor{}, domain.ErrDuplicate
		}
		return domain.Doctor{}, err
	}
	return doctor, nil
}

func (s *Service) SearchParties(ctx context.Context, kind billingdomain.PartyKind, text string) ([]billingdomain.PartyRef, error) {
	switch kind {
	case billingdomain.PartyPatient:
		items, err := s.repo.SearchPatients(ctx, s.db, text, searchLimit)
		if err != nil {
			return nil, err
		}
		out := make([]billingdomain.PartyRef, 0, len(items))
		for _, p := range items {
			out = append(out, billingdomain.PartyRef{ID: p.ID, Name: p.Name})
		}
		return out, nil
	case billingdomain.PartyDoctor:
		items, err := s.repo.SearchDoctors(ctx, s.db, text, searchLimit)
		if err != nil {
			return nil, err
		}
		out := make([]billingdomain.PartyRef, 0, len(items))
		for _, d := range items {
			out = append(out, billingdomain.PartyRef{ID: d.ID, Name: d.Name})
		}
		return out, nil
	default:
		return nil, domain.ErrInvalidKind
	}
}

// GetParty resolves one identity. Inactive doctors are reported with
// ErrInactiveDoctor so new bills cannot be raised against them.
func (s *Service) GetParty(ctx context.Context, kind billingdomain.PartyKind, id snowflake.ID) (billingdomain.PartyRef, error) {
	switch kind {
	case billingdomain.PartyPatient:
		p, err := s.repo.FindPatient(ctx, s.db, id)
		if err != nil {
			return billingdomain.PartyRef{}, err
		}
		if p == nil {
			return billingdomain.PartyRef{}, domain.ErrNotFound
		}
		return billingdomain.PartyRef{ID: p.ID, Name: p.Name}, nil
	case billingdomain.PartyDoctor:
		d, err := s.repo.FindDoctor(ctx, s.db, id)
		if err != nil {
			return billingdomain.PartyRef{}, err
		}
		if d == nil {
			return billingdomain.PartyRef{}, domain.ErrNotFound
		}
		if !d.Active {
			return billingdomain.PartyRef{}, domain.ErrInactiveDoctor
		}
		return billingdomain.PartyRef{ID: d.ID, Name: d.Name}, nil
	default:
		return billingdomain.PartyRef{}, domain.ErrInvalidKind
	}
}
