package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	billingdomain "github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/catalog/domain"
	"github.com/smallbiznis/clinicdesk/internal/clock"
	"github.com/smallbiznis/clinicdesk/internal/config"
	pkgdb "github.com/smallbiznis/clinicdesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Billing *config.BillingConfigHolder `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	billing *config.BillingConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("catalog.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		billing: p.Billing,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateProcedureRequest) (domain.Procedure, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Procedure{}, domain.ErrInvalidName
	}
	if req.UnitCharge.IsNegative() || !req.UnitCharge.Equal(req.UnitCharge.Round(2)) {
		return domain.Procedure{}, domain.ErrInvalidUnitCharge
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = slug.Make(name)
	}
	if code == "" {
		return domain.Procedure{}, domain.ErrInvalidCode
	}

	now := s.clock.Now()
	procedure := domain.Procedure{
		ID:          s.genID.Generate(),
		Name:        name,
		Code:        code,
		Description: strings.TrimSpace(req.Description),
		UnitCharge:  req.UnitCharge,
		Active:      !req.Inactive,
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, &procedure); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.Procedure{}, domain.ErrDuplicateCode
		}
		return domain.Procedure{}, err
	}

	s.log.Info("procedure created", zap.String("procedure_id", procedure.ID.String()), zap.String("code", code))
	return procedure, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Procedure, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Procedure{}, err
	}
	if item == nil {
		return domain.Procedure{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) GetMany(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]domain.Procedure, error) {
	items, err := s.repo.FindByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[snowflake.ID]domain.Procedure, len(items))
	for _, item := range items {
		if item != nil {
			out[item.ID] = *item
		}
	}
	return out, nil
}

// SearchCatalog matches name or code case-insensitively.
func (s *Service) SearchCatalog(ctx context.Context, q billingdomain.CatalogQuery) ([]billingdomain.CatalogEntry, error) {
	items, err := s.repo.Search(ctx, s.db, domain.SearchFilter{
		Text:       q.SearchText,
		ActiveOnly: q.ActiveOnly,
	}, s.pageSize(q.PageSize))
	if err != nil {
		return nil, err
	}

	out := make([]billingdomain.CatalogEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, billingdomain.CatalogEntry{
			ID:        item.ID,
			Name:      item.Name,
			Code:      item.Code,
			UnitPrice: item.UnitCharge,
		})
	}
	return out, nil
}

func (s *Service) pageSize(requested int) int {
	limit := 20
	if s.billing != nil {
		if cfg := s.billing.Get(); cfg.SearchPageSize > 0 {
			limit = cfg.SearchPageSize
		}
	}
	if requested > 0 && requested < limit {
		limit = requested
	}
	return limit
}
