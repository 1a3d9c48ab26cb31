package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicdesk/internal/catalog/domain"
	pkgdb "github.com/smallbiznis/clinicdesk/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Procedure) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Procedure, error) {
	var p domain.Procedure
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*domain.Procedure, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []*domain.Procedure
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) Search(ctx context.Context, db *gorm.DB, filter domain.SearchFilter, limit int) ([]*domain.Procedure, error) {
	stmt := db.WithContext(ctx).Model(&domain.Procedure{})
	if strings.TrimSpace(filter.Text) != "" {
		like := pkgdb.ContainsPattern(filter.Text)
		stmt = stmt.Where("(LOWER(name) LIKE ? ESCAPE '!') OR (LOWER(code) LIKE ? ESCAPE '!')", like, like)
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("active = ?", true)
	}

	var out []*domain.Procedure
	err := stmt.
		Order("name asc, id asc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
