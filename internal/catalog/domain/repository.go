package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, procedure *Procedure) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Procedure, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*Procedure, error)
	Search(ctx context.Context, db *gorm.DB, filter SearchFilter, limit int) ([]*Procedure, error)
}
