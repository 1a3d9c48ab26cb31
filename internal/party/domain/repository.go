package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPatient(ctx context.Context, db *gorm.DB, patient *Patient) error
	InsertDoctor(ctx context.Context, db *gorm.DB, doctor *Doctor) error
	FindPatient(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Patient, error)
	FindDoctor(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Doctor, error)
	SearchPatients(ctx context.Context, db *gorm.DB, text string, limit int) ([]*Patient, error)
	SearchDoctors(ctx context.Context, db *gorm.DB, text string, limit int) ([]*Doctor, error)
}
