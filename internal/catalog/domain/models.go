package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Procedure is a billable catalog item.
type Procedure struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name        string            `gorm:"type:varchar(255);not null" json:"name"`
	Code        string            `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	Description string            `gorm:"type:text" json:"description,omitempty"`
	UnitCharge  decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0" json:"unit_charge"`
	Active      bool              `gorm:"not null" json:"active"`
	Metadata    datatypes.JSONMap `gorm:"not null" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Procedure) TableName() string { return "procedures" }

type CreateProcedureRequest struct {
	Name        string          `json:"name"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	UnitCharge  decimal.Decimal `json:"unit_charge"`
	Inactive    bool            `json:"inactive"`
}

type SearchFilter struct {
	Text       string
	ActiveOnly bool
}
