package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BillRecord is the stored bill row.
type BillRecord struct {
	ID              snowflake.ID      `gorm:"primaryKey"`
	BillNumber      string            `gorm:"type:varchar(64);not null;uniqueIndex"`
	VisitID         *snowflake.ID     `gorm:"index"`
	PatientID       snowflake.ID      `gorm:"not null;index"`
	PatientName     string            `gorm:"type:text;not null"`
	DoctorID        snowflake.ID      `gorm:"not null;index"`
	DoctorName      string            `gorm:"type:text;not null"`
	BillDate        time.Time         `gorm:"not null"`
	BillType        string            `gorm:"type:varchar(8);not null;default:'opd'"`
	Category        string            `gorm:"type:varchar(64)"`
	DiscountPercent decimal.Decimal   `gorm:"type:numeric(5,2);not null;default:0"`
	SubtotalAmount  decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	DiscountAmount  decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	TaxAmount       decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	TotalAmount     decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	ReceivedAmount  decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	BalanceAmount   decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	PaymentStatus   PaymentStatus     `gorm:"type:varchar(16);not null;default:'unpaid';index"`
	PaymentMode     string            `gorm:"type:varchar(32);not null"`
	PaymentNotes    string            `gorm:"type:text"`
	Metadata        datatypes.JSONMap `gorm:"not null"`
	CreatedAt       time.Time         `gorm:"not null"`
	UpdatedAt       time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (BillRecord) TableName() string { return "bills" }

// BillItemRecord is a stored bill line.
type BillItemRecord struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	BillID      snowflake.ID    `gorm:"not null;index"`
	ProcedureID *snowflake.ID   `gorm:"index"`
	Name        string          `gorm:"type:text;not null"`
	Code        string          `gorm:"type:varchar(64)"`
	Note        string          `gorm:"type:text"`
	Quantity    int64           `gorm:"not null"`
	UnitCharge  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	LineTotal   decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	ItemOrder   int             `gorm:"not null"`
	CreatedAt   time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (BillItemRecord) TableName() string { return "bill_items" }

// PaymentRecord is one recorded payment against a bill.
type PaymentRecord struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	BillID         snowflake.ID    `gorm:"not null;index"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	PaymentMode    string          `gorm:"type:varchar(32);not null"`
	PaymentDetails string          `gorm:"type:text"`
	CreatedAt      time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (PaymentRecord) TableName() string { return "bill_payments" }
