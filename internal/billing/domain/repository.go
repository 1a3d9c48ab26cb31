package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	InsertBill(ctx context.Context, db *gorm.DB, bill *BillRecord, items []BillItemRecord) error
	UpdateBill(ctx context.Context, db *gorm.DB, bill *BillRecord) error
	ReplaceItems(ctx context.Context, db *gorm.DB, billID snowflake.ID, items []BillItemRecord) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillRecord, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillRecord, error)
	ListItems(ctx context.Context, db *gorm.DB, billID snowflake.ID) ([]BillItemRecord, error)
	List(ctx context.Context, db *gorm.DB, filter ListBillFilter, page pagination.Pagination) ([]*BillRecord, error)
	InsertPayment(ctx context.Context, db *gorm.DB, payment *PaymentRecord) error
	ListPayments(ctx context.Context, db *gorm.DB, billID snowflake.ID) ([]PaymentRecord, error)
}
