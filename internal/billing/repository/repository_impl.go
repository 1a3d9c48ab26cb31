package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/pkg/db/option"
	"github.com/smallbiznis/clinicdesk/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBill(ctx context.Context, db *gorm.DB, bill *domain.BillRecord, items []domain.BillItemRecord) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(bill).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

func (r *repo) UpdateBill(ctx context.Context, db *gorm.DB, bill *domain.BillRecord) error {
	return db.WithContext(ctx).
		Model(&domain.BillRecord{}).
		Where("id = ?", bill.ID).
		Updates(map[string]any{
			"visit_id":         bill.VisitID,
			"bill_date":        bill.BillDate,
			"bill_type":        bill.BillType,
			"category":         bill.Category,
			"discount_percent": bill.DiscountPercent,
			"subtotal_amount":  bill.SubtotalAmount,
			"discount_amount":  bill.DiscountAmount,
			"tax_amount":       bill.TaxAmount,
			"total_amount":     bill.TotalAmount,
			"received_amount":  bill.ReceivedAmount,
			"balance_amount":   bill.BalanceAmount,
			"payment_status":   bill.PaymentStatus,
			"payment_mode":     bill.PaymentMode,
			"payment_notes":    bill.PaymentNotes,
			"updated_at":       bill.UpdatedAt,
		}).Error
}

// ReplaceItems swaps the full item list of a bill.
func (r *repo) ReplaceItems(ctx context.Context, db *gorm.DB, billID snowflake.ID, items []domain.BillItemRecord) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("bill_id = ?", billID).Delete(&domain.BillItemRecord{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BillRecord, error) {
	var bill domain.BillRecord
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&bill).Error
	if err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}

// FindByIDForUpdate locks the bill row for the rest of the transaction.
// SQLite has no row locks; its writers are already serialized.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BillRecord, error) {
	stmt := db.WithContext(ctx)
	if db.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var bill domain.BillRecord
	err := stmt.
		Where("id = ?", id).
		Limit(1).
		Find(&bill).Error
	if err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, billID snowflake.ID) ([]domain.BillItemRecord, error) {
	var items []domain.BillItemRecord
	err := db.WithContext(ctx).
		Where("bill_id = ?", billID).
		Order("item_order asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListBillFilter, page pagination.Pagination) ([]*domain.BillRecord, error) {
	stmt := db.WithContext(ctx).Model(&domain.BillRecord{})
	if filter.PatientID != 0 {
		stmt = stmt.Where("patient_id = ?", filter.PatientID)
	}
	if filter.DoctorID != 0 {
		stmt = stmt.Where("doctor_id = ?", filter.DoctorID)
	}
	if filter.PaymentStatus != "" {
		stmt = stmt.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.BillFrom != nil {
		stmt = stmt.Where("bill_date >= ?", *filter.BillFrom)
	}
	if filter.BillTo != nil {
		stmt = stmt.Where("bill_date < ?", *filter.BillTo)
	}

	stmt = option.ApplyPagination(page).Apply(stmt)

	var bills []*domain.BillRecord
	if err := stmt.Order("created_at desc, id desc").Find(&bills).Error; err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.PaymentRecord) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, billID snowflake.ID) ([]domain.PaymentRecord, error) {
	var payments []domain.PaymentRecord
	err := db.WithContext(ctx).
		Where("bill_id = ?", billID).
		Order("created_at asc, id asc").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
