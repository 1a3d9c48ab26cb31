// Package seed loads the demo catalog, doctors and patients used in
// development environments.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/clinicdesk/internal/catalog/domain"
	partydomain "github.com/smallbiznis/clinicdesk/internal/party/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type procedureSeed struct {
	name       string
	unitCharge string
}

var demoProcedures = []procedureSeed{
	{"General Consultation", "500.00"},
	{"Specialist Consultation", "900.00"},
	{"X-Ray Chest PA View", "650.00"},
	{"Complete Blood Count", "350.00"},
	{"ECG", "300.00"},
	{"Ultrasound Abdomen", "1200.00"},
	{"Dressing Small", "150.00"},
	{"Injection Charges", "100.00"},
}

var demoDoctors = []partydomain.Doctor{
	{RegistrationNo: "REG-1001", Name: "Dr. Meera Rao", Specialty: "General Medicine"},
	{RegistrationNo: "REG-1002", Name: "Dr. Arjun Menon", Specialty: "Orthopaedics"},
}

var demoPatients = []partydomain.Patient{
	{MRN: "MRN-0001", Name: "Asha Kulkarni", Gender: "female"},
	{MRN: "MRN-0002", Name: "Ravi Shah", Gender: "male"},
}

// EnsureDemoData inserts demo rows that are not present yet. Rows are
// matched by their natural key so the call is idempotent.
func EnsureDemoData(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		var err error
		node, err = snowflake.NewNode(1)
		if err != nil {
			return err
		}
	}

	ctx := context.Background()
	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureProceduresTx(ctx, tx, node, now); err != nil {
			return err
		}
		if err := ensureDoctorsTx(ctx, tx, node, now); err != nil {
			return err
		}
		return ensurePatientsTx(ctx, tx, node, now)
	})
}

func ensureProceduresTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, now time.Time) error {
	for _, seed := range demoProcedures {
		code := slug.Make(seed.name)
		var existing catalogdomain.Procedure
		err := tx.WithContext(ctx).Where("code = ?", code).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		row := catalogdomain.Procedure{
			ID:         node.Generate(),
			Name:       seed.name,
			Code:       code,
			UnitCharge: decimal.RequireFromString(seed.unitCharge),
			Active:     true,
			Metadata:   datatypes.JSONMap{"source": "seed"},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureDoctorsTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, now time.Time) error {
	for _, seed := range demoDoctors {
		var existing partydomain.Doctor
		err := tx.WithContext(ctx).Where("registration_no = ?", seed.RegistrationNo).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		row := seed
		row.ID = node.Generate()
		row.Active = true
		row.CreatedAt = now
		row.UpdatedAt = now
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensurePatientsTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, now time.Time) error {
	for _, seed := range demoPatients {
		var existing partydomain.Patient
		err := tx.WithContext(ctx).Where("mrn = ?", seed.MRN).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		row := seed
		row.ID = node.Generate()
		row.CreatedAt = now
		row.UpdatedAt = now
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
