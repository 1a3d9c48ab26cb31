package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicdesk/internal/party/domain"
	pkgdb "github.com/smallbiznis/clinicdesk/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPatient(ctx context.Context, db *gorm.DB, patient *domain.Patient) error {
	return db.WithContext(ctx).Create(patient).Error
}

func (r *repo) InsertDoctor(ctx context.Context, db *gorm.DB, doctor *domain.Doctor) error {
	return db.WithContext(ctx).Create(doctor).Error
}

func (r *repo) FindPatient(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Patient, error) {
	var p domain.Patient
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindDoctor(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Doctor, error) {
	var d domain.Doctor
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&d).Error; err != nil {
		return nil, err
	}
	if d.ID == 0 {
		return nil, nil
	}
	return &d, nil
}

// SearchPatients matches name or MRN.
func (r *repo) SearchPatients(ctx context.Context, db *gorm.DB, text string, limit int) ([]*domain.Patient, error) {
	stmt := db.WithContext(ctx).Model(&domain.Patient{})
	if strings.TrimSpace(text) != "" {
		like := pkgdb.ContainsPattern(text)
		stmt = stmt.Where("(LOWER(name) LIKE ? ESCAPE '!') OR (LOWER(mrn) LIKE ? ESCAPE '!')", like, like)
	}

	var out []*domain.Patient
	if err := stmt.Order("name asc, id asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SearchDoctors matches name or registration number among active doctors.
func (r *repo) SearchDoctors(ctx context.Context, db *gorm.DB, text string, limit int) ([]*domain.Doctor, error) {
	stmt := db.WithContext(ctx).Model(&domain.Doctor{}).Where("active = ?", true)
	if strings.TrimSpace(text) != "" {
		like := pkgdb.ContainsPattern(text)
		stmt = stmt.Where("(LOWER(name) LIKE ? ESCAPE '!') OR (LOWER(registration_no) LIKE ? ESCAPE '!')", like, like)
	}

	var out []*domain.Doctor
	if err := stmt.Order("name asc, id asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
