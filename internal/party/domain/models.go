package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Patient struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	MRN         string       `gorm:"column:mrn;type:varchar(64);not null;uniqueIndex" json:"mrn"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Phone       string       `gorm:"type:text" json:"phone,omitempty"`
	Gender      string       `gorm:"type:text" json:"gender,omitempty"`
	DateOfBirth *time.Time   `json:"date_of_birth,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Patient) TableName() string { return "patients" }

type Doctor struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	RegistrationNo string       `gorm:"type:varchar(64);not null;uniqueIndex" json:"registration_no"`
	Name           string       `gorm:"type:text;not null" json:"name"`
	Specialty      string       `gorm:"type:text" json:"specialty,omitempty"`
	Active         bool         `gorm:"not null" json:"active"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Doctor) TableName() string { return "doctors" }

type CreatePatientRequest struct {
	MRN         string     `json:"mrn"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone"`
	Gender      string     `json:"gender"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

type CreateDoctorRequest struct {
	RegistrationNo string `json:"registration_no"`
	Name           string `json:"name"`
	Specialty      string `json:"specialty"`
}
