package models

import (
	"time"

	"github.com/google/uuid"
)

// UserProfile holds the issuer details printed on rendered invoices.
type UserProfile struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string    `gorm:"column:name;not null"`
	Address     string    `gorm:"column:address;not null"`
	TaxID       *string   `gorm:"column:tax_id"`
	BankDetails *string   `gorm:"column:bank_details"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
