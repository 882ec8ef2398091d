package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client is a studio or private customer sessions are taught for.
type Client struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string          `gorm:"column:name;not null"`
	Address       string          `gorm:"column:address;not null"`
	ContactPerson *string         `gorm:"column:contact_person"`
	HourlyRate    decimal.Decimal `gorm:"column:hourly_rate;type:numeric(10,2);not null"`
	Active        bool            `gorm:"column:active;not null;default:true"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
