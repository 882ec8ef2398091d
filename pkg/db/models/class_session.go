package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sessionbill/sessionbill-backend/pkg/enums"
)

// ClassSession is one scheduled occurrence of recurring work. Once InvoiceID
// is set the session is immutable with respect to status and timing.
type ClassSession struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID  uuid.UUID           `gorm:"column:client_id;type:uuid;not null;index"`
	Name      string              `gorm:"column:name;not null"`
	StartsAt  time.Time           `gorm:"column:starts_at;not null"`
	EndsAt    time.Time           `gorm:"column:ends_at;not null"`
	Status    enums.SessionStatus `gorm:"column:status;type:text;not null;default:'scheduled'"`
	InvoiceID *uuid.UUID          `gorm:"column:invoice_id;type:uuid;index"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// DurationHours returns the scheduled length in hours with minute precision.
func (s ClassSession) DurationHours() decimal.Decimal {
	minutes := s.EndsAt.Sub(s.StartsAt).Minutes()
	return decimal.NewFromFloat(minutes).Div(decimal.NewFromInt(60))
}

// Invoiced reports whether the session is already linked to an invoice.
func (s ClassSession) Invoiced() bool {
	return s.InvoiceID != nil
}
