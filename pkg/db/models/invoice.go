package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sessionbill/sessionbill-backend/pkg/enums"
)

// Invoice is a numbered bill for a set of completed sessions. The
// (Year, SequenceNumber) pair is globally unique; the human-readable number is
// always derived from the pair, never stored.
type Invoice struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Year           int                 `gorm:"column:year;not null;uniqueIndex:invoices_year_sequence_number_key,priority:1"`
	SequenceNumber int                 `gorm:"column:sequence_number;not null;uniqueIndex:invoices_year_sequence_number_key,priority:2"`
	ClientID       uuid.UUID           `gorm:"column:client_id;type:uuid;not null;index"`
	IssuedOn       time.Time           `gorm:"column:issued_on;not null"`
	PeriodStart    time.Time           `gorm:"column:period_start;not null"`
	PeriodEnd      time.Time           `gorm:"column:period_end;not null"`
	TotalHours     decimal.Decimal     `gorm:"column:total_hours;type:numeric(10,2);not null"`
	TotalAmount    decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	HourlyRate     decimal.Decimal     `gorm:"column:hourly_rate;type:numeric(10,2);not null"`
	Status         enums.InvoiceStatus `gorm:"column:status;type:text;not null;default:'created'"`
	DueDate        *time.Time          `gorm:"column:due_date"`
	PaidDate       *time.Time          `gorm:"column:paid_date"`
	PDFPath        *string             `gorm:"column:pdf_path"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Number renders the external invoice number, e.g. "3/2025".
func (i Invoice) Number() string {
	return fmt.Sprintf("%d/%d", i.SequenceNumber, i.Year)
}
