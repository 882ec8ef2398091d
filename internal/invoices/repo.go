package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	"github.com/sessionbill/sessionbill-backend/pkg/enums"
	"github.com/sessionbill/sessionbill-backend/pkg/pagination"
)

// ListFilters narrows invoice listings.
type ListFilters struct {
	ClientID *uuid.UUID
	Status   *enums.InvoiceStatus
	Year     *int
}

// PeriodTotals aggregates issued invoices over a date range.
type PeriodTotals struct {
	InvoiceCount int64
	TotalHours   decimal.Decimal
	TotalAmount  decimal.Decimal
}

// Repository defines persistence operations for invoices and their sessions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Invoice, error)
	Updates(ctx context.Context, id uuid.UUID, updates map[string]any) error
	// MaxSequenceNumber returns the highest allocated sequence for the year,
	// zero when the year has no invoices yet.
	MaxSequenceNumber(ctx context.Context, year int) (int, error)
	// BillableSessions returns completed, not yet invoiced sessions for the
	// client whose start falls inside the period, ordered by start time.
	BillableSessions(ctx context.Context, clientID uuid.UUID, periodStart, periodEnd time.Time) ([]models.ClassSession, error)
	// LinkSessions attaches sessions to an invoice, skipping any row another
	// invoice claimed first. Returns the number of rows actually linked.
	LinkSessions(ctx context.Context, invoiceID uuid.UUID, sessionIDs []uuid.UUID) (int64, error)
	SessionsForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.ClassSession, error)
	Totals(ctx context.Context, from, to time.Time) (PeriodTotals, error)
	CountUninvoicedCompleted(ctx context.Context) (int64, error)
	PendingAmount(ctx context.Context) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an invoices repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error) {
	if err := r.db.WithContext(ctx).Create(invoice).Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Invoice, error) {
	query := r.db.WithContext(ctx).Model(&models.Invoice{})

	if filters.ClientID != nil {
		query = query.Where("client_id = ?", *filters.ClientID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Year != nil {
		query = query.Where("year = ?", *filters.Year)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(issued_on < ?) OR (issued_on = ? AND id < ?)", cursor.Timestamp, cursor.Timestamp, cursor.ID)
	}

	query = query.Order("issued_on DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit))

	var rows []models.Invoice
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Updates(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) MaxSequenceNumber(ctx context.Context, year int) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("year = ?", year).
		Select("MAX(sequence_number)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *repository) BillableSessions(ctx context.Context, clientID uuid.UUID, periodStart, periodEnd time.Time) ([]models.ClassSession, error) {
	var rows []models.ClassSession
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Where("status = ?", enums.SessionStatusCompleted).
		Where("invoice_id IS NULL").
		Where("starts_at >= ? AND starts_at < ?", periodStart, periodEnd).
		Order("starts_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) LinkSessions(ctx context.Context, invoiceID uuid.UUID, sessionIDs []uuid.UUID) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.ClassSession{}).
		Where("id IN ?", sessionIDs).
		Where("invoice_id IS NULL").
		Where("status = ?", enums.SessionStatusCompleted).
		Update("invoice_id", invoiceID)
	return result.RowsAffected, result.Error
}

func (r *repository) SessionsForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.ClassSession, error) {
	var rows []models.ClassSession
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("starts_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Totals(ctx context.Context, from, to time.Time) (PeriodTotals, error) {
	var row struct {
		InvoiceCount int64
		TotalHours   decimal.NullDecimal
		TotalAmount  decimal.NullDecimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Select("COUNT(*) AS invoice_count, SUM(total_hours) AS total_hours, SUM(total_amount) AS total_amount").
		Where("issued_on >= ? AND issued_on < ?", from, to).
		Scan(&row).Error
	if err != nil {
		return PeriodTotals{}, err
	}

	totals := PeriodTotals{
		InvoiceCount: row.InvoiceCount,
		TotalHours:   decimal.Zero,
		TotalAmount:  decimal.Zero,
	}
	if row.TotalHours.Valid {
		totals.TotalHours = row.TotalHours.Decimal
	}
	if row.TotalAmount.Valid {
		totals.TotalAmount = row.TotalAmount.Decimal
	}
	return totals, nil
}

// PendingAmount sums the totals of issued invoices that have not been paid.
func (r *repository) PendingAmount(ctx context.Context) (decimal.Decimal, error) {
	var row struct {
		Pending decimal.NullDecimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Select("SUM(total_amount) AS pending").
		Where("status <> ?", enums.InvoiceStatusPaid).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !row.Pending.Valid {
		return decimal.Zero, nil
	}
	return row.Pending.Decimal, nil
}

func (r *repository) CountUninvoicedCompleted(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ClassSession{}).
		Where("status = ?", enums.SessionStatusCompleted).
		Where("invoice_id IS NULL").
		Count(&count).Error
	return count, err
}
