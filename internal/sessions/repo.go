package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	"github.com/sessionbill/sessionbill-backend/pkg/enums"
	"github.com/sessionbill/sessionbill-backend/pkg/pagination"
)

// ListFilters narrows session listings.
type ListFilters struct {
	ClientID *uuid.UUID
	From     *time.Time
	To       *time.Time
	Status   *enums.SessionStatus
}

// Repository defines persistence operations for class sessions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.ClassSession) (*models.ClassSession, error)
	CreateBatch(ctx context.Context, sessions []models.ClassSession) error
	Update(ctx context.Context, session *models.ClassSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ClassSession, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.ClassSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// TransitionStatus flips status from one value to another only while the
	// session is not attached to an invoice. Returns the number of rows changed.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SessionStatus) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a sessions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.ClassSession) (*models.ClassSession, error) {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (r *repository) CreateBatch(ctx context.Context, sessions []models.ClassSession) error {
	if len(sessions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&sessions).Error
}

func (r *repository) Update(ctx context.Context, session *models.ClassSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ClassSession, error) {
	var session models.ClassSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.ClassSession, error) {
	query := r.db.WithContext(ctx).Model(&models.ClassSession{})

	if filters.ClientID != nil {
		query = query.Where("client_id = ?", *filters.ClientID)
	}
	if filters.From != nil {
		query = query.Where("starts_at >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("starts_at < ?", *filters.To)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(starts_at > ?) OR (starts_at = ? AND id > ?)", cursor.Timestamp, cursor.Timestamp, cursor.ID)
	}

	query = query.Order("starts_at ASC").Order("id ASC").Limit(pagination.LimitWithBuffer(params.Limit))

	var rows []models.ClassSession
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ClassSession{}).Error
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SessionStatus) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ClassSession{}).
		Where("id = ? AND status = ? AND invoice_id IS NULL", id, from).
		Update("status", to)
	return result.RowsAffected, result.Error
}
