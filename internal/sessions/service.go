package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sessionbill/sessionbill-backend/internal/calendar"
	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	"github.com/sessionbill/sessionbill-backend/pkg/enums"
	pkgerrors "github.com/sessionbill/sessionbill-backend/pkg/errors"
	"github.com/sessionbill/sessionbill-backend/pkg/pagination"
)

type clientsRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Client, error)
}

// Service exposes session scheduling and lifecycle operations.
type Service interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*models.ClassSession, error)
	UpdateSession(ctx context.Context, id uuid.UUID, input UpdateSessionInput) (*models.ClassSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.ClassSession, error)
	ListSessions(ctx context.Context, filters ListFilters, params pagination.Params) (*ListResult, error)
	ListWeek(ctx context.Context, anchor time.Time, clientID *uuid.UUID) ([]models.ClassSession, error)
	CompleteSession(ctx context.Context, id uuid.UUID) (*models.ClassSession, error)
	CancelSession(ctx context.Context, id uuid.UUID) (*models.ClassSession, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// ListResult carries one page of sessions plus the cursor for the next page.
type ListResult struct {
	Sessions   []models.ClassSession
	NextCursor string
}

// CreateSessionInput holds the fields required to schedule a session.
type CreateSessionInput struct {
	ClientID uuid.UUID
	Name     string
	StartsAt time.Time
	EndsAt   time.Time
}

// UpdateSessionInput holds optional updates; nil fields are left unchanged.
type UpdateSessionInput struct {
	Name     *string
	StartsAt *time.Time
	EndsAt   *time.Time
}

type service struct {
	repo    Repository
	clients clientsRepository
}

// NewService builds a session service backed by the provided repositories.
func NewService(repo Repository, clients clientsRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("sessions repository required")
	}
	if clients == nil {
		return nil, fmt.Errorf("clients repository required")
	}
	return &service{repo: repo, clients: clients}, nil
}

func (s *service) CreateSession(ctx context.Context, input CreateSessionInput) (*models.ClassSession, error) {
	if input.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session name is required")
	}
	if _, err := calendar.DurationHours(input.StartsAt, input.EndsAt); err != nil {
		return nil, err
	}

	client, err := s.clients.FindByID(ctx, input.ClientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading client")
	}
	if !client.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot schedule sessions for an inactive client")
	}

	session := &models.ClassSession{
		ClientID: client.ID,
		Name:     name,
		StartsAt: input.StartsAt,
		EndsAt:   input.EndsAt,
		Status:   enums.SessionStatusScheduled,
	}
	created, err := s.repo.Create(ctx, session)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating session")
	}
	return created, nil
}

func (s *service) UpdateSession(ctx context.Context, id uuid.UUID, input UpdateSessionInput) (*models.ClassSession, error) {
	session, err := s.findSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Invoiced() {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyInvoiced, "invoiced sessions cannot be modified")
	}
	if session.Status != enums.SessionStatusScheduled {
		return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition, "only scheduled sessions can be modified")
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "session name cannot be empty")
		}
		session.Name = name
	}
	startsAt := session.StartsAt
	endsAt := session.EndsAt
	if input.StartsAt != nil {
		startsAt = *input.StartsAt
	}
	if input.EndsAt != nil {
		endsAt = *input.EndsAt
	}
	if _, err := calendar.DurationHours(startsAt, endsAt); err != nil {
		return nil, err
	}
	session.StartsAt = startsAt
	session.EndsAt = endsAt

	if err := s.repo.Update(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating session")
	}
	return session, nil
}

func (s *service) GetSession(ctx context.Context, id uuid.UUID) (*models.ClassSession, error) {
	return s.findSession(ctx, id)
}

func (s *service) ListSessions(ctx context.Context, filters ListFilters, params pagination.Params) (*ListResult, error) {
	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing sessions")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	result := &ListResult{Sessions: rows}
	if len(rows) > limit {
		result.Sessions = rows[:limit]
		last := result.Sessions[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			Timestamp: last.StartsAt,
			ID:        last.ID,
		})
	}
	return result, nil
}

func (s *service) ListWeek(ctx context.Context, anchor time.Time, clientID *uuid.UUID) ([]models.ClassSession, error) {
	from := calendar.WeekStart(anchor)
	to := calendar.WeekEnd(anchor).AddDate(0, 0, 1)

	rows, err := s.repo.List(ctx, ListFilters{
		ClientID: clientID,
		From:     &from,
		To:       &to,
	}, pagination.Params{Limit: pagination.MaxLimit})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing week sessions")
	}
	if len(rows) > pagination.MaxLimit {
		rows = rows[:pagination.MaxLimit]
	}
	return rows, nil
}

func (s *service) CompleteSession(ctx context.Context, id uuid.UUID) (*models.ClassSession, error) {
	return s.transition(ctx, id, enums.SessionStatusCompleted)
}

func (s *service) CancelSession(ctx context.Context, id uuid.UUID) (*models.ClassSession, error) {
	return s.transition(ctx, id, enums.SessionStatusCancelled)
}

// transition performs a compare-and-set status flip. A zero row count is
// diagnosed by re-reading the session so callers get a precise error instead
// of a generic conflict.
func (s *service) transition(ctx context.Context, id uuid.UUID, to enums.SessionStatus) (*models.ClassSession, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	affected, err := s.repo.TransitionStatus(ctx, id, enums.SessionStatusScheduled, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating session status")
	}
	if affected == 0 {
		session, findErr := s.findSession(ctx, id)
		if findErr != nil {
			return nil, findErr
		}
		if session.Invoiced() {
			return nil, pkgerrors.New(pkgerrors.CodeAlreadyInvoiced, "session is attached to an invoice")
		}
		if session.Status == to {
			// Lost race against an identical transition; treat as success.
			return session, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition,
			fmt.Sprintf("cannot move session from %s to %s", session.Status, to))
	}

	return s.findSession(ctx, id)
}

func (s *service) DeleteSession(ctx context.Context, id uuid.UUID) error {
	session, err := s.findSession(ctx, id)
	if err != nil {
		return err
	}
	if session.Invoiced() {
		return pkgerrors.New(pkgerrors.CodeAlreadyInvoiced, "invoiced sessions cannot be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting session")
	}
	return nil
}

func (s *service) findSession(ctx context.Context, id uuid.UUID) (*models.ClassSession, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading session")
	}
	return session, nil
}
