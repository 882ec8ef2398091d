package templates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	pkgerrors "github.com/sessionbill/sessionbill-backend/pkg/errors"
)

type sessionsRepository interface {
	CreateBatch(ctx context.Context, sessions []models.ClassSession) error
}

type clientsRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Client, error)
}

// Service applies weekly templates to the schedule.
type Service interface {
	Apply(ctx context.Context, template WeeklyTemplate, from, to time.Time) ([]models.ClassSession, error)
}

type service struct {
	sessions sessionsRepository
	clients  clientsRepository
}

// NewService builds a template service backed by the provided repositories.
func NewService(sessions sessionsRepository, clients clientsRepository) (Service, error) {
	if sessions == nil {
		return nil, fmt.Errorf("sessions repository required")
	}
	if clients == nil {
		return nil, fmt.Errorf("clients repository required")
	}
	return &service{sessions: sessions, clients: clients}, nil
}

// Apply expands the template into scheduled sessions and persists them. Every
// referenced client must exist and be active.
func (s *service) Apply(ctx context.Context, template WeeklyTemplate, from, to time.Time) ([]models.ClassSession, error) {
	expanded, err := Expand(template, from, to)
	if err != nil {
		return nil, err
	}
	if len(expanded) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "template produces no sessions in the range")
	}

	seen := make(map[uuid.UUID]bool)
	for _, slot := range template.Slots {
		if seen[slot.ClientID] {
			continue
		}
		seen[slot.ClientID] = true

		client, err := s.clients.FindByID(ctx, slot.ClientID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "slot client not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading slot client")
		}
		if !client.Active {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot schedule sessions for an inactive client")
		}
	}

	if err := s.sessions.CreateBatch(ctx, expanded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating template sessions")
	}
	return expanded, nil
}
