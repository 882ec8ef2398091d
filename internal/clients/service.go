package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	pkgerrors "github.com/sessionbill/sessionbill-backend/pkg/errors"
)

// Service exposes client management operations.
type Service interface {
	CreateClient(ctx context.Context, input CreateClientInput) (*models.Client, error)
	UpdateClient(ctx context.Context, id uuid.UUID, input UpdateClientInput) (*models.Client, error)
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	ListClients(ctx context.Context, includeInactive bool) ([]models.Client, error)
	DeleteClient(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo Repository
}

// CreateClientInput holds the fields required to register a client.
type CreateClientInput struct {
	Name          string
	Address       string
	ContactPerson *string
	HourlyRate    decimal.Decimal
}

// UpdateClientInput holds optional updates; nil fields are left unchanged.
type UpdateClientInput struct {
	Name          *string
	Address       *string
	ContactPerson *string
	HourlyRate    *decimal.Decimal
	Active        *bool
}

// NewService builds a client service backed by the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("clients repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreateClient(ctx context.Context, input CreateClientInput) (*models.Client, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client name is required")
	}
	if !input.HourlyRate.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hourly rate must be greater than zero")
	}

	client := &models.Client{
		Name:          name,
		Address:       strings.TrimSpace(input.Address),
		ContactPerson: input.ContactPerson,
		HourlyRate:    input.HourlyRate.Round(2),
		Active:        true,
	}
	created, err := s.repo.Create(ctx, client)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating client")
	}
	return created, nil
}

func (s *service) UpdateClient(ctx context.Context, id uuid.UUID, input UpdateClientInput) (*models.Client, error) {
	client, err := s.findClient(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "client name cannot be empty")
		}
		client.Name = name
	}
	if input.Address != nil {
		client.Address = strings.TrimSpace(*input.Address)
	}
	if input.ContactPerson != nil {
		client.ContactPerson = input.ContactPerson
	}
	if input.HourlyRate != nil {
		if !input.HourlyRate.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "hourly rate must be greater than zero")
		}
		// Rate changes apply to future invoices only. Issued invoices keep
		// the rate they were billed at.
		client.HourlyRate = input.HourlyRate.Round(2)
	}
	if input.Active != nil {
		client.Active = *input.Active
	}

	if err := s.repo.Update(ctx, client); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating client")
	}
	return client, nil
}

func (s *service) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	return s.findClient(ctx, id)
}

func (s *service) ListClients(ctx context.Context, includeInactive bool) ([]models.Client, error) {
	rows, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing clients")
	}
	return rows, nil
}

func (s *service) DeleteClient(ctx context.Context, id uuid.UUID) error {
	if _, err := s.findClient(ctx, id); err != nil {
		return err
	}

	count, err := s.repo.CountSessions(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting client sessions")
	}
	if count > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "client has sessions and cannot be deleted, deactivate it instead")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting client")
	}
	return nil
}

func (s *service) findClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id is required")
	}
	client, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading client")
	}
	return client, nil
}
