// Package profile manages the studio owner's billing identity, which appears
// on every rendered invoice.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	pkgerrors "github.com/sessionbill/sessionbill-backend/pkg/errors"
)

// UpdateInput holds optional profile updates; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string
	Address     *string
	TaxID       *string
	BankDetails *string
}

// Service exposes owner profile operations.
type Service interface {
	GetProfile(ctx context.Context) (*models.UserProfile, error)
	UpdateProfile(ctx context.Context, input UpdateInput) (*models.UserProfile, error)
}

type service struct {
	repo Repository
}

// NewService builds a profile service backed by the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("profile repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetProfile(ctx context.Context) (*models.UserProfile, error) {
	profile, err := s.repo.Find(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not configured yet")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading profile")
	}
	return profile, nil
}

// UpdateProfile creates the profile on first use and patches it afterwards.
func (s *service) UpdateProfile(ctx context.Context, input UpdateInput) (*models.UserProfile, error) {
	profile, err := s.repo.Find(ctx)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading profile")
		}
		profile = &models.UserProfile{}
	}

	if input.Name != nil {
		profile.Name = strings.TrimSpace(*input.Name)
	}
	if input.Address != nil {
		profile.Address = strings.TrimSpace(*input.Address)
	}
	if input.TaxID != nil {
		v := strings.TrimSpace(*input.TaxID)
		profile.TaxID = &v
	}
	if input.BankDetails != nil {
		v := strings.TrimSpace(*input.BankDetails)
		profile.BankDetails = &v
	}
	if profile.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile name is required")
	}

	if err := s.repo.Save(ctx, profile); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving profile")
	}
	return profile, nil
}
