package controllers

import (
	"net/http"

	"github.com/sessionbill/sessionbill-backend/api/responses"
	"github.com/sessionbill/sessionbill-backend/api/validators"
	"github.com/sessionbill/sessionbill-backend/internal/profile"
	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	"github.com/sessionbill/sessionbill-backend/pkg/logger"
)

type profileUpdateRequest struct {
	Name        *string `json:"name"`
	Address     *string `json:"address"`
	TaxID       *string `json:"tax_id"`
	BankDetails *string `json:"bank_details"`
}

type profileResponse struct {
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	TaxID       *string `json:"tax_id,omitempty"`
	BankDetails *string `json:"bank_details,omitempty"`
}

func profileResponseFromModel(p *models.UserProfile) profileResponse {
	return profileResponse{
		Name:        p.Name,
		Address:     p.Address,
		TaxID:       p.TaxID,
		BankDetails: p.BankDetails,
	}
}

// ProfileGet returns the issuer details printed on invoices.
func ProfileGet(svc profile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.GetProfile(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, profileResponseFromModel(p))
	}
}

// ProfileUpdate patches the issuer details, creating the profile on first use.
func ProfileUpdate(svc profile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload profileUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.UpdateProfile(r.Context(), profile.UpdateInput{
			Name:        payload.Name,
			Address:     payload.Address,
			TaxID:       payload.TaxID,
			BankDetails: payload.BankDetails,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, profileResponseFromModel(updated))
	}
}
