package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sessionbill/sessionbill-backend/api/responses"
	"github.com/sessionbill/sessionbill-backend/api/validators"
	"github.com/sessionbill/sessionbill-backend/internal/clients"
	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	pkgerrors "github.com/sessionbill/sessionbill-backend/pkg/errors"
	"github.com/sessionbill/sessionbill-backend/pkg/logger"
)

type clientCreateRequest struct {
	Name          string  `json:"name" validate:"required"`
	Address       string  `json:"address" validate:"required"`
	ContactPerson *string `json:"contact_person"`
	HourlyRate    string  `json:"hourly_rate" validate:"required"`
}

type clientUpdateRequest struct {
	Name          *string `json:"name"`
	Address       *string `json:"address"`
	ContactPerson *string `json:"contact_person"`
	HourlyRate    *string `json:"hourly_rate"`
	Active        *bool   `json:"active"`
}

type clientResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	ContactPerson *string   `json:"contact_person,omitempty"`
	HourlyRate    string    `json:"hourly_rate"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func clientResponseFromModel(client *models.Client) clientResponse {
	return clientResponse{
		ID:            client.ID,
		Name:          client.Name,
		Address:       client.Address,
		ContactPerson: client.ContactPerson,
		HourlyRate:    client.HourlyRate.StringFixed(2),
		Active:        client.Active,
		CreatedAt:     client.CreatedAt,
		UpdatedAt:     client.UpdatedAt,
	}
}

func parseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(validators.SanitizeString(raw, 32))
	if err != nil {
		return decimal.Decimal{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid hourly_rate")
	}
	return rate, nil
}

// ClientCreate registers a new client with its billing rate.
func ClientCreate(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload clientCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rate, err := parseRate(payload.HourlyRate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.CreateClient(r.Context(), clients.CreateClientInput{
			Name:          payload.Name,
			Address:       payload.Address,
			ContactPerson: payload.ContactPerson,
			HourlyRate:    rate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, clientResponseFromModel(created))
	}
}

// ClientUpdate patches client fields; rate changes only affect future invoices.
func ClientUpdate(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "clientID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload clientUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := clients.UpdateClientInput{
			Name:          payload.Name,
			Address:       payload.Address,
			ContactPerson: payload.ContactPerson,
			Active:        payload.Active,
		}
		if payload.HourlyRate != nil {
			rate, rateErr := parseRate(*payload.HourlyRate)
			if rateErr != nil {
				responses.WriteError(r.Context(), logg, w, rateErr)
				return
			}
			input.HourlyRate = &rate
		}

		updated, err := svc.UpdateClient(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, clientResponseFromModel(updated))
	}
}

// ClientGet returns a single client by id.
func ClientGet(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "clientID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		client, err := svc.GetClient(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, clientResponseFromModel(client))
	}
}

// ClientList returns clients ordered by name. Inactive clients are hidden
// unless include_inactive=true.
func ClientList(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeInactive := r.URL.Query().Get("include_inactive") == "true"

		listed, err := svc.ListClients(r.Context(), includeInactive)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]clientResponse, 0, len(listed))
		for i := range listed {
			out = append(out, clientResponseFromModel(&listed[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// ClientDelete removes a client that has no sessions.
func ClientDelete(svc clients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "clientID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteClient(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
	}
	return id, nil
}
