package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sessionbill/sessionbill-backend/api/responses"
	"github.com/sessionbill/sessionbill-backend/api/validators"
	"github.com/sessionbill/sessionbill-backend/internal/sessions"
	"github.com/sessionbill/sessionbill-backend/internal/templates"
	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	"github.com/sessionbill/sessionbill-backend/pkg/enums"
	pkgerrors "github.com/sessionbill/sessionbill-backend/pkg/errors"
	"github.com/sessionbill/sessionbill-backend/pkg/logger"
	"github.com/sessionbill/sessionbill-backend/pkg/pagination"
)

const dateLayout = "2006-01-02"

type sessionCreateRequest struct {
	ClientID string    `json:"client_id" validate:"required"`
	Name     string    `json:"name" validate:"required"`
	StartsAt time.Time `json:"starts_at" validate:"required"`
	EndsAt   time.Time `json:"ends_at" validate:"required"`
}

type sessionUpdateRequest struct {
	Name     *string    `json:"name"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

type templateSlotRequest struct {
	ClientID     string `json:"client_id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Weekday      int    `json:"weekday" validate:"min=0,max=6"`
	StartHour    int    `json:"start_hour" validate:"min=0,max=23"`
	StartMinute  int    `json:"start_minute" validate:"min=0,max=59"`
	DurationMins int    `json:"duration_minutes" validate:"required,min=1"`
}

type templateApplyRequest struct {
	From  string                `json:"from" validate:"required"`
	To    string                `json:"to" validate:"required"`
	Slots []templateSlotRequest `json:"slots" validate:"required,min=1,dive"`
}

type sessionResponse struct {
	ID        uuid.UUID  `json:"id"`
	ClientID  uuid.UUID  `json:"client_id"`
	Name      string     `json:"name"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    time.Time  `json:"ends_at"`
	Hours     string     `json:"hours"`
	Status    string     `json:"status"`
	InvoiceID *uuid.UUID `json:"invoice_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type sessionListResponse struct {
	Sessions   []sessionResponse `json:"sessions"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func sessionResponseFromModel(session *models.ClassSession) sessionResponse {
	return sessionResponse{
		ID:        session.ID,
		ClientID:  session.ClientID,
		Name:      session.Name,
		StartsAt:  session.StartsAt,
		EndsAt:    session.EndsAt,
		Hours:     session.DurationHours().StringFixed(2),
		Status:    string(session.Status),
		InvoiceID: session.InvoiceID,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
}

func sessionResponsesFromModels(list []models.ClassSession) []sessionResponse {
	out := make([]sessionResponse, 0, len(list))
	for i := range list {
		out = append(out, sessionResponseFromModel(&list[i]))
	}
	return out
}

// SessionCreate schedules a single session for a client.
func SessionCreate(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload sessionCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		clientID, err := uuid.Parse(payload.ClientID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid client_id"))
			return
		}

		created, err := svc.CreateSession(r.Context(), sessions.CreateSessionInput{
			ClientID: clientID,
			Name:     payload.Name,
			StartsAt: payload.StartsAt,
			EndsAt:   payload.EndsAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, sessionResponseFromModel(created))
	}
}

// SessionUpdate patches an uninvoiced scheduled session.
func SessionUpdate(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "sessionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload sessionUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.UpdateSession(r.Context(), id, sessions.UpdateSessionInput{
			Name:     payload.Name,
			StartsAt: payload.StartsAt,
			EndsAt:   payload.EndsAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, sessionResponseFromModel(updated))
	}
}

// SessionGet returns a single session by id.
func SessionGet(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "sessionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.GetSession(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, sessionResponseFromModel(session))
	}
}

// SessionList pages sessions ordered by start time.
func SessionList(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, err := sessionListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListSessions(r.Context(), filters, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, sessionListResponse{
			Sessions:   sessionResponsesFromModels(result.Sessions),
			NextCursor: result.NextCursor,
		})
	}
}

// SessionWeek returns the sessions of the week containing the anchor date.
func SessionWeek(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		anchor := time.Now().UTC()
		if raw := r.URL.Query().Get("date"); raw != "" {
			parsed, err := time.Parse(dateLayout, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date"))
				return
			}
			anchor = parsed
		}

		var clientID *uuid.UUID
		if raw := r.URL.Query().Get("client_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid client_id"))
				return
			}
			clientID = &id
		}

		week, err := svc.ListWeek(r.Context(), anchor, clientID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, sessionResponsesFromModels(week))
	}
}

// SessionComplete marks a scheduled session as held.
func SessionComplete(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return sessionTransition(svc.CompleteSession, logg)
}

// SessionCancel marks a scheduled session as cancelled.
func SessionCancel(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return sessionTransition(svc.CancelSession, logg)
}

func sessionTransition(op func(ctx context.Context, id uuid.UUID) (*models.ClassSession, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "sessionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := op(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, sessionResponseFromModel(session))
	}
}

// SessionDelete removes an uninvoiced session.
func SessionDelete(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "sessionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteSession(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// SessionTemplateApply expands a weekly template into scheduled sessions over
// a date range.
func SessionTemplateApply(svc templates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload templateApplyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		from, err := time.Parse(dateLayout, payload.From)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from date"))
			return
		}
		to, err := time.Parse(dateLayout, payload.To)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to date"))
			return
		}

		template := templates.WeeklyTemplate{Slots: make([]templates.Slot, 0, len(payload.Slots))}
		for _, slot := range payload.Slots {
			clientID, parseErr := uuid.Parse(slot.ClientID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid client_id"))
				return
			}
			template.Slots = append(template.Slots, templates.Slot{
				ClientID:    clientID,
				Name:        slot.Name,
				Weekday:     time.Weekday(slot.Weekday),
				StartHour:   slot.StartHour,
				StartMinute: slot.StartMinute,
				Duration:    time.Duration(slot.DurationMins) * time.Minute,
			})
		}

		created, err := svc.Apply(r.Context(), template, from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, sessionResponsesFromModels(created))
	}
}

func sessionListFilters(r *http.Request) (sessions.ListFilters, error) {
	var filters sessions.ListFilters
	query := r.URL.Query()

	if raw := query.Get("client_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid client_id")
		}
		filters.ClientID = &id
	}
	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from date")
		}
		filters.From = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to date")
		}
		filters.To = &to
	}
	if raw := query.Get("status"); raw != "" {
		status, err := enums.ParseSessionStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		filters.Status = &status
	}

	return filters, nil
}
