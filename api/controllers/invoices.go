package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sessionbill/sessionbill-backend/api/responses"
	"github.com/sessionbill/sessionbill-backend/api/validators"
	"github.com/sessionbill/sessionbill-backend/internal/invoices"
	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	"github.com/sessionbill/sessionbill-backend/pkg/enums"
	pkgerrors "github.com/sessionbill/sessionbill-backend/pkg/errors"
	"github.com/sessionbill/sessionbill-backend/pkg/logger"
	"github.com/sessionbill/sessionbill-backend/pkg/pagination"
)

type invoiceGenerateRequest struct {
	ClientID    string `json:"client_id" validate:"required"`
	PeriodStart string `json:"period_start" validate:"required"`
	PeriodEnd   string `json:"period_end" validate:"required"`
	IssuedOn    string `json:"issued_on"`
}

type invoiceStatusRequest struct {
	Status   string `json:"status" validate:"required"`
	PaidDate string `json:"paid_date"`
}

type invoiceResponse struct {
	ID             uuid.UUID  `json:"id"`
	Number         string     `json:"number"`
	Year           int        `json:"year"`
	SequenceNumber int        `json:"sequence_number"`
	ClientID       uuid.UUID  `json:"client_id"`
	IssuedOn       time.Time  `json:"issued_on"`
	PeriodStart    time.Time  `json:"period_start"`
	PeriodEnd      time.Time  `json:"period_end"`
	TotalHours     string     `json:"total_hours"`
	TotalAmount    string     `json:"total_amount"`
	HourlyRate     string     `json:"hourly_rate"`
	Status         string     `json:"status"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	PaidDate       *time.Time `json:"paid_date,omitempty"`
	PDFPath        *string    `json:"pdf_path,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type invoiceDetailResponse struct {
	Invoice  invoiceResponse   `json:"invoice"`
	Sessions []sessionResponse `json:"sessions"`
}

type invoiceListResponse struct {
	Invoices   []invoiceResponse `json:"invoices"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type periodTotalsResponse struct {
	InvoiceCount int64  `json:"invoice_count"`
	TotalHours   string `json:"total_hours"`
	TotalAmount  string `json:"total_amount"`
}

type dashboardResponse struct {
	Month              periodTotalsResponse `json:"month"`
	Quarter            periodTotalsResponse `json:"quarter"`
	Year               periodTotalsResponse `json:"year"`
	PendingAmount      string               `json:"pending_amount"`
	UninvoicedSessions int64                `json:"uninvoiced_sessions"`
}

func invoiceResponseFromModel(invoice *models.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:             invoice.ID,
		Number:         invoice.Number(),
		Year:           invoice.Year,
		SequenceNumber: invoice.SequenceNumber,
		ClientID:       invoice.ClientID,
		IssuedOn:       invoice.IssuedOn,
		PeriodStart:    invoice.PeriodStart,
		PeriodEnd:      invoice.PeriodEnd,
		TotalHours:     invoice.TotalHours.StringFixed(2),
		TotalAmount:    invoice.TotalAmount.StringFixed(2),
		HourlyRate:     invoice.HourlyRate.StringFixed(2),
		Status:         string(invoice.Status),
		DueDate:        invoice.DueDate,
		PaidDate:       invoice.PaidDate,
		PDFPath:        invoice.PDFPath,
		CreatedAt:      invoice.CreatedAt,
	}
}

func invoiceDetailResponseFrom(detail *invoices.Detail) invoiceDetailResponse {
	return invoiceDetailResponse{
		Invoice:  invoiceResponseFromModel(&detail.Invoice),
		Sessions: sessionResponsesFromModels(detail.Sessions),
	}
}

func periodTotalsResponseFrom(totals invoices.PeriodTotals) periodTotalsResponse {
	return periodTotalsResponse{
		InvoiceCount: totals.InvoiceCount,
		TotalHours:   totals.TotalHours.StringFixed(2),
		TotalAmount:  totals.TotalAmount.StringFixed(2),
	}
}

// InvoiceGenerate bills the client's completed sessions in the period.
func InvoiceGenerate(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload invoiceGenerateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		clientID, err := uuid.Parse(payload.ClientID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid client_id"))
			return
		}

		periodStart, err := time.Parse(dateLayout, payload.PeriodStart)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period_start"))
			return
		}
		periodEnd, err := time.Parse(dateLayout, payload.PeriodEnd)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period_end"))
			return
		}

		input := invoices.GenerateInput{
			ClientID:    clientID,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
		}
		if payload.IssuedOn != "" {
			issuedOn, parseErr := time.Parse(dateLayout, payload.IssuedOn)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid issued_on"))
				return
			}
			input.IssuedOn = issuedOn
		}

		detail, err := svc.Generate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, invoiceDetailResponseFrom(detail))
	}
}

// InvoiceGet returns an invoice with its line item sessions.
func InvoiceGet(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "invoiceID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.GetInvoice(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, invoiceDetailResponseFrom(detail))
	}
}

// InvoiceList pages invoices newest first.
func InvoiceList(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, err := invoiceListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListInvoices(r.Context(), filters, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := invoiceListResponse{Invoices: make([]invoiceResponse, 0, len(result.Invoices)), NextCursor: result.NextCursor}
		for i := range result.Invoices {
			out.Invoices = append(out.Invoices, invoiceResponseFromModel(&result.Invoices[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// InvoiceUpdateStatus advances an invoice along created -> sent -> paid.
func InvoiceUpdateStatus(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "invoiceID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload invoiceStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseInvoiceStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		var paidDate *time.Time
		if payload.PaidDate != "" {
			parsed, parseErr := time.Parse(dateLayout, payload.PaidDate)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid paid_date"))
				return
			}
			paidDate = &parsed
		}

		updated, err := svc.UpdateStatus(r.Context(), id, status, paidDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, invoiceResponseFromModel(updated))
	}
}

// Dashboard summarizes issued totals for the current month, quarter, and year.
func Dashboard(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.Dashboard(r.Context(), time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dashboardResponse{
			Month:              periodTotalsResponseFrom(summary.Month),
			Quarter:            periodTotalsResponseFrom(summary.Quarter),
			Year:               periodTotalsResponseFrom(summary.Year),
			PendingAmount:      summary.PendingAmount.StringFixed(2),
			UninvoicedSessions: summary.UninvoicedSessions,
		})
	}
}

func invoiceListFilters(r *http.Request) (invoices.ListFilters, error) {
	var filters invoices.ListFilters
	query := r.URL.Query()

	if raw := query.Get("client_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid client_id")
		}
		filters.ClientID = &id
	}
	if raw := query.Get("status"); raw != "" {
		status, err := enums.ParseInvoiceStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		filters.Status = &status
	}
	if raw := query.Get("year"); raw != "" {
		year, err := validators.ParseQueryInt(r, "year", 0, 2000, time.Now().Year()+1)
		if err != nil {
			return filters, err
		}
		filters.Year = &year
	}

	return filters, nil
}
