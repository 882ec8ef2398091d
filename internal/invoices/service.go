package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sessionbill/sessionbill-backend/internal/calendar"
	"github.com/sessionbill/sessionbill-backend/internal/clients"
	"github.com/sessionbill/sessionbill-backend/internal/earnings"
	"github.com/sessionbill/sessionbill-backend/pkg/config"
	"github.com/sessionbill/sessionbill-backend/pkg/db"
	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	"github.com/sessionbill/sessionbill-backend/pkg/enums"
	pkgerrors "github.com/sessionbill/sessionbill-backend/pkg/errors"
	"github.com/sessionbill/sessionbill-backend/pkg/logger"
	"github.com/sessionbill/sessionbill-backend/pkg/metrics"
	"github.com/sessionbill/sessionbill-backend/pkg/pagination"
)

// Invoice sequence numbers live on a unique (year, sequence_number) index.
const sequenceConstraint = "invoices_year_sequence_number_key"

// Invoices are only issued for years inside this window.
const minInvoiceYear = 2000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type profileLoader interface {
	Find(ctx context.Context) (*models.UserProfile, error)
}

// DocumentRenderer produces the invoice document on disk and returns its path.
type DocumentRenderer interface {
	Render(ctx context.Context, doc Document) (string, error)
}

// Document bundles everything a renderer needs to produce an invoice file.
type Document struct {
	Invoice  models.Invoice
	Client   models.Client
	Sessions []models.ClassSession
	Profile  *models.UserProfile
}

// GenerateInput identifies the client and billing period to invoice.
type GenerateInput struct {
	ClientID    uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	// IssuedOn defaults to today when zero.
	IssuedOn time.Time
}

// Detail is an invoice with its line item sessions.
type Detail struct {
	Invoice  models.Invoice
	Sessions []models.ClassSession
}

// ListResult carries one page of invoices plus the cursor for the next page.
type ListResult struct {
	Invoices   []models.Invoice
	NextCursor string
}

// DashboardSummary reports issued totals for the current month, quarter, and
// year, plus how many completed sessions still await billing.
type DashboardSummary struct {
	Month              PeriodTotals
	Quarter            PeriodTotals
	Year               PeriodTotals
	PendingAmount      decimal.Decimal
	UninvoicedSessions int64
}

// Service exposes invoice generation and management.
type Service interface {
	Generate(ctx context.Context, input GenerateInput) (*Detail, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*Detail, error)
	ListInvoices(ctx context.Context, filters ListFilters, params pagination.Params) (*ListResult, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.InvoiceStatus, paidDate *time.Time) (*models.Invoice, error)
	Dashboard(ctx context.Context, now time.Time) (*DashboardSummary, error)
}

type service struct {
	tx       txRunner
	repo     Repository
	clients  clients.Repository
	profiles profileLoader
	renderer DocumentRenderer
	cfg      config.InvoicingConfig
	logg     *logger.Logger
	metrics  *metrics.BillingMetrics
	now      func() time.Time
}

// NewService builds the invoice service.
func NewService(
	tx txRunner,
	repo Repository,
	clientsRepo clients.Repository,
	profiles profileLoader,
	renderer DocumentRenderer,
	cfg config.InvoicingConfig,
	logg *logger.Logger,
	billingMetrics *metrics.BillingMetrics,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("invoices repository required")
	}
	if clientsRepo == nil {
		return nil, fmt.Errorf("clients repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.SequenceMaxAttempts <= 0 {
		cfg.SequenceMaxAttempts = 3
	}
	if cfg.DueAfter <= 0 {
		cfg.DueAfter = 720 * time.Hour
	}
	return &service{
		tx:       tx,
		repo:     repo,
		clients:  clientsRepo,
		profiles: profiles,
		renderer: renderer,
		cfg:      cfg,
		logg:     logg,
		metrics:  billingMetrics,
		now:      time.Now,
	}, nil
}

// Generate builds one invoice for the client covering the period. The billable
// session query, sequence allocation, invoice insert, and session linking all
// run inside a single transaction, so either the invoice exists with all its
// sessions attached or nothing changed. Sequence collisions with concurrent
// generators are retried a bounded number of times.
func (s *service) Generate(ctx context.Context, input GenerateInput) (*Detail, error) {
	started := s.now()

	detail, err := s.generate(ctx, input)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			s.metrics.IncFailed(string(typed.Code()))
		} else {
			s.metrics.IncFailed("")
		}
		return nil, err
	}

	s.metrics.IncIssued()
	s.metrics.ObserveBuildDuration(s.now().Sub(started))

	ctx = s.logg.WithInvoiceNumber(ctx, detail.Invoice.Number())
	s.logg.Info(ctx, "invoice generated")

	s.renderDocument(ctx, detail)
	return detail, nil
}

func (s *service) generate(ctx context.Context, input GenerateInput) (*Detail, error) {
	if input.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id is required")
	}
	if err := calendar.ValidatePeriod(input.PeriodStart, input.PeriodEnd); err != nil {
		return nil, err
	}

	issuedOn := input.IssuedOn
	if issuedOn.IsZero() {
		now := s.now().UTC()
		issuedOn = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	year := issuedOn.Year()
	if year < minInvoiceYear || year > s.now().Year()+1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("issue year %d is outside the accepted range", year))
	}

	// The period end date is inclusive; the session query is half open.
	periodEndExclusive := input.PeriodEnd.AddDate(0, 0, 1)
	dueDate := issuedOn.Add(s.cfg.DueAfter)

	var detail *Detail
	var claimConflict *pkgerrors.Error
	for attempt := 1; attempt <= s.cfg.SequenceMaxAttempts; attempt++ {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			client, err := s.clients.WithTx(tx).FindByID(ctx, input.ClientID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading client")
			}

			sessions, err := repo.BillableSessions(ctx, client.ID, input.PeriodStart, periodEndExclusive)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "querying billable sessions")
			}
			if len(sessions) == 0 {
				return pkgerrors.New(pkgerrors.CodeNoBillableSessions, "no billable sessions in period")
			}

			summary := earnings.Calculate(sessions, client.HourlyRate)

			maxSeq, err := repo.MaxSequenceNumber(ctx, year)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading sequence number")
			}

			invoice := &models.Invoice{
				Year:           year,
				SequenceNumber: maxSeq + 1,
				ClientID:       client.ID,
				IssuedOn:       issuedOn,
				PeriodStart:    input.PeriodStart,
				PeriodEnd:      input.PeriodEnd,
				TotalHours:     summary.Hours,
				TotalAmount:    summary.Amount,
				HourlyRate:     client.HourlyRate,
				Status:         enums.InvoiceStatusCreated,
				DueDate:        &dueDate,
			}
			if _, err := repo.Create(ctx, invoice); err != nil {
				return err
			}

			sessionIDs := make([]uuid.UUID, len(sessions))
			for i, session := range sessions {
				sessionIDs[i] = session.ID
			}
			linked, err := repo.LinkSessions(ctx, invoice.ID, sessionIDs)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "linking sessions")
			}
			if linked != int64(len(sessionIDs)) {
				return pkgerrors.New(pkgerrors.CodeBillingConflict,
					"another invoice claimed sessions in this period")
			}

			for i := range sessions {
				sessions[i].InvoiceID = &invoice.ID
			}
			detail = &Detail{Invoice: *invoice, Sessions: sessions}
			return nil
		})
		if err == nil {
			return detail, nil
		}
		if db.IsUniqueViolation(err, sequenceConstraint) {
			s.metrics.IncSequenceRetry()
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "invoice sequence collision, retrying")
			claimConflict = nil
			continue
		}
		typed := pkgerrors.As(err)
		if typed != nil && typed.Code() == pkgerrors.CodeBillingConflict {
			// Another generator claimed sessions mid-transaction. The next
			// attempt rereads the period with a fresh snapshot and either
			// bills what remains or reports no billable sessions.
			claimConflict = typed
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "concurrent session claim, retrying")
			continue
		}
		if typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating invoice")
	}

	if claimConflict != nil {
		return nil, claimConflict
	}
	return nil, pkgerrors.New(pkgerrors.CodeSequenceAllocation,
		fmt.Sprintf("could not allocate an invoice number after %d attempts", s.cfg.SequenceMaxAttempts))
}

// renderDocument runs after commit. A rendering failure leaves pdf_path empty
// and never rolls back the invoice.
func (s *service) renderDocument(ctx context.Context, detail *Detail) {
	if s.renderer == nil {
		return
	}

	client, err := s.clients.FindByID(ctx, detail.Invoice.ClientID)
	if err != nil {
		s.logg.Warn(ctx, "loading client for invoice document failed")
		return
	}

	var profile *models.UserProfile
	if s.profiles != nil {
		profile, err = s.profiles.Find(ctx)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(ctx, "loading profile for invoice document failed")
		}
	}

	path, err := s.renderer.Render(ctx, Document{
		Invoice:  detail.Invoice,
		Client:   *client,
		Sessions: detail.Sessions,
		Profile:  profile,
	})
	if err != nil {
		s.logg.Warn(ctx, "rendering invoice document failed")
		return
	}

	if err := s.repo.Updates(ctx, detail.Invoice.ID, map[string]any{"pdf_path": path}); err != nil {
		s.logg.Warn(ctx, "storing invoice document path failed")
		return
	}
	detail.Invoice.PDFPath = &path
}

func (s *service) GetInvoice(ctx context.Context, id uuid.UUID) (*Detail, error) {
	invoice, err := s.findInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	sessions, err := s.repo.SessionsForInvoice(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading invoice sessions")
	}
	return &Detail{Invoice: *invoice, Sessions: sessions}, nil
}

func (s *service) ListInvoices(ctx context.Context, filters ListFilters, params pagination.Params) (*ListResult, error) {
	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing invoices")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	result := &ListResult{Invoices: rows}
	if len(rows) > limit {
		result.Invoices = rows[:limit]
		last := result.Invoices[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			Timestamp: last.IssuedOn,
			ID:        last.ID,
		})
	}
	return result, nil
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.InvoiceStatus, paidDate *time.Time) (*models.Invoice, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown invoice status")
	}

	invoice, err := s.findInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !invoice.Status.CanTransitionTo(status) {
		return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition,
			fmt.Sprintf("cannot move invoice from %s to %s", invoice.Status, status))
	}

	updates := map[string]any{"status": status}
	if status == enums.InvoiceStatusPaid {
		if paidDate == nil {
			now := s.now().UTC()
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			paidDate = &today
		}
		if paidDate.Before(invoice.IssuedOn) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "paid date cannot precede the issue date")
		}
		updates["paid_date"] = *paidDate
	}

	if err := s.repo.Updates(ctx, id, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating invoice status")
	}

	invoice.Status = status
	if status == enums.InvoiceStatusPaid {
		invoice.PaidDate = paidDate
	}
	return invoice, nil
}

func (s *service) Dashboard(ctx context.Context, now time.Time) (*DashboardSummary, error) {
	if now.IsZero() {
		now = s.now()
	}
	now = now.UTC()

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	quarterMonth := time.Month(((int(now.Month())-1)/3)*3 + 1)
	quarterStart := time.Date(now.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
	yearStart := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	tomorrow := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	summary := &DashboardSummary{}
	var err error
	if summary.Month, err = s.repo.Totals(ctx, monthStart, tomorrow); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading month totals")
	}
	if summary.Quarter, err = s.repo.Totals(ctx, quarterStart, tomorrow); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading quarter totals")
	}
	if summary.Year, err = s.repo.Totals(ctx, yearStart, tomorrow); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading year totals")
	}
	if summary.PendingAmount, err = s.repo.PendingAmount(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading pending amount")
	}
	if summary.UninvoicedSessions, err = s.repo.CountUninvoicedCompleted(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting uninvoiced sessions")
	}
	return summary, nil
}

func (s *service) findInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	invoice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading invoice")
	}
	return invoice, nil
}
