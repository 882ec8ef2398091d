package invoices

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sessionbill/sessionbill-backend/internal/clients"
	"github.com/sessionbill/sessionbill-backend/pkg/config"
	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	"github.com/sessionbill/sessionbill-backend/pkg/enums"
	pkgerrors "github.com/sessionbill/sessionbill-backend/pkg/errors"
	"github.com/sessionbill/sessionbill-backend/pkg/logger"
	"github.com/sessionbill/sessionbill-backend/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testConfig() config.InvoicingConfig {
	return config.InvoicingConfig{
		SequenceMaxAttempts: 3,
		DueAfter:            720 * time.Hour,
	}
}

func newInvoiceService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(
		gormTxRunner{db: db},
		NewRepository(db),
		clients.NewRepository(db),
		nil,
		nil,
		testConfig(),
		testLogger(),
		nil,
	)
	require.NoError(t, err)
	return svc
}

func TestGenerateEndToEnd(t *testing.T) {
	db := setupInvoicesTestDB(t)
	svc := newInvoiceService(t, db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "30.00")
	periodStart := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC)
	seedCompletedSession(t, db, client.ID, periodStart.AddDate(0, 0, 3), 60)
	seedCompletedSession(t, db, client.ID, periodStart.AddDate(0, 0, 10), 60)

	issuedOn := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	detail, err := svc.Generate(ctx, GenerateInput{
		ClientID:    client.ID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		IssuedOn:    issuedOn,
	})
	require.NoError(t, err)

	invoice := detail.Invoice
	assert.Equal(t, 2024, invoice.Year)
	assert.Equal(t, 1, invoice.SequenceNumber)
	assert.Equal(t, "1/2024", invoice.Number())
	assert.Equal(t, enums.InvoiceStatusCreated, invoice.Status)
	assert.True(t, decimal.RequireFromString("2.00").Equal(invoice.TotalHours), "hours %s", invoice.TotalHours)
	assert.True(t, decimal.RequireFromString("60.00").Equal(invoice.TotalAmount), "amount %s", invoice.TotalAmount)
	assert.True(t, decimal.RequireFromString("30.00").Equal(invoice.HourlyRate))
	require.NotNil(t, invoice.DueDate)
	assert.Equal(t, issuedOn.Add(720*time.Hour), *invoice.DueDate)

	require.Len(t, detail.Sessions, 2)
	for _, session := range detail.Sessions {
		require.NotNil(t, session.InvoiceID)
		assert.Equal(t, invoice.ID, *session.InvoiceID)
	}

	var linked int64
	require.NoError(t, db.Model(&models.ClassSession{}).Where("invoice_id = ?", invoice.ID).Count(&linked).Error)
	assert.Equal(t, int64(2), linked)
}

func TestGenerateSequencesAreGapless(t *testing.T) {
	db := setupInvoicesTestDB(t)
	svc := newInvoiceService(t, db)
	ctx := context.Background()

	issuedOn := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	periodStart := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		client := seedInvoiceClient(t, db, "40.00")
		seedCompletedSession(t, db, client.ID, periodStart.AddDate(0, 0, i), 60)

		detail, err := svc.Generate(ctx, GenerateInput{
			ClientID:    client.ID,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			IssuedOn:    issuedOn,
		})
		require.NoError(t, err)
		assert.Equal(t, i, detail.Invoice.SequenceNumber, "sequence must be gapless")
	}
}

func TestGeneratePeriodEndIsInclusive(t *testing.T) {
	db := setupInvoicesTestDB(t)
	svc := newInvoiceService(t, db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	periodStart := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC)
	seedCompletedSession(t, db, client.ID, periodEnd.Add(18*time.Hour), 60)

	detail, err := svc.Generate(ctx, GenerateInput{
		ClientID:    client.ID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		IssuedOn:    time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Len(t, detail.Sessions, 1, "sessions on the period end date are billable")
}

func TestGenerateNoBillableSessions(t *testing.T) {
	db := setupInvoicesTestDB(t)
	svc := newInvoiceService(t, db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	periodStart := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	scheduled := seedCompletedSession(t, db, client.ID, periodStart.AddDate(0, 0, 2), 60)
	require.NoError(t, db.Model(&models.ClassSession{}).Where("id = ?", scheduled.ID).Update("status", enums.SessionStatusScheduled).Error)

	_, err := svc.Generate(ctx, GenerateInput{
		ClientID:    client.ID,
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.AddDate(0, 1, 0),
		IssuedOn:    time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNoBillableSessions, typed.Code())

	var count int64
	require.NoError(t, db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(0), count, "no invoice row may be committed")
}

func TestGenerateTwiceForSamePeriod(t *testing.T) {
	db := setupInvoicesTestDB(t)
	svc := newInvoiceService(t, db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	periodStart := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC)
	seedCompletedSession(t, db, client.ID, periodStart.AddDate(0, 0, 3), 60)

	input := GenerateInput{
		ClientID:    client.ID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		IssuedOn:    time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	_, err := svc.Generate(ctx, input)
	require.NoError(t, err)

	// Sessions are linked now, so a second run has nothing to bill.
	_, err = svc.Generate(ctx, input)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNoBillableSessions, typed.Code())

	var count int64
	require.NoError(t, db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "double billing must not create a second invoice")
}

func TestGenerateValidation(t *testing.T) {
	db := setupInvoicesTestDB(t)
	svc := newInvoiceService(t, db)
	ctx := context.Background()

	periodStart := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Generate(ctx, GenerateInput{
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.AddDate(0, 1, 0),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	_, err = svc.Generate(ctx, GenerateInput{
		ClientID:    uuid.New(),
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.AddDate(0, 0, -1),
	})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInvalidRange, typed.Code())

	_, err = svc.Generate(ctx, GenerateInput{
		ClientID:    uuid.New(),
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.AddDate(1, 0, 1),
	})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInvalidRange, typed.Code(), "period longer than a year")

	_, err = svc.Generate(ctx, GenerateInput{
		ClientID:    uuid.New(),
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.AddDate(0, 1, 0),
		IssuedOn:    time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code(), "issue year below the floor")

	_, err = svc.Generate(ctx, GenerateInput{
		ClientID:    uuid.New(),
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.AddDate(0, 1, 0),
	})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code(), "unknown client")
}

func TestUpdateStatusTransitions(t *testing.T) {
	db := setupInvoicesTestDB(t)
	svc := newInvoiceService(t, db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	issued := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	invoice := seedInvoice(t, db, client.ID, 2024, 1, issued, "80.00")

	updated, err := svc.UpdateStatus(ctx, invoice.ID, enums.InvoiceStatusSent, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusSent, updated.Status)

	paidOn := issued.AddDate(0, 0, 14)
	updated, err = svc.UpdateStatus(ctx, invoice.ID, enums.InvoiceStatusPaid, &paidOn)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusPaid, updated.Status)
	require.NotNil(t, updated.PaidDate)
	assert.Equal(t, paidOn, *updated.PaidDate)

	// Paid is terminal.
	_, err = svc.UpdateStatus(ctx, invoice.ID, enums.InvoiceStatusSent, nil)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeIllegalTransition, typed.Code())
}

func TestUpdateStatusPaidDateRules(t *testing.T) {
	db := setupInvoicesTestDB(t)
	svc := newInvoiceService(t, db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	issued := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	invoice := seedInvoice(t, db, client.ID, 2024, 1, issued, "80.00")

	early := issued.AddDate(0, 0, -1)
	_, err := svc.UpdateStatus(ctx, invoice.ID, enums.InvoiceStatusPaid, &early)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	// Missing paid date defaults to today.
	updated, err := svc.UpdateStatus(ctx, invoice.ID, enums.InvoiceStatusPaid, nil)
	require.NoError(t, err)
	require.NotNil(t, updated.PaidDate)
	assert.False(t, updated.PaidDate.IsZero())
}

func TestUpdateStatusNotFound(t *testing.T) {
	db := setupInvoicesTestDB(t)
	svc := newInvoiceService(t, db)

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), enums.InvoiceStatusSent, nil)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestGetInvoiceWithSessions(t *testing.T) {
	db := setupInvoicesTestDB(t)
	svc := newInvoiceService(t, db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	periodStart := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	seedCompletedSession(t, db, client.ID, periodStart.AddDate(0, 0, 1), 60)
	seedCompletedSession(t, db, client.ID, periodStart.AddDate(0, 0, 2), 90)

	detail, err := svc.Generate(ctx, GenerateInput{
		ClientID:    client.ID,
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.AddDate(0, 1, 0),
		IssuedOn:    time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	got, err := svc.GetInvoice(ctx, detail.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, detail.Invoice.ID, got.Invoice.ID)
	require.Len(t, got.Sessions, 2)
	assert.True(t, got.Sessions[0].StartsAt.Before(got.Sessions[1].StartsAt))
}

func TestListInvoicesPaginates(t *testing.T) {
	db := setupInvoicesTestDB(t)
	svc := newInvoiceService(t, db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seedInvoice(t, db, client.ID, 2024, i+1, base.AddDate(0, i, 0), "80.00")
	}

	page, err := svc.ListInvoices(ctx, ListFilters{}, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.ListInvoices(ctx, ListFilters{}, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Invoices, 1)
	assert.Empty(t, rest.NextCursor)
}

func TestDashboardSummary(t *testing.T) {
	db := setupInvoicesTestDB(t)
	svc := newInvoiceService(t, db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	now := time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC)

	seedInvoice(t, db, client.ID, 2024, 1, time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC), "100.00")
	seedInvoice(t, db, client.ID, 2024, 2, time.Date(2024, 10, 5, 0, 0, 0, 0, time.UTC), "50.00")
	paid := seedInvoice(t, db, client.ID, 2024, 3, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), "25.00")
	require.NoError(t, db.Model(&models.Invoice{}).Where("id = ?", paid.ID).Update("status", enums.InvoiceStatusPaid).Error)
	seedCompletedSession(t, db, client.ID, now.AddDate(0, 0, -1), 60)

	summary, err := svc.Dashboard(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Month.InvoiceCount)
	assert.True(t, decimal.RequireFromString("100.00").Equal(summary.Month.TotalAmount), "month %s", summary.Month.TotalAmount)

	assert.Equal(t, int64(2), summary.Quarter.InvoiceCount, "October and November are in Q4")
	assert.True(t, decimal.RequireFromString("150.00").Equal(summary.Quarter.TotalAmount))

	assert.Equal(t, int64(3), summary.Year.InvoiceCount)
	assert.True(t, decimal.RequireFromString("175.00").Equal(summary.Year.TotalAmount))

	assert.True(t, decimal.RequireFromString("150.00").Equal(summary.PendingAmount), "paid invoices do not count as pending")
	assert.Equal(t, int64(1), summary.UninvoicedSessions)
}

// Stub repository used to exercise the retry loop without real collisions.

type stubInvoicesRepo struct {
	Repository
	createFailures int
	createCalls    int
	linkRows       int64
	linkFailures   int
	linkCalls      int
	maxSeq         int
	sessions       []models.ClassSession
	created        []*models.Invoice
}

func uniqueViolation() error {
	return errors.New("duplicate key value violates unique constraint \"invoices_year_sequence_number_key\"")
}

func (s *stubInvoicesRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubInvoicesRepo) Create(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error) {
	s.createCalls++
	if s.createCalls <= s.createFailures {
		return nil, uniqueViolation()
	}
	invoice.ID = uuid.New()
	s.created = append(s.created, invoice)
	return invoice, nil
}

func (s *stubInvoicesRepo) MaxSequenceNumber(ctx context.Context, year int) (int, error) {
	return s.maxSeq, nil
}

func (s *stubInvoicesRepo) BillableSessions(ctx context.Context, clientID uuid.UUID, periodStart, periodEnd time.Time) ([]models.ClassSession, error) {
	return s.sessions, nil
}

func (s *stubInvoicesRepo) LinkSessions(ctx context.Context, invoiceID uuid.UUID, sessionIDs []uuid.UUID) (int64, error) {
	s.linkCalls++
	if s.linkCalls <= s.linkFailures {
		return s.linkRows, nil
	}
	return int64(len(sessionIDs)), nil
}

type stubTxRunner struct {
	rollbacks int
}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := fn(nil)
	if err != nil {
		s.rollbacks++
	}
	return err
}

type stubClientsRepo struct{}

func (s stubClientsRepo) WithTx(tx *gorm.DB) clients.Repository { return s }

func (stubClientsRepo) Create(ctx context.Context, client *models.Client) (*models.Client, error) {
	return client, nil
}

func (stubClientsRepo) Update(ctx context.Context, client *models.Client) error { return nil }

func (stubClientsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	return &models.Client{ID: id, Name: "Studio", HourlyRate: decimal.RequireFromString("40.00"), Active: true}, nil
}

func (stubClientsRepo) List(ctx context.Context, includeInactive bool) ([]models.Client, error) {
	return nil, nil
}

func (stubClientsRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (stubClientsRepo) CountSessions(ctx context.Context, clientID uuid.UUID) (int64, error) {
	return 0, nil
}

func newStubService(t *testing.T, repo *stubInvoicesRepo, runner *stubTxRunner) Service {
	t.Helper()
	svc, err := NewService(runner, repo, stubClientsRepo{}, nil, nil, testConfig(), testLogger(), nil)
	require.NoError(t, err)
	return svc
}

func stubSessions(clientID uuid.UUID) []models.ClassSession {
	start := time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC)
	return []models.ClassSession{{
		ID:       uuid.New(),
		ClientID: clientID,
		Name:     "Vinyasa",
		StartsAt: start,
		EndsAt:   start.Add(time.Hour),
		Status:   enums.SessionStatusCompleted,
	}}
}

func stubInput(clientID uuid.UUID) GenerateInput {
	return GenerateInput{
		ClientID:    clientID,
		PeriodStart: time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC),
		IssuedOn:    time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestGenerateRetriesSequenceCollisions(t *testing.T) {
	clientID := uuid.New()
	repo := &stubInvoicesRepo{createFailures: 2, sessions: stubSessions(clientID), maxSeq: 4}
	runner := &stubTxRunner{}
	svc := newStubService(t, repo, runner)

	detail, err := svc.Generate(context.Background(), stubInput(clientID))
	require.NoError(t, err)
	assert.Equal(t, 3, repo.createCalls, "two collisions then success")
	assert.Equal(t, 2, runner.rollbacks)
	assert.Equal(t, 5, detail.Invoice.SequenceNumber)
}

func TestGenerateGivesUpAfterMaxAttempts(t *testing.T) {
	clientID := uuid.New()
	repo := &stubInvoicesRepo{createFailures: 99, sessions: stubSessions(clientID)}
	runner := &stubTxRunner{}
	svc := newStubService(t, repo, runner)

	_, err := svc.Generate(context.Background(), stubInput(clientID))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeSequenceAllocation, typed.Code())
	assert.Equal(t, 3, repo.createCalls, "bounded retry")
}

func TestGenerateRetriesConcurrentClaim(t *testing.T) {
	clientID := uuid.New()
	repo := &stubInvoicesRepo{sessions: stubSessions(clientID), linkFailures: 1, linkRows: 0}
	runner := &stubTxRunner{}
	svc := newStubService(t, repo, runner)

	detail, err := svc.Generate(context.Background(), stubInput(clientID))
	require.NoError(t, err)
	assert.Equal(t, 1, runner.rollbacks, "link shortfall must abort the first transaction")
	assert.Equal(t, 2, repo.linkCalls, "fresh snapshot reattempts the linking")
	require.NotNil(t, detail)
	assert.Equal(t, enums.InvoiceStatusCreated, detail.Invoice.Status)
}

func TestGenerateConcurrentClaimExhaustsRetries(t *testing.T) {
	clientID := uuid.New()
	repo := &stubInvoicesRepo{sessions: stubSessions(clientID), linkFailures: 99, linkRows: 0}
	runner := &stubTxRunner{}
	svc := newStubService(t, repo, runner)

	_, err := svc.Generate(context.Background(), stubInput(clientID))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeBillingConflict, typed.Code())
	assert.Equal(t, 3, runner.rollbacks, "every attempt must roll back")
}
