package invoices

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	"github.com/sessionbill/sessionbill-backend/pkg/enums"
	"github.com/sessionbill/sessionbill-backend/pkg/pagination"
)

func setupInvoicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:invoices_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	clientsTable := `
CREATE TABLE IF NOT EXISTS clients (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  address TEXT NOT NULL DEFAULT '',
  contact_person TEXT,
  hourly_rate TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	sessionsTable := `
CREATE TABLE IF NOT EXISTS class_sessions (
  id TEXT PRIMARY KEY,
  client_id TEXT NOT NULL,
  name TEXT NOT NULL,
  starts_at DATETIME NOT NULL,
  ends_at DATETIME NOT NULL,
  status TEXT NOT NULL DEFAULT 'scheduled',
  invoice_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	invoicesTable := `
CREATE TABLE IF NOT EXISTS invoices (
  id TEXT PRIMARY KEY,
  year INTEGER NOT NULL,
  sequence_number INTEGER NOT NULL,
  client_id TEXT NOT NULL,
  issued_on DATETIME NOT NULL,
  period_start DATETIME NOT NULL,
  period_end DATETIME NOT NULL,
  total_hours TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  hourly_rate TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'created',
  due_date DATETIME,
  paid_date DATETIME,
  pdf_path TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	uniqueIndex := `
CREATE UNIQUE INDEX IF NOT EXISTS invoices_year_sequence_number_key
  ON invoices (year, sequence_number);`
	require.NoError(t, db.Exec(clientsTable).Error)
	require.NoError(t, db.Exec(sessionsTable).Error)
	require.NoError(t, db.Exec(invoicesTable).Error)
	require.NoError(t, db.Exec(uniqueIndex).Error)

	t.Cleanup(func() {
		db.Exec("DELETE FROM class_sessions")
		db.Exec("DELETE FROM invoices")
		db.Exec("DELETE FROM clients")
	})
	return db
}

func seedInvoiceClient(t *testing.T, db *gorm.DB, rate string) *models.Client {
	t.Helper()
	client := &models.Client{
		ID:         uuid.New(),
		Name:       "Morning Flow Studio",
		HourlyRate: decimal.RequireFromString(rate),
		Active:     true,
	}
	require.NoError(t, db.Create(client).Error)
	return client
}

func seedCompletedSession(t *testing.T, db *gorm.DB, clientID uuid.UUID, startsAt time.Time, minutes int) *models.ClassSession {
	t.Helper()
	session := &models.ClassSession{
		ID:       uuid.New(),
		ClientID: clientID,
		Name:     "Vinyasa",
		StartsAt: startsAt,
		EndsAt:   startsAt.Add(time.Duration(minutes) * time.Minute),
		Status:   enums.SessionStatusCompleted,
	}
	require.NoError(t, db.Create(session).Error)
	return session
}

func seedInvoice(t *testing.T, db *gorm.DB, clientID uuid.UUID, year, seq int, issuedOn time.Time, amount string) *models.Invoice {
	t.Helper()
	invoice := &models.Invoice{
		ID:             uuid.New(),
		Year:           year,
		SequenceNumber: seq,
		ClientID:       clientID,
		IssuedOn:       issuedOn,
		PeriodStart:    issuedOn.AddDate(0, -1, 0),
		PeriodEnd:      issuedOn,
		TotalHours:     decimal.RequireFromString("2.00"),
		TotalAmount:    decimal.RequireFromString(amount),
		HourlyRate:     decimal.RequireFromString("40.00"),
		Status:         enums.InvoiceStatusCreated,
	}
	require.NoError(t, db.Create(invoice).Error)
	return invoice
}

func TestRepositoryMaxSequenceNumber(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	max, err := repo.MaxSequenceNumber(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, 0, max, "empty year starts at zero")

	client := seedInvoiceClient(t, db, "40.00")
	issued := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	seedInvoice(t, db, client.ID, 2024, 1, issued, "80.00")
	seedInvoice(t, db, client.ID, 2024, 2, issued, "80.00")
	seedInvoice(t, db, client.ID, 2023, 7, issued.AddDate(-1, 0, 0), "80.00")

	max, err = repo.MaxSequenceNumber(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, 2, max)

	max, err = repo.MaxSequenceNumber(ctx, 2023)
	require.NoError(t, err)
	assert.Equal(t, 7, max, "sequences are per year")
}

func TestRepositoryUniqueSequencePerYear(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	issued := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	seedInvoice(t, db, client.ID, 2024, 1, issued, "80.00")

	_, err := repo.Create(ctx, &models.Invoice{
		ID:             uuid.New(),
		Year:           2024,
		SequenceNumber: 1,
		ClientID:       client.ID,
		IssuedOn:       issued,
		PeriodStart:    issued.AddDate(0, -1, 0),
		PeriodEnd:      issued,
		TotalHours:     decimal.RequireFromString("1.00"),
		TotalAmount:    decimal.RequireFromString("40.00"),
		HourlyRate:     decimal.RequireFromString("40.00"),
		Status:         enums.InvoiceStatusCreated,
	})
	require.Error(t, err, "duplicate (year, sequence) must be rejected")

	// Same sequence in a different year is fine.
	_, err = repo.Create(ctx, &models.Invoice{
		ID:             uuid.New(),
		Year:           2025,
		SequenceNumber: 1,
		ClientID:       client.ID,
		IssuedOn:       issued.AddDate(1, 0, 0),
		PeriodStart:    issued,
		PeriodEnd:      issued.AddDate(1, 0, 0),
		TotalHours:     decimal.RequireFromString("1.00"),
		TotalAmount:    decimal.RequireFromString("40.00"),
		HourlyRate:     decimal.RequireFromString("40.00"),
		Status:         enums.InvoiceStatusCreated,
	})
	require.NoError(t, err)
}

func TestRepositoryBillableSessions(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	other := seedInvoiceClient(t, db, "40.00")
	periodStart := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

	inPeriod := seedCompletedSession(t, db, client.ID, periodStart.AddDate(0, 0, 3), 60)
	seedCompletedSession(t, db, client.ID, periodStart.AddDate(0, 0, -1), 60) // before period
	seedCompletedSession(t, db, client.ID, periodEnd, 60)                     // at exclusive bound
	seedCompletedSession(t, db, other.ID, periodStart.AddDate(0, 0, 5), 60)   // other client

	scheduled := seedCompletedSession(t, db, client.ID, periodStart.AddDate(0, 0, 4), 60)
	require.NoError(t, db.Model(&models.ClassSession{}).Where("id = ?", scheduled.ID).Update("status", enums.SessionStatusScheduled).Error)

	invoiced := seedCompletedSession(t, db, client.ID, periodStart.AddDate(0, 0, 5), 60)
	require.NoError(t, db.Model(&models.ClassSession{}).Where("id = ?", invoiced.ID).Update("invoice_id", uuid.New()).Error)

	rows, err := repo.BillableSessions(ctx, client.ID, periodStart, periodEnd)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, inPeriod.ID, rows[0].ID)
}

func TestRepositoryLinkSessionsSkipsClaimed(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	start := time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC)
	free := seedCompletedSession(t, db, client.ID, start, 60)
	claimed := seedCompletedSession(t, db, client.ID, start.Add(2*time.Hour), 60)

	otherInvoice := uuid.New()
	require.NoError(t, db.Model(&models.ClassSession{}).Where("id = ?", claimed.ID).Update("invoice_id", otherInvoice).Error)

	invoiceID := uuid.New()
	linked, err := repo.LinkSessions(ctx, invoiceID, []uuid.UUID{free.ID, claimed.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), linked, "claimed session must not be relinked")

	var got models.ClassSession
	require.NoError(t, db.Where("id = ?", claimed.ID).First(&got).Error)
	require.NotNil(t, got.InvoiceID)
	assert.Equal(t, otherInvoice, *got.InvoiceID, "first claim wins")
}

func TestRepositoryListFiltersAndPages(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	other := seedInvoiceClient(t, db, "40.00")
	base := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		seedInvoice(t, db, client.ID, 2024, i+1, base.AddDate(0, i, 0), "80.00")
	}
	paid := seedInvoice(t, db, other.ID, 2024, 4, base.AddDate(0, 3, 0), "80.00")
	require.NoError(t, db.Model(&models.Invoice{}).Where("id = ?", paid.ID).Update("status", enums.InvoiceStatusPaid).Error)

	rows, err := repo.List(ctx, ListFilters{ClientID: &client.ID}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.True(t, rows[0].IssuedOn.After(rows[1].IssuedOn), "newest first")

	paidStatus := enums.InvoiceStatusPaid
	rows, err = repo.List(ctx, ListFilters{Status: &paidStatus}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, paid.ID, rows[0].ID)

	year := 2024
	rows, err = repo.List(ctx, ListFilters{Year: &year}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestRepositoryTotals(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	from := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

	totals, err := repo.Totals(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.InvoiceCount)
	assert.True(t, totals.TotalAmount.IsZero())

	client := seedInvoiceClient(t, db, "40.00")
	seedInvoice(t, db, client.ID, 2024, 1, from.AddDate(0, 0, 5), "80.00")
	seedInvoice(t, db, client.ID, 2024, 2, from.AddDate(0, 0, 20), "120.50")
	seedInvoice(t, db, client.ID, 2024, 3, to, "999.99") // outside the half open range

	totals, err = repo.Totals(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.InvoiceCount)
	assert.True(t, decimal.RequireFromString("200.50").Equal(totals.TotalAmount), "amount %s", totals.TotalAmount)
	assert.True(t, decimal.RequireFromString("4.00").Equal(totals.TotalHours), "hours %s", totals.TotalHours)
}

func TestRepositoryCountUninvoicedCompleted(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")
	start := time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC)
	seedCompletedSession(t, db, client.ID, start, 60)
	linked := seedCompletedSession(t, db, client.ID, start.Add(time.Hour), 60)
	require.NoError(t, db.Model(&models.ClassSession{}).Where("id = ?", linked.ID).Update("invoice_id", uuid.New()).Error)

	count, err := repo.CountUninvoicedCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPendingAmount(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	client := seedInvoiceClient(t, db, "40.00")

	pending, err := repo.PendingAmount(ctx)
	require.NoError(t, err)
	assert.True(t, pending.IsZero(), "no invoices means nothing pending")

	seedInvoice(t, db, client.ID, 2024, 1, time.Date(2024, 10, 5, 0, 0, 0, 0, time.UTC), "100.00")
	sent := seedInvoice(t, db, client.ID, 2024, 2, time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC), "50.00")
	require.NoError(t, db.Model(&models.Invoice{}).Where("id = ?", sent.ID).Update("status", enums.InvoiceStatusSent).Error)
	paid := seedInvoice(t, db, client.ID, 2024, 3, time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC), "25.00")
	require.NoError(t, db.Model(&models.Invoice{}).Where("id = ?", paid.ID).Update("status", enums.InvoiceStatusPaid).Error)

	pending, err = repo.PendingAmount(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("150.00").Equal(pending), "created and sent invoices are pending, got %s", pending)
}
