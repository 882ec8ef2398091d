package invoices

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	"github.com/sessionbill/sessionbill-backend/pkg/enums"
)

func TestNewFileRendererRequiresDir(t *testing.T) {
	_, err := NewFileRenderer("  ")
	require.Error(t, err)
}

func TestFileRendererWritesDocument(t *testing.T) {
	dir := t.TempDir()
	renderer, err := NewFileRenderer(dir)
	require.NoError(t, err)

	issued := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	due := issued.AddDate(0, 0, 30)
	start := time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC)
	contact := "Jo Rivers"
	taxID := "TAX-123"
	bankDetails := "IBAN XX00"

	doc := Document{
		Invoice: models.Invoice{
			ID:             uuid.New(),
			Year:           2024,
			SequenceNumber: 7,
			IssuedOn:       issued,
			PeriodStart:    issued.AddDate(0, -1, 0),
			PeriodEnd:      issued,
			TotalHours:     decimal.RequireFromString("2.00"),
			TotalAmount:    decimal.RequireFromString("80.00"),
			HourlyRate:     decimal.RequireFromString("40.00"),
			Status:         enums.InvoiceStatusCreated,
			DueDate:        &due,
		},
		Client: models.Client{
			Name:          "Morning Flow Studio",
			Address:       "12 Mat Street",
			ContactPerson: &contact,
		},
		Sessions: []models.ClassSession{
			{Name: "Vinyasa", StartsAt: start, EndsAt: start.Add(time.Hour)},
			{Name: "Yin", StartsAt: start.AddDate(0, 0, 2), EndsAt: start.AddDate(0, 0, 2).Add(time.Hour)},
		},
		Profile: &models.UserProfile{
			Name:        "A. Teacher",
			Address:     "1 Studio Lane",
			TaxID:       &taxID,
			BankDetails: &bankDetails,
		},
	}

	path, err := renderer.Render(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "invoice-2024-007.html"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)

	for _, want := range []string{"7/2024", "Morning Flow Studio", "Jo Rivers", "Vinyasa", "80.00", "TAX-123", "2024-12-31"} {
		assert.True(t, strings.Contains(content, want), "document missing %q", want)
	}
}

func TestFileRendererWithoutProfile(t *testing.T) {
	renderer, err := NewFileRenderer(t.TempDir())
	require.NoError(t, err)

	doc := Document{
		Invoice: models.Invoice{
			Year:           2024,
			SequenceNumber: 1,
			IssuedOn:       time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
			PeriodStart:    time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:      time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC),
			TotalHours:     decimal.Zero,
			TotalAmount:    decimal.Zero,
			HourlyRate:     decimal.Zero,
		},
		Client: models.Client{Name: "Studio"},
	}

	path, err := renderer.Render(context.Background(), doc)
	require.NoError(t, err)
	assert.FileExists(t, path)
}
