// Package earnings computes billable totals from completed sessions.
package earnings

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	"github.com/sessionbill/sessionbill-backend/pkg/enums"
)

// Summary is the aggregate over a set of sessions at a single hourly rate.
type Summary struct {
	Hours        decimal.Decimal
	Amount       decimal.Decimal
	SessionCount int
}

// Calculate sums the billable value of the given sessions at the hourly rate.
// Only completed sessions count. Each session's amount is rounded to two
// decimal places with banker's rounding before summing, so the invoice total
// always equals the sum of its line items.
func Calculate(sessions []models.ClassSession, hourlyRate decimal.Decimal) Summary {
	summary := Summary{
		Hours:  decimal.Zero,
		Amount: decimal.Zero,
	}
	for _, session := range sessions {
		if session.Status != enums.SessionStatusCompleted {
			continue
		}
		hours := session.DurationHours()
		summary.Hours = summary.Hours.Add(hours)
		summary.Amount = summary.Amount.Add(LineAmount(hours, hourlyRate))
		summary.SessionCount++
	}
	summary.Hours = summary.Hours.Round(2)
	return summary
}

// LineAmount prices a single session: hours times rate, banker's rounded to cents.
func LineAmount(hours, hourlyRate decimal.Decimal) decimal.Decimal {
	return hours.Mul(hourlyRate).RoundBank(2)
}

// CalculateWithRates sums sessions priced with per-session rates, falling back
// to defaultRate for sessions missing from the map. Used when recomputing
// historical totals where clients were billed at different rates.
func CalculateWithRates(sessions []models.ClassSession, rates map[uuid.UUID]decimal.Decimal, defaultRate decimal.Decimal) Summary {
	summary := Summary{
		Hours:  decimal.Zero,
		Amount: decimal.Zero,
	}
	for _, session := range sessions {
		if session.Status != enums.SessionStatusCompleted {
			continue
		}
		rate, ok := rates[session.ID]
		if !ok {
			rate = defaultRate
		}
		hours := session.DurationHours()
		summary.Hours = summary.Hours.Add(hours)
		summary.Amount = summary.Amount.Add(LineAmount(hours, rate))
		summary.SessionCount++
	}
	summary.Hours = summary.Hours.Round(2)
	return summary
}
