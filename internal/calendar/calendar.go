// Package calendar provides week arithmetic and duration helpers shared by
// scheduling and billing. Weeks run Monday through Sunday.
package calendar

import (
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/sessionbill/sessionbill-backend/pkg/errors"
)

var minutesPerHour = decimal.NewFromInt(60)

// WeekStart returns the Monday on or before t, truncated to midnight in t's location.
func WeekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := int(day.Weekday()-time.Monday+7) % 7
	return day.AddDate(0, 0, -offset)
}

// WeekEnd returns the Sunday of the week containing t, truncated to midnight.
func WeekEnd(t time.Time) time.Time {
	return WeekStart(t).AddDate(0, 0, 6)
}

// WeekDays returns the seven days of the week containing t, Monday first.
func WeekDays(t time.Time) [7]time.Time {
	var days [7]time.Time
	start := WeekStart(t)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}

// DurationHours returns the span between start and end as decimal hours, so
// a 75 minute session yields 1.25. Fractional minutes are preserved; the same
// arithmetic backs ClassSession.DurationHours.
func DurationHours(start, end time.Time) (decimal.Decimal, error) {
	if !end.After(start) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidRange, "end must be after start")
	}
	minutes := decimal.NewFromFloat(end.Sub(start).Minutes())
	return minutes.Div(minutesPerHour), nil
}

// ValidatePeriod checks that a billing period is well formed: start before or
// equal to end, and no longer than one year.
func ValidatePeriod(start, end time.Time) error {
	if end.Before(start) {
		return pkgerrors.New(pkgerrors.CodeInvalidRange, "period end must not be before period start")
	}
	if end.After(start.AddDate(1, 0, 0)) {
		return pkgerrors.New(pkgerrors.CodeInvalidRange, "period must not exceed one year")
	}
	return nil
}
