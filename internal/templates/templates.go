// Package templates expands recurring weekly class patterns into scheduled
// sessions, so a term's timetable can be created in one call.
package templates

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sessionbill/sessionbill-backend/internal/calendar"
	"github.com/sessionbill/sessionbill-backend/pkg/db/models"
	"github.com/sessionbill/sessionbill-backend/pkg/enums"
	pkgerrors "github.com/sessionbill/sessionbill-backend/pkg/errors"
)

// Slot is one recurring weekly class.
type Slot struct {
	ClientID uuid.UUID
	Name     string
	Weekday  time.Weekday
	// StartHour and StartMinute are the local wall clock start.
	StartHour   int
	StartMinute int
	Duration    time.Duration
}

// WeeklyTemplate is a set of recurring slots.
type WeeklyTemplate struct {
	Slots []Slot
}

// Validate checks every slot is expandable.
func (t WeeklyTemplate) Validate() error {
	if len(t.Slots) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "template has no slots")
	}
	for _, slot := range t.Slots {
		if slot.ClientID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "slot client id is required")
		}
		if strings.TrimSpace(slot.Name) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "slot name is required")
		}
		if slot.StartHour < 0 || slot.StartHour > 23 || slot.StartMinute < 0 || slot.StartMinute > 59 {
			return pkgerrors.New(pkgerrors.CodeValidation, "slot start time is out of range")
		}
		if slot.Duration < time.Minute {
			return pkgerrors.New(pkgerrors.CodeValidation, "slot duration must be at least one minute")
		}
	}
	return nil
}

// Expand materializes the template over the inclusive date range as scheduled
// sessions. Days are walked in order, so the result is start sorted per slot
// weekday interleaving.
func Expand(template WeeklyTemplate, from, to time.Time) ([]models.ClassSession, error) {
	if err := template.Validate(); err != nil {
		return nil, err
	}
	if err := calendar.ValidatePeriod(from, to); err != nil {
		return nil, err
	}

	slotsByWeekday := make(map[time.Weekday][]Slot)
	for _, slot := range template.Slots {
		slotsByWeekday[slot.Weekday] = append(slotsByWeekday[slot.Weekday], slot)
	}

	var sessions []models.ClassSession
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, slot := range slotsByWeekday[day.Weekday()] {
			start := time.Date(day.Year(), day.Month(), day.Day(), slot.StartHour, slot.StartMinute, 0, 0, day.Location())
			sessions = append(sessions, models.ClassSession{
				ClientID: slot.ClientID,
				Name:     strings.TrimSpace(slot.Name),
				StartsAt: start,
				EndsAt:   start.Add(slot.Duration),
				Status:   enums.SessionStatusScheduled,
			})
		}
	}
	return sessions, nil
}
