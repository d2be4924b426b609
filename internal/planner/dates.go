package planner

import (
	"time"

	"wanderplan/internal/models"
)

type DateStatus string

const (
	Past   DateStatus = "PAST"
	Today  DateStatus = "TODAY"
	Future DateStatus = "FUTURE"
)

// Status classifies a departure date relative to today.
func Status(date models.Date, today models.Date) DateStatus {
	switch {
	case date.Before(today.Time):
		return Past
	case date.Equal(today.Time):
		return Today
	default:
		return Future
	}
}

// DaysUntil is the calendar-day difference from today to date; negative when
// the date has passed.
func DaysUntil(date models.Date, today models.Date) int {
	a := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	// Unix seconds avoid the ~292 year ceiling of time.Duration.
	return int((a.Unix() - b.Unix()) / 86400)
}

// ReconcileAchieved applies the status rule after any recomputation. A past
// departure is always achieved. A changed date that is today or later resets
// the trip to planning. Otherwise the requested value stands.
func ReconcileAchieved(date models.Date, today models.Date, requested bool, dateChanged bool) bool {
	if date.IsZero() {
		return requested
	}
	if Status(date, today) == Past {
		return true
	}
	if dateChanged {
		return false
	}
	return requested
}

// CanToggle reports whether the status toggle is enabled for date.
func CanToggle(date models.Date, today models.Date) bool {
	return Status(date, today) != Past
}

// Normalize applies ReconcileAchieved to a loaded destination. The edit form
// treats its initial load as a date change; lists do not.
func Normalize(d models.Destination, today models.Date, dateChanged bool) models.Destination {
	d.IsAchieved = ReconcileAchieved(d.DepartureDate, today, d.IsAchieved, dateChanged)
	return d
}

func NormalizeAll(list []models.Destination, today models.Date) []models.Destination {
	out := make([]models.Destination, len(list))
	for i, d := range list {
		out[i] = Normalize(d, today, false)
	}
	return out
}

// Clock returns today's date; tests replace it.
type Clock func() models.Date

func SystemClock() models.Date {
	return models.DateOf(time.Now())
}
