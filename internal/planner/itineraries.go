package planner

import (
	"sort"

	"wanderplan/internal/models"
)

type Day struct {
	Number int
	Items  []models.Itinerary
}

// GroupByDay orders days ascending and, within a day, items by schedule time
// with a missing time read as 00:00. Storage order is not affected.
func GroupByDay(items []models.Itinerary) []Day {
	byDay := make(map[int][]models.Itinerary)
	for _, it := range items {
		byDay[it.DayNumber] = append(byDay[it.DayNumber], it)
	}

	days := make([]Day, 0, len(byDay))
	for number, list := range byDay {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Time() < list[j].Time()
		})
		days = append(days, Day{Number: number, Items: list})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Number < days[j].Number })
	return days
}

// ExceedsDuration reports whether an itinerary day falls outside the trip. It
// is shown as a warning only.
func ExceedsDuration(dayNumber int, d models.Destination) bool {
	return d.DurationDays > 0 && dayNumber > d.DurationDays
}
