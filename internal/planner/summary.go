package planner

import "wanderplan/internal/models"

type Summary struct {
	Total       int
	Achieved    int
	Planned     int
	TotalBudget models.Decimal
	Next        *models.Destination
	DaysToNext  int
	Recent      []models.Destination
}

// Summarize builds the home page figures. Next is the soonest trip departing
// today or later that is not yet achieved.
func Summarize(list []models.Destination, today models.Date, recent int) Summary {
	s := Summary{Total: len(list)}

	for i := range list {
		d := list[i]
		s.TotalBudget += d.Budget
		if d.IsAchieved {
			s.Achieved++
			continue
		}
		s.Planned++
		if Status(d.DepartureDate, today) == Past {
			continue
		}
		if s.Next == nil || d.DepartureDate.Before(s.Next.DepartureDate.Time) {
			s.Next = &d
		}
	}
	if s.Next != nil {
		s.DaysToNext = DaysUntil(s.Next.DepartureDate, today)
	}

	byNewest := Apply(list, Filter{Status: StatusAll, SortKey: SortCreatedAt, SortDir: SortDesc})
	if len(byNewest) > recent {
		byNewest = byNewest[:recent]
	}
	s.Recent = byNewest
	return s
}
