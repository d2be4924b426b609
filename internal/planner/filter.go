package planner

import (
	"sort"
	"strings"

	"wanderplan/internal/models"
)

const (
	StatusAll         = "all"
	StatusAchieved    = "achieved"
	StatusNotAchieved = "not_achieved"

	SortCreatedAt     = "created_at"
	SortTitle         = "title"
	SortDepartureDate = "departure_date"
	SortBudget        = "budget"
	SortDuration      = "duration_days"

	SortAsc  = "asc"
	SortDesc = "desc"
)

type Filter struct {
	Search  string
	Status  string
	SortKey string
	SortDir string
}

// ParseFilter builds a Filter from query values, falling back to defaults for
// anything unrecognized.
func ParseFilter(search, status, sortKey, sortDir string) Filter {
	f := Filter{
		Search:  strings.TrimSpace(search),
		Status:  StatusAll,
		SortKey: SortCreatedAt,
		SortDir: SortDesc,
	}
	switch status {
	case StatusAchieved, StatusNotAchieved:
		f.Status = status
	}
	switch sortKey {
	case SortTitle, SortDepartureDate, SortBudget, SortDuration:
		f.SortKey = sortKey
	}
	if sortDir == SortAsc {
		f.SortDir = SortAsc
	}
	return f
}

// Apply returns the destinations matching f in f's order. The input is not modified.
func Apply(list []models.Destination, f Filter) []models.Destination {
	term := strings.ToLower(f.Search)

	out := make([]models.Destination, 0, len(list))
	for _, d := range list {
		if term != "" && !strings.Contains(strings.ToLower(d.Title), term) {
			continue
		}
		switch f.Status {
		case StatusAchieved:
			if !d.IsAchieved {
				continue
			}
		case StatusNotAchieved:
			if d.IsAchieved {
				continue
			}
		}
		out = append(out, d)
	}

	less := comparator(f.SortKey)
	sort.SliceStable(out, func(i, j int) bool {
		if f.SortDir == SortAsc {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out
}

func comparator(key string) func(a, b models.Destination) bool {
	switch key {
	case SortTitle:
		return func(a, b models.Destination) bool {
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		}
	case SortDepartureDate:
		return func(a, b models.Destination) bool { return a.DepartureDate.Before(b.DepartureDate.Time) }
	case SortBudget:
		return func(a, b models.Destination) bool { return a.Budget < b.Budget }
	case SortDuration:
		return func(a, b models.Destination) bool { return a.DurationDays < b.DurationDays }
	default:
		return func(a, b models.Destination) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}
