package planner

import "wanderplan/internal/models"

// List is a page's local copy of destinations, patched after successful
// mutations instead of refetching.
type List []models.Destination

func (l List) Find(id int) (models.Destination, bool) {
	for _, d := range l {
		if d.ID == id {
			return d, true
		}
	}
	return models.Destination{}, false
}

// Remove drops exactly the entry with id.
func (l List) Remove(id int) List {
	return l.RemoveMany([]int{id})
}

func (l List) RemoveMany(ids []int) List {
	drop := idSet(ids)
	out := make(List, 0, len(l))
	for _, d := range l {
		if !drop[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// PatchStatus sets is_achieved on one entry and leaves the rest untouched.
func (l List) PatchStatus(id int, achieved bool) List {
	return l.PatchMany([]int{id}, models.BulkFields{IsAchieved: &achieved})
}

// PatchMany applies fields to every entry in ids. It assumes the server call
// covering ids succeeded in full.
func (l List) PatchMany(ids []int, fields models.BulkFields) List {
	patch := idSet(ids)
	out := make(List, len(l))
	for i, d := range l {
		if patch[d.ID] && fields.IsAchieved != nil {
			d.IsAchieved = *fields.IsAchieved
		}
		out[i] = d
	}
	return out
}

func idSet(ids []int) map[int]bool {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
