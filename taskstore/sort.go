package taskstore

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/c360studio/taskjournal/tasks"
)

// SortKey names a sortable column.
type SortKey string

// Sort keys. SortNone keeps collection order.
const (
	SortNone        SortKey = ""
	SortName        SortKey = "name"
	SortCreatedAt   SortKey = "created_at"
	SortUpdatedAt   SortKey = "updated_at"
	SortDueDate     SortKey = "due_date"
	SortType        SortKey = "type"
	SortCategory    SortKey = "category"
	SortSubcategory SortKey = "subcategory"
	SortWho         SortKey = "who"
)

var sortKeys = []SortKey{
	SortName, SortCreatedAt, SortUpdatedAt, SortDueDate,
	SortType, SortCategory, SortSubcategory, SortWho,
}

// ParseSortKey validates s. The empty string is SortNone.
func ParseSortKey(s string) (SortKey, error) {
	k := SortKey(strings.ToLower(strings.TrimSpace(s)))
	if k == SortNone || slices.Contains(sortKeys, k) {
		return k, nil
	}
	return SortNone, fmt.Errorf("unknown sort key %q", s)
}

// Direction is ascending or descending.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection accepts asc/ascending and desc/descending. Empty is Ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return Ascending, fmt.Errorf("unknown sort direction %q", s)
	}
}

// Sort is the active ordering.
type Sort struct {
	Key       SortKey   `json:"key,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// Toggle returns the ordering produced by clicking a column header: the same
// key flips direction, a new key starts ascending.
func (s Sort) Toggle(key SortKey) Sort {
	if s.Key == key && s.Direction != Descending {
		return Sort{Key: key, Direction: Descending}
	}
	return Sort{Key: key, Direction: Ascending}
}

// Apply filters and sorts list without touching it. The result holds deep
// copies. Ties keep their relative order in list.
func Apply(list []tasks.Task, f Filter, s Sort) []tasks.Task {
	out := make([]tasks.Task, 0, len(list))
	for i := range list {
		if f.Match(&list[i]) {
			out = append(out, list[i].Clone())
		}
	}
	if s.Key != SortNone {
		slices.SortStableFunc(out, comparator(s))
	}
	return out
}

// comparator orders by s. Absent values (nil dates, empty labels) sort last
// regardless of direction.
func comparator(s Sort) func(a, b tasks.Task) int {
	desc := s.Direction == Descending
	directed := func(c int) int {
		if desc {
			return -c
		}
		return c
	}

	switch s.Key {
	case SortCreatedAt:
		return func(a, b tasks.Task) int { return directed(a.CreatedAt.Compare(b.CreatedAt)) }
	case SortUpdatedAt:
		return func(a, b tasks.Task) int { return directed(a.UpdatedAt.Compare(b.UpdatedAt)) }
	case SortDueDate:
		return func(a, b tasks.Task) int {
			return nullsLast(a.DueDate == nil, b.DueDate == nil, func() int {
				return directed(a.DueDate.Compare(*b.DueDate))
			})
		}
	default:
		label := labelFunc(s.Key)
		return func(a, b tasks.Task) int {
			la, lb := label(&a), label(&b)
			return nullsLast(la == "", lb == "", func() int {
				return directed(cmp.Compare(la, lb))
			})
		}
	}
}

func labelFunc(key SortKey) func(*tasks.Task) string {
	switch key {
	case SortType:
		return func(t *tasks.Task) string { return string(t.Type) }
	case SortCategory:
		return func(t *tasks.Task) string { return string(t.Category) }
	case SortSubcategory:
		return (*tasks.Task).SubcategoryLabel
	case SortWho:
		return func(t *tasks.Task) string { return t.Who }
	default:
		return func(t *tasks.Task) string { return t.Name }
	}
}

func nullsLast(aNull, bNull bool, compare func() int) int {
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		return 1
	case bNull:
		return -1
	default:
		return compare()
	}
}
