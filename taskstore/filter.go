package taskstore

import (
	"strings"

	"github.com/c360studio/taskjournal/tasks"
	"github.com/c360studio/taskjournal/taxonomy"
)

// Filter is the list predicate. Zero-valued fields place no constraint, so
// the zero Filter shows every pending task.
type Filter struct {
	// Search is matched case-insensitively as a substring of name, entry
	// and who.
	Search string `json:"search,omitempty"`

	Type        taxonomy.Type        `json:"type,omitempty"`
	Category    taxonomy.Category    `json:"category,omitempty"`
	Subcategory taxonomy.Subcategory `json:"subcategory,omitempty"`
	Who         string               `json:"who,omitempty"`

	// ShowCompleted includes completed tasks. They are hidden by default.
	ShowCompleted bool `json:"show_completed,omitempty"`
}

// Match reports whether t passes every clause of the filter.
func (f Filter) Match(t *tasks.Task) bool {
	if !f.ShowCompleted && t.Completed {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Subcategory != "" && (t.Subcategory == nil || *t.Subcategory != f.Subcategory) {
		return false
	}
	if f.Who != "" && t.Who != f.Who {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		return strings.Contains(strings.ToLower(t.Name), q) ||
			strings.Contains(strings.ToLower(t.Entry), q) ||
			strings.Contains(strings.ToLower(t.Who), q)
	}
	return true
}

// ActiveCount is the number of dropdown constraints in effect.
func (f Filter) ActiveCount() int {
	n := 0
	for _, set := range []bool{f.Type != "", f.Category != "", f.Subcategory != "", f.Who != ""} {
		if set {
			n++
		}
	}
	return n
}
