// Package aggregation derives dashboard statistics from a task collection.
// Every function is pure and deterministic: the same input yields the same
// output, and an empty collection yields zero counts.
package aggregation

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/c360studio/taskjournal/tasks"
	"github.com/c360studio/taskjournal/taxonomy"
)

// Dimension is a group-by column.
type Dimension string

const (
	ByCategory    Dimension = "category"
	BySubcategory Dimension = "subcategory"
	ByWho         Dimension = "who"
)

// NoSubcategory labels tasks without a subcategory in stacked series.
const NoSubcategory = "None"

// dayLayout is the bucket label format.
const dayLayout = "2006-01-02"

// Scope is a chart's own sub-filter. Zero fields place no constraint.
type Scope struct {
	Category    taxonomy.Category    `json:"category,omitempty"`
	Subcategory taxonomy.Subcategory `json:"subcategory,omitempty"`
}

// Match reports whether t falls inside the scope.
func (s Scope) Match(t *tasks.Task) bool {
	if s.Category != "" && t.Category != s.Category {
		return false
	}
	if s.Subcategory != "" && (t.Subcategory == nil || *t.Subcategory != s.Subcategory) {
		return false
	}
	return true
}

// Group is one slice of a distribution.
type Group struct {
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// Breakdown is a group-by-count over one dimension.
type Breakdown struct {
	Dimension Dimension `json:"dimension"`
	Total     int       `json:"total"`
	Groups    []Group   `json:"groups"`
}

// Distribution counts tasks in scope by dim, largest group first with ties
// broken by label. Tasks lacking a subcategory or a who are not counted in
// those dimensions. Percentages are of Total, rounded to the nearest integer.
func Distribution(list []tasks.Task, dim Dimension, scope Scope) Breakdown {
	counts := make(map[string]int)
	total := 0
	for i := range list {
		t := &list[i]
		if !scope.Match(t) {
			continue
		}
		label := dimensionLabel(t, dim)
		if label == "" {
			continue
		}
		counts[label]++
		total++
	}

	groups := make([]Group, 0, len(counts))
	for label, n := range counts {
		groups = append(groups, Group{Label: label, Count: n, Percent: percent(n, total)})
	}
	slices.SortFunc(groups, func(a, b Group) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})

	return Breakdown{Dimension: dim, Total: total, Groups: groups}
}

func dimensionLabel(t *tasks.Task, dim Dimension) string {
	switch dim {
	case ByCategory:
		return string(t.Category)
	case BySubcategory:
		return t.SubcategoryLabel()
	case ByWho:
		return t.Who
	default:
		return ""
	}
}

// ParseDimension validates s.
func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(s); d {
	case ByCategory, BySubcategory, ByWho:
		return d, nil
	default:
		return "", fmt.Errorf("unknown dimension %q", s)
	}
}

// Stack is one labelled layer of a series. Counts aligns with Series.Days.
type Stack struct {
	Label  string `json:"label"`
	Counts []int  `json:"counts"`
}

// Series is a per-day count, optionally stacked.
type Series struct {
	Days   []string `json:"days"`
	Totals []int    `json:"totals"`
	Stacks []Stack  `json:"stacks"`
}

// CompletionSeries buckets completed tasks in scope by the local calendar day
// they were completed, stacked by subcategory. The completion instant is
// completed_at; rows written before that column existed fall back to
// updated_at. The due date is never used.
func CompletionSeries(list []tasks.Task, loc *time.Location, scope Scope) Series {
	var points []point
	for i := range list {
		t := &list[i]
		if !t.Completed || !scope.Match(t) {
			continue
		}
		label := t.SubcategoryLabel()
		if label == "" {
			label = NoSubcategory
		}
		points = append(points, point{at: completedAt(t), label: label})
	}
	return buildSeries(points, loc)
}

// CreationSeries counts tasks by the local calendar day they were created.
func CreationSeries(list []tasks.Task, loc *time.Location) Series {
	points := make([]point, 0, len(list))
	for i := range list {
		points = append(points, point{at: list[i].CreatedAt, label: "Created"})
	}
	return buildSeries(points, loc)
}

func completedAt(t *tasks.Task) time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.UpdatedAt
}

type point struct {
	at    time.Time
	label string
}

func buildSeries(points []point, loc *time.Location) Series {
	if loc == nil {
		loc = time.Local
	}

	byDay := make(map[string]map[string]int)
	labelTotals := make(map[string]int)
	for _, p := range points {
		day := p.at.In(loc).Format(dayLayout)
		if byDay[day] == nil {
			byDay[day] = make(map[string]int)
		}
		byDay[day][p.label]++
		labelTotals[p.label]++
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	// The layout sorts lexically in calendar order.
	slices.Sort(days)

	labels := make([]string, 0, len(labelTotals))
	for l := range labelTotals {
		labels = append(labels, l)
	}
	slices.SortFunc(labels, func(a, b string) int {
		// NoSubcategory always stacks on top.
		switch {
		case a == NoSubcategory && b != NoSubcategory:
			return 1
		case b == NoSubcategory && a != NoSubcategory:
			return -1
		}
		return cmp.Compare(a, b)
	})

	s := Series{
		Days:   days,
		Totals: make([]int, len(days)),
		Stacks: make([]Stack, 0, len(labels)),
	}
	for _, l := range labels {
		counts := make([]int, len(days))
		for i, day := range days {
			counts[i] = byDay[day][l]
			s.Totals[i] += counts[i]
		}
		s.Stacks = append(s.Stacks, Stack{Label: l, Counts: counts})
	}
	return s
}

// Rate is a completed-versus-pending split.
type Rate struct {
	Type             taxonomy.Type `json:"type,omitempty"`
	Total            int           `json:"total"`
	Completed        int           `json:"completed"`
	Pending          int           `json:"pending"`
	CompletedPercent int           `json:"completed_percent"`
	PendingPercent   int           `json:"pending_percent"`
}

// CompletionRate splits tasks of type typ, or all tasks when typ is empty.
func CompletionRate(list []tasks.Task, typ taxonomy.Type) Rate {
	r := Rate{Type: typ}
	for i := range list {
		if typ != "" && list[i].Type != typ {
			continue
		}
		r.Total++
		if list[i].Completed {
			r.Completed++
		}
	}
	r.Pending = r.Total - r.Completed
	r.CompletedPercent = percent(r.Completed, r.Total)
	r.PendingPercent = percent(r.Pending, r.Total)
	return r
}

// Options selects the sub-filters of a dashboard.
type Options struct {
	// Location is the zone calendar days are computed in. Nil means local.
	Location *time.Location
	// RateType narrows the completion-rate chart.
	RateType taxonomy.Type
	// Scope narrows the distribution and completion charts.
	Scope Scope
}

// Dashboard is the full set of statistics for one snapshot.
type Dashboard struct {
	Total         int       `json:"total"`
	Completed     int       `json:"completed"`
	Categories    Breakdown `json:"categories"`
	Subcategories Breakdown `json:"subcategories"`
	Who           Breakdown `json:"who"`
	Completions   Series    `json:"completions"`
	Creations     Series    `json:"creations"`
	Rate          Rate      `json:"rate"`
}

// Build recomputes every chart from list.
func Build(list []tasks.Task, opts Options) Dashboard {
	d := Dashboard{
		Total:         len(list),
		Categories:    Distribution(list, ByCategory, Scope{}),
		Subcategories: Distribution(list, BySubcategory, Scope{Category: opts.Scope.Category}),
		Who:           Distribution(list, ByWho, opts.Scope),
		Completions:   CompletionSeries(list, opts.Location, opts.Scope),
		Creations:     CreationSeries(list, opts.Location),
		Rate:          CompletionRate(list, opts.RateType),
	}
	for i := range list {
		if list[i].Completed {
			d.Completed++
		}
	}
	return d
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) * 100 / float64(total)))
}
