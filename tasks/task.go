// Package tasks holds the Task entity shared by storage, the change feed,
// the in-memory task store, aggregation and the HTTP API.
package tasks

import (
	"time"

	"github.com/c360studio/taskjournal/taxonomy"
)

// DefaultName is used when classification yields no title.
const DefaultName = "Untitled Task"

// Task is the sole persisted entity. Enum columns carry CHECK constraints that
// mirror the taxonomy, so an out-of-taxonomy write fails even if a caller
// skipped validation.
type Task struct {
	ID          string                `gorm:"column:id;primaryKey;size:36" json:"id"`
	Entry       string                `gorm:"column:entry;type:text;not null" json:"entry"`
	Name        string                `gorm:"column:name;size:512;not null" json:"name"`
	Type        taxonomy.Type         `gorm:"column:type;size:32;not null;index:idx_tasks_type;check:chk_tasks_type,type IN ('Focus','Follow up','Save for later')" json:"type"`
	Category    taxonomy.Category     `gorm:"column:category;size:32;not null;index:idx_tasks_category;check:chk_tasks_category,category IN ('My questions','Questions for me','My asks','Asks of me','Recommendations','Finds','Ideas','Rules / promises','Task','Night out','Date night','Family day')" json:"category"`
	Subcategory *taxonomy.Subcategory `gorm:"column:subcategory;size:32;check:chk_tasks_subcategory,subcategory IS NULL OR subcategory IN ('House','Car','Boat','Travel','Books','Movies','Shows','Music','Eats','Podcasts','Activities','Appearance','Career / network','Rules','Family / friends','Gifts','Finances','Philanthropy','Side quests')" json:"subcategory"`
	Who         string                `gorm:"column:who;size:255;not null;default:''" json:"who"`
	DueDate     *time.Time            `gorm:"column:due_date" json:"due_date"`
	Completed   bool                  `gorm:"column:completed;not null;default:false" json:"completed"`
	CompletedAt *time.Time            `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt   time.Time             `gorm:"column:created_at;index:idx_tasks_created_at" json:"created_at"`
	UpdatedAt   time.Time             `gorm:"column:updated_at" json:"updated_at"`
}

// TableName pins the relation name.
func (Task) TableName() string {
	return "tasks"
}

// Validate checks the enum invariants.
func (t *Task) Validate() error {
	return validateEnums(t.Type, t.Category, t.Subcategory)
}

// SubcategoryLabel returns the subcategory label or "" when absent.
func (t *Task) SubcategoryLabel() string {
	if t.Subcategory == nil {
		return ""
	}
	return string(*t.Subcategory)
}

// Clone returns a deep copy so callers can hand out tasks without sharing pointers.
func (t Task) Clone() Task {
	out := t
	if t.Subcategory != nil {
		s := *t.Subcategory
		out.Subcategory = &s
	}
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		out.CompletedAt = &c
	}
	return out
}

// Draft is the input for creating a task: a classification result or a
// manual-entry default, possibly edited by the user before it is accepted.
type Draft struct {
	Entry       string                `json:"entry"`
	Name        string                `json:"name"`
	Type        taxonomy.Type         `json:"type"`
	Category    taxonomy.Category     `json:"category"`
	Subcategory *taxonomy.Subcategory `json:"subcategory"`
	Who         string                `json:"who"`
	DueDate     *time.Time            `json:"due_date"`
	Completed   bool                  `json:"completed"`
}

// ManualDraft returns the default draft offered when classification fails.
func ManualDraft(entry string) Draft {
	return Draft{
		Entry:    entry,
		Type:     taxonomy.DefaultType,
		Category: taxonomy.DefaultCategory,
	}
}

// Validate checks the enum invariants of the draft.
func (d *Draft) Validate() error {
	return validateEnums(d.Type, d.Category, d.Subcategory)
}

// Patch is a partial update. Nil fields are left untouched.
// ClearSubcategory and ClearDueDate set the column to NULL.
type Patch struct {
	Entry            *string               `json:"entry,omitempty"`
	Name             *string               `json:"name,omitempty"`
	Type             *taxonomy.Type        `json:"type,omitempty"`
	Category         *taxonomy.Category    `json:"category,omitempty"`
	Subcategory      *taxonomy.Subcategory `json:"subcategory,omitempty"`
	ClearSubcategory bool                  `json:"clear_subcategory,omitempty"`
	Who              *string               `json:"who,omitempty"`
	DueDate          *time.Time            `json:"due_date,omitempty"`
	ClearDueDate     bool                  `json:"clear_due_date,omitempty"`
	Completed        *bool                 `json:"completed,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *Patch) IsEmpty() bool {
	return p.Entry == nil && p.Name == nil && p.Type == nil && p.Category == nil &&
		p.Subcategory == nil && !p.ClearSubcategory && p.Who == nil &&
		p.DueDate == nil && !p.ClearDueDate && p.Completed == nil
}

// Validate checks enum values present in the patch.
func (p *Patch) Validate() error {
	if p.Type != nil && !p.Type.Valid() {
		return &taxonomy.EnumError{Kind: taxonomy.KindType, Value: string(*p.Type)}
	}
	if p.Category != nil && !p.Category.Valid() {
		return &taxonomy.EnumError{Kind: taxonomy.KindCategory, Value: string(*p.Category)}
	}
	if p.Subcategory != nil && !p.Subcategory.Valid() {
		return &taxonomy.EnumError{Kind: taxonomy.KindSubcategory, Value: string(*p.Subcategory)}
	}
	return nil
}

// Columns converts the patch to a column → value map for a partial update.
func (p *Patch) Columns() map[string]any {
	cols := make(map[string]any)
	if p.Entry != nil {
		cols["entry"] = *p.Entry
	}
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Type != nil {
		cols["type"] = *p.Type
	}
	if p.Category != nil {
		cols["category"] = *p.Category
	}
	switch {
	case p.ClearSubcategory:
		cols["subcategory"] = nil
	case p.Subcategory != nil:
		cols["subcategory"] = *p.Subcategory
	}
	if p.Who != nil {
		cols["who"] = *p.Who
	}
	switch {
	case p.ClearDueDate:
		cols["due_date"] = nil
	case p.DueDate != nil:
		cols["due_date"] = *p.DueDate
	}
	if p.Completed != nil {
		cols["completed"] = *p.Completed
	}
	return cols
}

// ApplyTo merges the patch into t. updated_at and completed_at are the
// caller's concern.
func (p *Patch) ApplyTo(t *Task) {
	if p.Entry != nil {
		t.Entry = *p.Entry
	}
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	switch {
	case p.ClearSubcategory:
		t.Subcategory = nil
	case p.Subcategory != nil:
		s := *p.Subcategory
		t.Subcategory = &s
	}
	if p.Who != nil {
		t.Who = *p.Who
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
}

func validateEnums(typ taxonomy.Type, cat taxonomy.Category, sub *taxonomy.Subcategory) error {
	if !typ.Valid() {
		return &taxonomy.EnumError{Kind: taxonomy.KindType, Value: string(typ)}
	}
	if !cat.Valid() {
		return &taxonomy.EnumError{Kind: taxonomy.KindCategory, Value: string(cat)}
	}
	if sub != nil && !sub.Valid() {
		return &taxonomy.EnumError{Kind: taxonomy.KindSubcategory, Value: string(*sub)}
	}
	return nil
}
