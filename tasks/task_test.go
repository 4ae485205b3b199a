package tasks

import (
	"testing"
	"time"

	"github.com/c360studio/taskjournal/taxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestManualDraft(t *testing.T) {
	d := ManualDraft("pick up groceries")

	assert.Equal(t, "pick up groceries", d.Entry)
	assert.Equal(t, taxonomy.TypeFocus, d.Type)
	assert.Equal(t, taxonomy.CategoryTask, d.Category)
	assert.Nil(t, d.Subcategory)
	assert.Nil(t, d.DueDate)
	assert.False(t, d.Completed)
	require.NoError(t, d.Validate())
}

func TestDraftValidate(t *testing.T) {
	d := ManualDraft("x")
	d.Category = "Todos"

	err := d.Validate()
	require.Error(t, err)
	var enumErr *taxonomy.EnumError
	require.ErrorAs(t, err, &enumErr)
	assert.Equal(t, taxonomy.KindCategory, enumErr.Kind)

	d = ManualDraft("x")
	d.Subcategory = ptr(taxonomy.Subcategory("Yacht"))
	require.Error(t, d.Validate())
}

func TestPatchColumns(t *testing.T) {
	due := time.Date(2026, 10, 23, 15, 0, 0, 0, time.UTC)

	t.Run("only set fields", func(t *testing.T) {
		p := Patch{Name: ptr("Call John"), Completed: ptr(true)}
		assert.Equal(t, map[string]any{"name": "Call John", "completed": true}, p.Columns())
	})

	t.Run("clear wins over value", func(t *testing.T) {
		p := Patch{
			Subcategory:      ptr(taxonomy.SubcategoryBoat),
			ClearSubcategory: true,
			DueDate:          &due,
			ClearDueDate:     true,
		}
		cols := p.Columns()
		assert.Contains(t, cols, "subcategory")
		assert.Nil(t, cols["subcategory"])
		assert.Contains(t, cols, "due_date")
		assert.Nil(t, cols["due_date"])
	})

	t.Run("empty", func(t *testing.T) {
		p := Patch{}
		assert.True(t, p.IsEmpty())
		assert.Empty(t, p.Columns())
	})
}

func TestPatchValidate(t *testing.T) {
	p := Patch{Type: ptr(taxonomy.Type("Todo"))}
	require.Error(t, p.Validate())

	p = Patch{Type: ptr(taxonomy.TypeFollowUp), Category: ptr(taxonomy.CategoryMyAsks)}
	require.NoError(t, p.Validate())
}

func TestPatchApplyTo(t *testing.T) {
	due := time.Date(2026, 10, 23, 15, 0, 0, 0, time.UTC)
	task := Task{
		ID:          "abc",
		Entry:       "Call John",
		Name:        "Call",
		Type:        taxonomy.TypeFocus,
		Category:    taxonomy.CategoryTask,
		Subcategory: ptr(taxonomy.SubcategoryBoat),
	}

	p := Patch{Who: ptr("John"), DueDate: &due, ClearSubcategory: true, Completed: ptr(true)}
	p.ApplyTo(&task)

	assert.Equal(t, "abc", task.ID)
	assert.Equal(t, "John", task.Who)
	require.NotNil(t, task.DueDate)
	assert.True(t, task.DueDate.Equal(due))
	assert.Nil(t, task.Subcategory)
	assert.True(t, task.Completed)
}

func TestCloneDoesNotSharePointers(t *testing.T) {
	due := time.Now()
	orig := Task{Subcategory: ptr(taxonomy.SubcategoryCar), DueDate: &due}

	cp := orig.Clone()
	*cp.Subcategory = taxonomy.SubcategoryBoat
	*cp.DueDate = due.Add(time.Hour)

	assert.Equal(t, taxonomy.SubcategoryCar, *orig.Subcategory)
	assert.True(t, orig.DueDate.Equal(due))
}

func TestParseChangeKind(t *testing.T) {
	k, err := ParseChangeKind("update")
	require.NoError(t, err)
	assert.Equal(t, ChangeUpdate, k)

	_, err = ParseChangeKind("upsert")
	require.Error(t, err)
}
