package taskstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskjournal/tasks"
	"github.com/c360studio/taskjournal/taxonomy"
)

func TestApply_Sort(t *testing.T) {
	all := Filter{ShowCompleted: true}

	tests := []struct {
		name string
		sort Sort
		want []string
	}{
		{"collection order", Sort{}, []string{"1", "2", "3", "4"}},
		{"name asc", Sort{SortName, Ascending}, []string{"4", "2", "1", "3"}},
		{"name desc", Sort{SortName, Descending}, []string{"3", "1", "2", "4"}},
		{"created asc", Sort{SortCreatedAt, Ascending}, []string{"4", "3", "2", "1"}},
		{"due asc nulls last", Sort{SortDueDate, Ascending}, []string{"3", "1", "2", "4"}},
		{"due desc nulls last", Sort{SortDueDate, Descending}, []string{"1", "3", "2", "4"}},
		{"subcategory asc nulls last", Sort{SortSubcategory, Ascending}, []string{"1", "2", "3", "4"}},
		{"subcategory desc nulls last", Sort{SortSubcategory, Descending}, []string{"3", "2", "1", "4"}},
		{"who asc empty last", Sort{SortWho, Ascending}, []string{"1", "2", "3", "4"}},
		{"type asc stable", Sort{SortType, Ascending}, []string{"1", "4", "3", "2"}},
		{"category asc", Sort{SortCategory, Ascending}, []string{"4", "3", "2", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Apply(fixture(), all, tt.sort)))
		})
	}
}

func TestApply_StableTies(t *testing.T) {
	list := []tasks.Task{
		{ID: "a", Type: taxonomy.TypeFocus},
		{ID: "b", Type: taxonomy.TypeFollowUp},
		{ID: "c", Type: taxonomy.TypeFocus},
		{ID: "d", Type: taxonomy.TypeFocus},
	}

	got := Apply(list, Filter{ShowCompleted: true}, Sort{SortType, Descending})
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids(got))
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	list := fixture()
	_ = Apply(list, Filter{ShowCompleted: true}, Sort{SortName, Ascending})
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(list))
}

func TestApply_Filter(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"default hides completed", Filter{}, []string{"1", "2", "4"}},
		{"search name case-insensitive", Filter{Search: "DUNE"}, []string{"2"}},
		{"search entry", Filter{Search: "deadline"}, []string{"1"}},
		{"search who", Filter{Search: "sam"}, []string{"2"}},
		{"search completed hidden", Filter{Search: "taxes"}, []string{}},
		{"search completed shown", Filter{Search: "taxes", ShowCompleted: true}, []string{"3"}},
		{"type", Filter{Type: taxonomy.TypeFocus}, []string{"1", "4"}},
		{"category", Filter{Category: taxonomy.CategoryRecommendations}, []string{"2"}},
		{"subcategory", Filter{Subcategory: taxonomy.SubcategoryBoat}, []string{"1"}},
		{"who exact", Filter{Who: "John"}, []string{"1"}},
		{"who is not substring", Filter{Who: "Jo"}, []string{}},
		{"conjunction", Filter{Type: taxonomy.TypeFocus, Search: "dinner"}, []string{"4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Apply(fixture(), tt.filter, Sort{})))
		})
	}
}

func TestFilter_ActiveCount(t *testing.T) {
	assert.Equal(t, 0, Filter{Search: "x", ShowCompleted: true}.ActiveCount())
	assert.Equal(t, 2, Filter{Type: taxonomy.TypeFocus, Who: "John"}.ActiveCount())
}

func TestSort_Toggle(t *testing.T) {
	s := Sort{}.Toggle(SortName)
	assert.Equal(t, Sort{SortName, Ascending}, s)

	s = s.Toggle(SortName)
	assert.Equal(t, Sort{SortName, Descending}, s)

	s = s.Toggle(SortName)
	assert.Equal(t, Sort{SortName, Ascending}, s)

	s = s.Toggle(SortDueDate)
	assert.Equal(t, Sort{SortDueDate, Ascending}, s)
}

func TestParseSortKey(t *testing.T) {
	k, err := ParseSortKey("Due_Date")
	require.NoError(t, err)
	assert.Equal(t, SortDueDate, k)

	k, err = ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortNone, k)

	_, err = ParseSortKey("priority")
	assert.Error(t, err)
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"": Ascending, "asc": Ascending, "ascending": Ascending, "DESC": Descending, "descending": Descending} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}
