package taskstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskjournal/feed"
	"github.com/c360studio/taskjournal/storage"
	"github.com/c360studio/taskjournal/tasks"
	"github.com/c360studio/taskjournal/taxonomy"
)

var base = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type fakeLister struct {
	list  []tasks.Task
	err   error
	order storage.Order
}

func (f *fakeLister) List(_ context.Context, order storage.Order) ([]tasks.Task, error) {
	f.order = order
	return f.list, f.err
}

func sub(s taxonomy.Subcategory) *taxonomy.Subcategory { return &s }

func at(h int) *time.Time {
	t := base.Add(time.Duration(h) * time.Hour)
	return &t
}

func fixture() []tasks.Task {
	return []tasks.Task{
		{ID: "1", Name: "Service boat", Entry: "boat deadline", Type: taxonomy.TypeFocus, Category: taxonomy.CategoryTask, Subcategory: sub(taxonomy.SubcategoryBoat), Who: "John", DueDate: at(48), CreatedAt: base.Add(3 * time.Hour)},
		{ID: "2", Name: "Read Dune", Entry: "book rec from Sam", Type: taxonomy.TypeSaveForLater, Category: taxonomy.CategoryRecommendations, Subcategory: sub(taxonomy.SubcategoryBooks), Who: "Sam", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "3", Name: "ask about taxes", Entry: "finances", Type: taxonomy.TypeFollowUp, Category: taxonomy.CategoryMyQuestions, Subcategory: sub(taxonomy.SubcategoryFinances), DueDate: at(24), CreatedAt: base.Add(1 * time.Hour), Completed: true},
		{ID: "4", Name: "Anniversary dinner", Entry: "date night idea", Type: taxonomy.TypeFocus, Category: taxonomy.CategoryDateNight, CreatedAt: base},
	}
}

func loaded(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.Load(context.Background(), &fakeLister{list: fixture()}))
	return s
}

func ids(list []tasks.Task) []string {
	out := make([]string, len(list))
	for i, t := range list {
		out[i] = t.ID
	}
	return out
}

func TestStore_Load(t *testing.T) {
	l := &fakeLister{list: fixture()}
	s := New()

	require.NoError(t, s.Load(context.Background(), l))
	assert.Equal(t, storage.OrderCreatedDesc, l.order)
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(s.All()))
}

func TestStore_LoadErrorKeepsCollection(t *testing.T) {
	s := loaded(t)

	err := s.Load(context.Background(), &fakeLister{err: storage.ErrUnavailable})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrUnavailable))
	assert.Equal(t, 4, s.Len())
}

func TestStore_LoadEmpty(t *testing.T) {
	s := New()
	require.NoError(t, s.Load(context.Background(), &fakeLister{list: []tasks.Task{}}))
	assert.NotNil(t, s.View())
	assert.Empty(t, s.View())
}

func TestStore_ApplyRemoteEvent(t *testing.T) {
	s := loaded(t)

	fresh := tasks.Task{ID: "5", Name: "New", Type: taxonomy.TypeFocus, Category: taxonomy.CategoryIdeas, CreatedAt: base.Add(4 * time.Hour)}
	s.ApplyRemoteEvent(tasks.ChangeInsert, fresh)
	assert.Equal(t, []string{"5", "1", "2", "3", "4"}, ids(s.All()))

	// Replayed insert upserts in place.
	fresh.Name = "New (edited)"
	s.ApplyRemoteEvent(tasks.ChangeInsert, fresh)
	assert.Equal(t, 5, s.Len())
	got, ok := s.Get("5")
	require.True(t, ok)
	assert.Equal(t, "New (edited)", got.Name)

	updated, _ := s.Get("2")
	updated.Completed = true
	s.ApplyRemoteEvent(tasks.ChangeUpdate, updated)
	got, _ = s.Get("2")
	assert.True(t, got.Completed)
	assert.Equal(t, []string{"5", "1", "2", "3", "4"}, ids(s.All()))

	s.ApplyRemoteEvent(tasks.ChangeUpdate, tasks.Task{ID: "ghost", Name: "ghost"})
	_, ok = s.Get("ghost")
	assert.False(t, ok, "update for unknown id is a no-op")

	s.ApplyRemoteEvent(tasks.ChangeDelete, tasks.Task{ID: "1"})
	s.ApplyRemoteEvent(tasks.ChangeDelete, tasks.Task{ID: "ghost"})
	assert.Equal(t, []string{"5", "2", "3", "4"}, ids(s.All()))
}

func TestStore_DeleteTwiceIsIdempotent(t *testing.T) {
	s := loaded(t)

	s.ApplyRemoteEvent(tasks.ChangeDelete, tasks.Task{ID: "3"})
	after := s.All()

	s.ApplyRemoteEvent(tasks.ChangeDelete, tasks.Task{ID: "3"})
	assert.Equal(t, after, s.All())
}

func TestStore_OutOfOrderEventsConverge(t *testing.T) {
	s := New()
	row := tasks.Task{ID: "x", Name: "v1", Type: taxonomy.TypeFocus, Category: taxonomy.CategoryTask}

	// Update arriving before its insert is dropped; the insert then lands.
	v2 := row
	v2.Name = "v2"
	s.ApplyRemoteEvent(tasks.ChangeUpdate, v2)
	s.ApplyRemoteEvent(tasks.ChangeInsert, row)
	s.ApplyRemoteEvent(tasks.ChangeUpdate, v2)
	s.ApplyRemoteEvent(tasks.ChangeUpdate, v2)

	assert.Equal(t, 1, s.Len())
	got, _ := s.Get("x")
	assert.Equal(t, "v2", got.Name)
}

func TestStore_Patch(t *testing.T) {
	s := loaded(t)
	name := "Service the boat"
	done := true

	assert.True(t, s.Patch("1", tasks.Patch{Name: &name, Completed: &done, ClearDueDate: true}))
	got, _ := s.Get("1")
	assert.Equal(t, name, got.Name)
	assert.True(t, got.Completed)
	assert.Nil(t, got.DueDate)

	assert.False(t, s.Patch("ghost", tasks.Patch{Name: &name}))
}

func TestStore_ReturnedTasksAreCopies(t *testing.T) {
	s := loaded(t)

	got, _ := s.Get("1")
	*got.Subcategory = taxonomy.SubcategoryCar
	got.Name = "mutated"

	again, _ := s.Get("1")
	assert.Equal(t, taxonomy.SubcategoryBoat, *again.Subcategory)
	assert.Equal(t, "Service boat", again.Name)
}

func TestStore_ViewDefaultHidesCompleted(t *testing.T) {
	s := loaded(t)
	assert.Equal(t, []string{"1", "2", "4"}, ids(s.View()))

	s.SetFilter(Filter{ShowCompleted: true})
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(s.View()))
}

func TestStore_ViewIsPure(t *testing.T) {
	s := loaded(t)
	s.SetFilter(Filter{Search: "a", ShowCompleted: true})
	s.SetSort(SortName, Descending)

	first := s.View()
	second := s.View()
	assert.Equal(t, first, second)
	assert.Equal(t, 4, s.Len(), "filtering never mutates the collection")
}

func TestStore_Options(t *testing.T) {
	s := loaded(t)

	opts := s.Options()
	assert.Equal(t, []string{"Focus", "Follow up", "Save for later"}, opts.Types)
	assert.Equal(t, []string{"Date night", "My questions", "Recommendations", "Task"}, opts.Categories)
	assert.Equal(t, []string{"Boat", "Books", "Finances"}, opts.Subcategories)
	assert.Equal(t, []string{"John", "Sam"}, opts.Who)
}

func TestStore_Subscribe(t *testing.T) {
	s := loaded(t)

	var snaps []Snapshot
	cancel := s.Subscribe(func(snap Snapshot) {
		snaps = append(snaps, snap)
	})

	s.SetFilter(Filter{Type: taxonomy.TypeFocus})
	s.ApplyRemoteEvent(tasks.ChangeDelete, tasks.Task{ID: "4"})
	s.ApplyRemoteEvent(tasks.ChangeDelete, tasks.Task{ID: "4"})

	require.Len(t, snaps, 2, "no-op events publish nothing")
	assert.Equal(t, []string{"1", "4"}, ids(snaps[0].View))
	assert.Equal(t, 4, snaps[0].Total)
	assert.Equal(t, 1, snaps[0].Completed)
	assert.Equal(t, []string{"1"}, ids(snaps[1].View))
	assert.Equal(t, 3, snaps[1].Total)

	cancel()
	cancel()
	s.SetSort(SortName, Ascending)
	assert.Len(t, snaps, 2)
}

func TestStore_Attach(t *testing.T) {
	bus := feed.NewMemoryBus()
	src := &busSource{bus: bus}
	s := New()

	sub, err := s.Attach(src)
	require.NoError(t, err)

	row := tasks.Task{ID: "a", Name: "from feed", Type: taxonomy.TypeFocus, Category: taxonomy.CategoryTask}
	require.NoError(t, bus.Publish(context.Background(), tasks.ChangeEvent{Kind: tasks.ChangeInsert, Task: row}))
	assert.Equal(t, 1, s.Len())

	sub.Cancel()
	require.NoError(t, bus.Publish(context.Background(), tasks.ChangeEvent{Kind: tasks.ChangeDelete, Task: row}))
	assert.Equal(t, 1, s.Len())
}

func TestStore_ConcurrentEvents(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('A' + i%10))
			s.ApplyRemoteEvent(tasks.ChangeInsert, tasks.Task{ID: id, Type: taxonomy.TypeFocus, Category: taxonomy.CategoryTask})
			_ = s.View()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, s.Len())
}

type busSource struct {
	bus feed.Bus
}

func (b *busSource) Subscribe(fn func(tasks.ChangeKind, tasks.Task)) (feed.Subscription, error) {
	return b.bus.Subscribe(func(ev tasks.ChangeEvent) { fn(ev.Kind, ev.Task) })
}

func TestStore_StaleUpdateIgnored(t *testing.T) {
	s := New()
	v1 := tasks.Task{ID: "x", Name: "v1", Type: taxonomy.TypeFocus, Category: taxonomy.CategoryTask, UpdatedAt: base}
	v2 := v1
	v2.Name = "v2"
	v2.UpdatedAt = base.Add(time.Minute)

	s.Insert(v1)
	s.Replace(v2)
	s.ApplyRemoteEvent(tasks.ChangeUpdate, v1)
	s.ApplyRemoteEvent(tasks.ChangeInsert, v1)

	got, _ := s.Get("x")
	assert.Equal(t, "v2", got.Name)
}
