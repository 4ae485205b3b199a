package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskjournal/metrics"
	"github.com/c360studio/taskjournal/tasks"
	"github.com/c360studio/taskjournal/taxonomy"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, opts ...Option) *Gateway {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "tasks.db")
	cfg.ConnectAttempts = 1

	db, err := Open(context.Background(), cfg, discardLogger())
	require.NoError(t, err)

	g := NewGateway(db, append([]Option{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, g.Migrate(context.Background()))
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func boatDraft() tasks.Draft {
	sub := taxonomy.SubcategoryBoat
	due := time.Date(2026, 10, 23, 19, 0, 0, 0, time.UTC)
	return tasks.Draft{
		Entry:       "Get the boat serviced before Friday",
		Name:        "Service the boat",
		Type:        taxonomy.TypeFocus,
		Category:    taxonomy.CategoryTask,
		Subcategory: &sub,
		DueDate:     &due,
	}
}

func TestGateway_CreateAndGet(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 10, 19, 13, 30, 0, 0, time.UTC)}
	g := newTestGateway(t, WithClock(clock.Now))
	ctx := context.Background()

	created, err := g.Create(ctx, boatDraft())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.True(t, created.CreatedAt.Equal(clock.Now()))
	assert.True(t, created.UpdatedAt.Equal(created.CreatedAt))
	assert.False(t, created.Completed)

	got, err := g.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Service the boat", got.Name)
	assert.Equal(t, taxonomy.TypeFocus, got.Type)
	assert.Equal(t, taxonomy.CategoryTask, got.Category)
	require.NotNil(t, got.Subcategory)
	assert.Equal(t, taxonomy.SubcategoryBoat, *got.Subcategory)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(*created.DueDate))
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
}

func TestGateway_CreateDefaultsName(t *testing.T) {
	g := newTestGateway(t)

	created, err := g.Create(context.Background(), tasks.ManualDraft("something"))
	require.NoError(t, err)
	assert.Equal(t, tasks.DefaultName, created.Name)
	assert.Nil(t, created.Subcategory)
	assert.Nil(t, created.DueDate)
}

func TestGateway_CreateRejectsInvalidEnum(t *testing.T) {
	g := newTestGateway(t)

	d := boatDraft()
	d.Type = "Urgent"

	_, err := g.Create(context.Background(), d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConstraintViolation))

	var ee *taxonomy.EnumError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, taxonomy.KindType, ee.Kind)
}

func TestGateway_CheckConstraintEnforcedByDatabase(t *testing.T) {
	g := newTestGateway(t)
	now := time.Now().UTC()

	err := g.db.Exec(
		"INSERT INTO tasks (id, entry, name, type, category, who, completed, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		"raw-1", "entry", "name", "Urgent", "Task", "", false, now, now,
	).Error
	require.Error(t, err)
	assert.True(t, errors.Is(classify("raw insert", err), ErrConstraintViolation), "got %v", err)

	err = g.db.Exec(
		"INSERT INTO tasks (id, entry, name, type, category, subcategory, who, completed, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		"raw-2", "entry", "name", "Focus", "Task", "Yacht", "", false, now, now,
	).Error
	require.Error(t, err)
	assert.True(t, errors.Is(classify("raw insert", err), ErrConstraintViolation), "got %v", err)
}

func TestGateway_Update(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 10, 19, 13, 30, 0, 0, time.UTC)}
	g := newTestGateway(t, WithClock(clock.Now))
	ctx := context.Background()

	created, err := g.Create(ctx, boatDraft())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	done := true
	updated, err := g.Update(ctx, created.ID, tasks.Patch{Completed: &done, ClearDueDate: true})
	require.NoError(t, err)

	assert.True(t, updated.Completed)
	assert.Nil(t, updated.DueDate)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))

	got, err := g.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Nil(t, got.DueDate)
	assert.True(t, got.UpdatedAt.Equal(updated.UpdatedAt))
	assert.Equal(t, created.Name, got.Name)
}

func TestGateway_UpdateNeverMovesUpdatedAtBackwards(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 10, 19, 13, 30, 0, 0, time.UTC)}
	g := newTestGateway(t, WithClock(clock.Now))
	ctx := context.Background()

	created, err := g.Create(ctx, boatDraft())
	require.NoError(t, err)

	clock.Advance(-time.Hour)
	name := "Renamed"
	updated, err := g.Update(ctx, created.ID, tasks.Patch{Name: &name})
	require.NoError(t, err)

	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
}

func TestGateway_UpdateStampsCompletedAt(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 10, 19, 13, 30, 0, 0, time.UTC)}
	g := newTestGateway(t, WithClock(clock.Now))
	ctx := context.Background()

	// Due well after the day it is finished.
	created, err := g.Create(ctx, boatDraft())
	require.NoError(t, err)
	assert.Nil(t, created.CompletedAt)

	clock.Advance(time.Hour)
	finished := clock.Now()
	done := true
	updated, err := g.Update(ctx, created.ID, tasks.Patch{Completed: &done})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, updated.CompletedAt.Equal(finished))

	// Renaming a completed task keeps the original completion instant.
	clock.Advance(time.Hour)
	name := "Boat serviced"
	renamed, err := g.Update(ctx, created.ID, tasks.Patch{Name: &name, Completed: &done})
	require.NoError(t, err)
	require.NotNil(t, renamed.CompletedAt)
	assert.True(t, renamed.CompletedAt.Equal(finished))

	got, err := g.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(finished))

	undo := false
	reopened, err := g.Update(ctx, created.ID, tasks.Patch{Completed: &undo})
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)

	got, err = g.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.Completed)
	assert.Nil(t, got.CompletedAt)
}

func TestGateway_CreateCompletedStampsCompletedAt(t *testing.T) {
	now := time.Date(2026, 10, 19, 13, 30, 0, 0, time.UTC)
	g := newTestGateway(t, WithClock(func() time.Time { return now }))

	d := boatDraft()
	d.Completed = true
	created, err := g.Create(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, created.CompletedAt)
	assert.True(t, created.CompletedAt.Equal(now))
}

func TestGateway_UpdateMissing(t *testing.T) {
	g := newTestGateway(t)
	done := true

	_, err := g.Update(context.Background(), "does-not-exist", tasks.Patch{Completed: &done})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGateway_UpdateRejectsInvalidEnum(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	created, err := g.Create(ctx, boatDraft())
	require.NoError(t, err)

	bad := taxonomy.Category("Chores")
	_, err = g.Update(ctx, created.ID, tasks.Patch{Category: &bad})
	assert.True(t, errors.Is(err, ErrConstraintViolation))

	got, err := g.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, taxonomy.CategoryTask, got.Category)
}

func TestGateway_Remove(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	created, err := g.Create(ctx, boatDraft())
	require.NoError(t, err)

	require.NoError(t, g.Remove(ctx, created.ID))

	_, err = g.Get(ctx, created.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = g.Remove(ctx, created.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGateway_List(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)}
	g := newTestGateway(t, WithClock(clock.Now))
	ctx := context.Background()

	empty, err := g.List(ctx, OrderCreatedDesc)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	var ids []string
	for i := 0; i < 3; i++ {
		created, err := g.Create(ctx, tasks.ManualDraft("entry"))
		require.NoError(t, err)
		ids = append(ids, created.ID)
		clock.Advance(time.Hour)
	}

	desc, err := g.List(ctx, OrderCreatedDesc)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, taskIDs(desc))

	asc, err := g.List(ctx, OrderCreatedAsc)
	require.NoError(t, err)
	assert.Equal(t, ids, taskIDs(asc))

	defaulted, err := g.List(ctx, Order{})
	require.NoError(t, err)
	assert.Equal(t, taskIDs(desc), taskIDs(defaulted))

	_, err = g.List(ctx, Order{Column: "name; DROP TABLE tasks"})
	assert.Error(t, err)
}

func TestGateway_ListTiesBrokenByID(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)}
	seq := []string{"c", "a", "b"}
	next := 0
	g := newTestGateway(t, WithClock(clock.Now), WithIDGenerator(func() string {
		id := seq[next]
		next++
		return id
	}))
	ctx := context.Background()

	for range seq {
		_, err := g.Create(ctx, tasks.ManualDraft("same instant"))
		require.NoError(t, err)
	}

	list, err := g.List(ctx, OrderCreatedDesc)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, taskIDs(list))
}

func TestGateway_ChangeFeed(t *testing.T) {
	m := metrics.New()
	g := newTestGateway(t, WithMetrics(m))
	ctx := context.Background()

	type change struct {
		kind tasks.ChangeKind
		task tasks.Task
	}
	var (
		mu  sync.Mutex
		got []change
	)
	sub, err := g.Subscribe(func(kind tasks.ChangeKind, task tasks.Task) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, change{kind, task})
	})
	require.NoError(t, err)

	created, err := g.Create(ctx, boatDraft())
	require.NoError(t, err)
	done := true
	_, err = g.Update(ctx, created.ID, tasks.Patch{Completed: &done})
	require.NoError(t, err)
	require.NoError(t, g.Remove(ctx, created.ID))

	// Failed writes announce nothing.
	_ = g.Remove(ctx, created.ID)

	mu.Lock()
	require.Len(t, got, 3)
	assert.Equal(t, tasks.ChangeInsert, got[0].kind)
	assert.Equal(t, tasks.ChangeUpdate, got[1].kind)
	assert.True(t, got[1].task.Completed)
	assert.Equal(t, tasks.ChangeDelete, got[2].kind)
	assert.Equal(t, created.ID, got[2].task.ID)
	assert.True(t, got[2].task.Completed, "delete carries the row as last stored")
	mu.Unlock()

	sub.Cancel()
	_, err = g.Create(ctx, boatDraft())
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, got, 3)
	mu.Unlock()
}

func TestGateway_ClosedDatabaseIsUnavailable(t *testing.T) {
	g := newTestGateway(t)
	require.NoError(t, g.Close())

	_, err := g.Get(context.Background(), "any")
	assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)

	_, err = g.List(context.Background(), OrderCreatedDesc)
	assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)

	assert.True(t, errors.Is(g.Ping(context.Background()), ErrUnavailable))
}

func TestGateway_CanceledContext(t *testing.T) {
	g := newTestGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Create(ctx, boatDraft())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Driver = "oracle"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.DSN = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.ConnectAttempts = 0
	assert.Error(t, bad.Validate())
}

func TestOpen_UnreachableIsUnavailable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "missing", "dir", "tasks.db")
	cfg.ConnectAttempts = 2
	cfg.ConnectDelay = time.Millisecond

	_, err := Open(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func taskIDs(list []tasks.Task) []string {
	out := make([]string, len(list))
	for i, t := range list {
		out[i] = t.ID
	}
	return out
}
