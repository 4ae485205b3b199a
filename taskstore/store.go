// Package taskstore holds the in-memory working set of tasks, keeps it
// convergent with durable storage through the change feed, and derives the
// filtered, sorted view the presentation layer renders.
package taskstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/c360studio/taskjournal/feed"
	"github.com/c360studio/taskjournal/storage"
	"github.com/c360studio/taskjournal/tasks"
)

// Lister loads the full collection.
type Lister interface {
	List(ctx context.Context, order storage.Order) ([]tasks.Task, error)
}

// ChangeSource is a push feed of row changes.
type ChangeSource interface {
	Subscribe(fn func(tasks.ChangeKind, tasks.Task)) (feed.Subscription, error)
}

// Snapshot is the state published to listeners after every transition.
type Snapshot struct {
	View      []tasks.Task `json:"view"`
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	Filter    Filter       `json:"filter"`
	Sort      Sort         `json:"sort"`
}

// Options lists the distinct values present in the working set, for filter
// dropdowns.
type Options struct {
	Types         []string `json:"types"`
	Categories    []string `json:"categories"`
	Subcategories []string `json:"subcategories"`
	Who           []string `json:"who"`
}

// Store is an observable task collection. It is safe for concurrent use;
// listeners run on the goroutine that caused the transition, outside the lock.
type Store struct {
	mu     sync.RWMutex
	items  []tasks.Task
	filter Filter
	sort   Sort

	lmu       sync.Mutex
	listeners map[uint64]func(Snapshot)
	nextID    uint64

	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		items:     []tasks.Task{},
		listeners: make(map[uint64]func(Snapshot)),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the collection with the lister's contents, newest first.
// On error the collection is left as it was.
func (s *Store) Load(ctx context.Context, l Lister) error {
	list, err := l.List(ctx, storage.OrderCreatedDesc)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	items := make([]tasks.Task, 0, len(list))
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, t := range list {
		if seen.Add(t.ID) {
			items = append(items, t.Clone())
		}
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	s.logger.Debug("Task store loaded", "tasks", len(items))
	s.notify()
	return nil
}

// ApplyRemoteEvent reconciles one change notification. Inserts upsert,
// updates replace a known row, deletes remove a known row. Unknown ids on
// update or delete are ignored, as are rows older than the copy already held,
// so replays and late deliveries are harmless.
func (s *Store) ApplyRemoteEvent(kind tasks.ChangeKind, t tasks.Task) {
	var changed bool
	switch kind {
	case tasks.ChangeInsert:
		changed = s.upsert(t)
	case tasks.ChangeUpdate:
		changed = s.replace(t)
	case tasks.ChangeDelete:
		changed = s.remove(t.ID)
	default:
		s.logger.Warn("Ignoring change with unknown kind", "kind", kind, "id", t.ID)
		return
	}
	if changed {
		s.notify()
	}
}

// Insert records a task the caller just created.
func (s *Store) Insert(t tasks.Task) {
	s.ApplyRemoteEvent(tasks.ChangeInsert, t)
}

// Patch merges p into a known row and reports whether id was present. It
// leaves updated_at alone; use Replace when the stored row is at hand.
func (s *Store) Patch(id string, p tasks.Patch) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	p.ApplyTo(&s.items[i])
	s.mu.Unlock()

	s.notify()
	return true
}

// Replace swaps in the stored row for a known id.
func (s *Store) Replace(t tasks.Task) {
	s.ApplyRemoteEvent(tasks.ChangeUpdate, t)
}

// Remove drops id from the collection.
func (s *Store) Remove(id string) {
	s.ApplyRemoteEvent(tasks.ChangeDelete, tasks.Task{ID: id})
}

// Get returns a copy of the task with id.
func (s *Store) Get(id string) (tasks.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.items[i].Clone(), true
	}
	return tasks.Task{}, false
}

// All returns copies of every task in collection order.
func (s *Store) All() []tasks.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tasks.Task, len(s.items))
	for i := range s.items {
		out[i] = s.items[i].Clone()
	}
	return out
}

// Len returns the collection size.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// SetFilter replaces the active predicate.
func (s *Store) SetFilter(f Filter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	s.notify()
}

// SetSort replaces the active ordering.
func (s *Store) SetSort(key SortKey, dir Direction) {
	s.mu.Lock()
	s.sort = Sort{Key: key, Direction: dir}
	s.mu.Unlock()
	s.notify()
}

// Filter returns the active predicate.
func (s *Store) Filter() Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// Sort returns the active ordering.
func (s *Store) Sort() Sort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sort
}

// View returns the filtered, sorted list.
func (s *Store) View() []tasks.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Apply(s.items, s.filter, s.sort)
}

// Options returns the distinct non-empty values in the working set.
func (s *Store) Options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return OptionsOf(s.items)
}

// Snapshot returns the current published state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every state transition and returns a function
// that unregisters it. fn is not called with the current state.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

// Attach feeds every change from src into the store.
func (s *Store) Attach(src ChangeSource) (feed.Subscription, error) {
	sub, err := src.Subscribe(s.ApplyRemoteEvent)
	if err != nil {
		return nil, fmt.Errorf("attach task store: %w", err)
	}
	return sub, nil
}

func (s *Store) upsert(t tasks.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(t.ID); i >= 0 {
		if t.UpdatedAt.Before(s.items[i].UpdatedAt) {
			return false
		}
		s.items[i] = t.Clone()
		return true
	}
	// Newest first, matching Load.
	s.items = append([]tasks.Task{t.Clone()}, s.items...)
	return true
}

func (s *Store) replace(t tasks.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(t.ID)
	if i < 0 || t.UpdatedAt.Before(s.items[i].UpdatedAt) {
		return false
	}
	s.items[i] = t.Clone()
	return true
}

func (s *Store) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

// indexOf returns the position of id or -1. Caller holds s.mu.
func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// snapshotLocked builds a snapshot. Caller holds s.mu.
func (s *Store) snapshotLocked() Snapshot {
	completed := 0
	for i := range s.items {
		if s.items[i].Completed {
			completed++
		}
	}
	return Snapshot{
		View:      Apply(s.items, s.filter, s.sort),
		Total:     len(s.items),
		Completed: completed,
		Filter:    s.filter,
		Sort:      s.sort,
	}
}

func (s *Store) notify() {
	s.lmu.Lock()
	if len(s.listeners) == 0 {
		s.lmu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

// OptionsOf collects the distinct non-empty filter values in list, sorted.
func OptionsOf(list []tasks.Task) Options {
	types := mapset.NewThreadUnsafeSet[string]()
	categories := mapset.NewThreadUnsafeSet[string]()
	subcategories := mapset.NewThreadUnsafeSet[string]()
	who := mapset.NewThreadUnsafeSet[string]()

	for i := range list {
		t := &list[i]
		types.Add(string(t.Type))
		categories.Add(string(t.Category))
		if l := t.SubcategoryLabel(); l != "" {
			subcategories.Add(l)
		}
		if t.Who != "" {
			who.Add(t.Who)
		}
	}

	return Options{
		Types:         sorted(types),
		Categories:    sorted(categories),
		Subcategories: sorted(subcategories),
		Who:           sorted(who),
	}
}

func sorted(set mapset.Set[string]) []string {
	out := set.ToSlice()
	sort.Strings(out)
	return out
}
