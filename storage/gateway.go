// Package storage is the persistence gateway for tasks: CRUD and list over a
// single relational table, plus a change feed announcing every committed write.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/c360studio/taskjournal/feed"
	"github.com/c360studio/taskjournal/metrics"
	"github.com/c360studio/taskjournal/tasks"
)

// Columns List may order by.
const (
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
	ColumnDueDate   = "due_date"
)

var orderColumns = map[string]bool{
	ColumnCreatedAt: true,
	ColumnUpdatedAt: true,
	ColumnDueDate:   true,
}

// Order selects the List ordering.
type Order struct {
	Column string
	Desc   bool
}

// Common orderings.
var (
	OrderCreatedDesc = Order{Column: ColumnCreatedAt, Desc: true}
	OrderCreatedAsc  = Order{Column: ColumnCreatedAt}
)

// Gateway reads and writes tasks. It is safe for concurrent use.
type Gateway struct {
	db      *gorm.DB
	bus     feed.Bus
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithBus sets the change feed. The default is an in-process bus.
func WithBus(bus feed.Bus) Option {
	return func(g *Gateway) {
		g.bus = bus
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// WithIDGenerator overrides id assignment.
func WithIDGenerator(newID func() string) Option {
	return func(g *Gateway) {
		g.newID = newID
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics records operation counts and latencies.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// NewGateway wraps an open database.
func NewGateway(db *gorm.DB, opts ...Option) *Gateway {
	g := &Gateway{
		db:     db,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.bus == nil {
		g.bus = feed.NewMemoryBus()
	}
	return g
}

// Migrate creates or updates the tasks table, including its CHECK constraints.
func (g *Gateway) Migrate(ctx context.Context) error {
	return classify("migrate", g.db.WithContext(ctx).AutoMigrate(&tasks.Task{}))
}

// Ping checks database connectivity.
func (g *Gateway) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return classify("ping", err)
	}
	return classify("ping", sqlDB.PingContext(ctx))
}

// Close closes the underlying connection pool.
func (g *Gateway) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create inserts a task built from d. The id and the timestamps are assigned
// here; a draft that is already completed is stamped completed now.
func (g *Gateway) Create(ctx context.Context, d tasks.Draft) (_ *tasks.Task, err error) {
	defer g.observe("create", time.Now(), &err)

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("create task: %w: %w", ErrConstraintViolation, err)
	}

	now := g.timestamp()
	t := tasks.Task{
		ID:          g.newID(),
		Entry:       d.Entry,
		Name:        d.Name,
		Type:        d.Type,
		Category:    d.Category,
		Subcategory: d.Subcategory,
		Who:         d.Who,
		DueDate:     d.DueDate,
		Completed:   d.Completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Name == "" {
		t.Name = tasks.DefaultName
	}
	if t.Completed {
		t.CompletedAt = &now
	}
	t = t.Clone()

	if err := g.db.WithContext(ctx).Create(&t).Error; err != nil {
		return nil, classify("create task", err)
	}

	g.publish(ctx, tasks.ChangeInsert, t)
	return &t, nil
}

// Get returns the task with id.
func (g *Gateway) Get(ctx context.Context, id string) (_ *tasks.Task, err error) {
	defer g.observe("get", time.Now(), &err)

	var t tasks.Task
	if err := g.db.WithContext(ctx).Where("id = ?", id).Take(&t).Error; err != nil {
		return nil, classify("get task", err)
	}
	return &t, nil
}

// Update applies p to the task with id and refreshes updated_at in the same
// statement. updated_at never moves backwards. completed_at is stamped when
// completed flips to true and cleared when it flips to false.
func (g *Gateway) Update(ctx context.Context, id string, p tasks.Patch) (_ *tasks.Task, err error) {
	defer g.observe("update", time.Now(), &err)

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("update task: %w: %w", ErrConstraintViolation, err)
	}

	var out tasks.Task
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur tasks.Task
		if err := tx.Where("id = ?", id).Take(&cur).Error; err != nil {
			return err
		}

		stamp := g.timestamp()
		if stamp.Before(cur.UpdatedAt) {
			stamp = cur.UpdatedAt
		}

		cols := p.Columns()
		cols["updated_at"] = stamp
		completedAt := cur.CompletedAt
		if p.Completed != nil && *p.Completed != cur.Completed {
			if *p.Completed {
				completedAt = &stamp
				cols["completed_at"] = stamp
			} else {
				completedAt = nil
				cols["completed_at"] = nil
			}
		}
		if err := tx.Model(&tasks.Task{}).Where("id = ?", id).Updates(cols).Error; err != nil {
			return err
		}

		p.ApplyTo(&cur)
		cur.UpdatedAt = stamp
		cur.CompletedAt = completedAt
		out = cur
		return nil
	})
	if err != nil {
		return nil, classify("update task", err)
	}

	g.publish(ctx, tasks.ChangeUpdate, out)
	return &out, nil
}

// Remove hard-deletes the task with id. A missing id reports ErrNotFound;
// callers that want idempotent deletes ignore it.
func (g *Gateway) Remove(ctx context.Context, id string) (err error) {
	defer g.observe("remove", time.Now(), &err)

	var gone tasks.Task
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&gone).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&tasks.Task{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return classify("remove task", err)
	}

	g.publish(ctx, tasks.ChangeDelete, gone)
	return nil
}

// List returns every task in the requested order. Ties are broken by id so
// repeated calls agree. An empty table yields an empty, non-nil slice.
func (g *Gateway) List(ctx context.Context, order Order) (_ []tasks.Task, err error) {
	defer g.observe("list", time.Now(), &err)

	if order.Column == "" {
		order = OrderCreatedDesc
	}
	if !orderColumns[order.Column] {
		return nil, fmt.Errorf("list tasks: unsupported order column %q", order.Column)
	}

	out := make([]tasks.Task, 0)
	err = g.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: order.Column}, Desc: order.Desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}}).
		Find(&out).Error
	if err != nil {
		return nil, classify("list tasks", err)
	}
	return out, nil
}

// Subscribe registers fn for every committed insert, update and delete.
// Delete events carry the row as it was before removal.
func (g *Gateway) Subscribe(fn func(tasks.ChangeKind, tasks.Task)) (feed.Subscription, error) {
	sub, err := g.bus.Subscribe(func(ev tasks.ChangeEvent) {
		g.metrics.ObserveFeed(string(ev.Kind), "received")
		fn(ev.Kind, ev.Task)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return sub, nil
}

// publish announces a committed write. The write already succeeded, so a
// feed failure is logged rather than returned.
func (g *Gateway) publish(ctx context.Context, kind tasks.ChangeKind, t tasks.Task) {
	ev := tasks.ChangeEvent{Kind: kind, Task: t.Clone(), At: g.timestamp()}
	if err := g.bus.Publish(context.WithoutCancel(ctx), ev); err != nil {
		g.logger.Warn("Failed to publish change", "kind", kind, "id", t.ID, "error", err)
		return
	}
	g.metrics.ObserveFeed(string(kind), "published")
}

func (g *Gateway) timestamp() time.Time {
	return g.now().UTC().Truncate(time.Microsecond)
}

func (g *Gateway) observe(op string, start time.Time, err *error) {
	g.metrics.ObserveStore(op, *err, time.Since(start))
}
