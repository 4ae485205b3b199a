// Package journal is the action boundary for the task journal: it turns a
// user action (analyze, accept, edit, toggle, log now, delete) into calls on
// the classifier and the persistence gateway, and mirrors successful writes
// into the local task store.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/taskjournal/classify"
	"github.com/c360studio/taskjournal/metrics"
	"github.com/c360studio/taskjournal/storage"
	"github.com/c360studio/taskjournal/tasks"
	"github.com/c360studio/taskjournal/taskstore"
)

// Classifier classifies free text.
type Classifier interface {
	Classify(ctx context.Context, entry string, hint *classify.Hint) (*classify.Result, error)
}

// Gateway is the persistence surface the actions write through.
type Gateway interface {
	Create(ctx context.Context, d tasks.Draft) (*tasks.Task, error)
	Update(ctx context.Context, id string, p tasks.Patch) (*tasks.Task, error)
	Remove(ctx context.Context, id string) error
}

// Classification outcomes recorded in metrics.
const (
	OutcomeOK          = "ok"
	OutcomeValidation  = "validation"
	OutcomeUnavailable = "unavailable"
)

// Service runs journal actions.
type Service struct {
	classifier Classifier
	gateway    Gateway
	store      *taskstore.Store
	metrics    *metrics.Metrics
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithStore mirrors successful writes into store.
func WithStore(store *taskstore.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithMetrics records classification outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the clock used by LogNow.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService wires the action boundary. classifier may be nil when only
// manual entry is available.
func NewService(classifier Classifier, gateway Gateway, opts ...Option) (*Service, error) {
	if gateway == nil {
		return nil, errors.New("gateway is required")
	}
	s := &Service{
		classifier: classifier,
		gateway:    gateway,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Analyze classifies entry into a draft the user can review. When
// classification fails the manual default draft is returned together with the
// error, so the caller can always offer a form.
func (s *Service) Analyze(ctx context.Context, entry string, hint *classify.Hint) (tasks.Draft, error) {
	entry = strings.TrimSpace(entry)
	manual := tasks.ManualDraft(entry)
	if hint != nil && hint.DueDate != nil {
		d := *hint.DueDate
		manual.DueDate = &d
	}

	if s.classifier == nil {
		return manual, &classify.Error{Kind: classify.KindServiceUnavailable, Err: errors.New("no classifier configured")}
	}

	start := time.Now()
	res, err := s.classifier.Classify(ctx, entry, hint)
	elapsed := time.Since(start)
	if err != nil {
		outcome := OutcomeUnavailable
		if classify.IsValidation(err) {
			outcome = OutcomeValidation
		}
		s.metrics.ObserveClassification(outcome, elapsed)
		s.logger.Info("Classification failed, offering manual draft", "outcome", outcome, "error", err)
		return manual, err
	}

	s.metrics.ObserveClassification(OutcomeOK, elapsed)
	s.logger.Debug("Entry classified",
		"type", res.Type,
		"category", res.Category,
		"model", res.Model,
		"duration", elapsed)
	return res.Draft(entry), nil
}

// Accept persists a reviewed draft.
func (s *Service) Accept(ctx context.Context, d tasks.Draft) (*tasks.Task, error) {
	t, err := s.gateway.Create(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("accept task: %w", err)
	}
	if s.store != nil {
		s.store.Insert(*t)
	}
	return t, nil
}

// Edit applies a partial update.
func (s *Service) Edit(ctx context.Context, id string, p tasks.Patch) (*tasks.Task, error) {
	t, err := s.gateway.Update(ctx, id, p)
	if err != nil {
		return nil, fmt.Errorf("edit task %s: %w", id, err)
	}
	if s.store != nil {
		s.store.Replace(*t)
	}
	return t, nil
}

// SetCompleted toggles completion. updated_at moves with it.
func (s *Service) SetCompleted(ctx context.Context, id string, completed bool) (*tasks.Task, error) {
	return s.Edit(ctx, id, tasks.Patch{Completed: &completed})
}

// LogNow marks id completed as of now, recording the moment in due_date.
func (s *Service) LogNow(ctx context.Context, id string) (*tasks.Task, error) {
	done := true
	now := s.now().UTC()
	return s.Edit(ctx, id, tasks.Patch{Completed: &done, DueDate: &now})
}

// Delete removes id. A missing id returns storage.ErrNotFound; the local
// store drops it either way.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.gateway.Remove(ctx, id)
	if s.store != nil && (err == nil || errors.Is(err, storage.ErrNotFound)) {
		s.store.Remove(id)
	}
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}
