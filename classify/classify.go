// Package classify turns a free-text journal entry into a structured task
// draft by asking a language model and validating its answer against the
// taxonomy.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/taskjournal/llm"
	"github.com/c360studio/taskjournal/model"
	"github.com/c360studio/taskjournal/tasks"
	"github.com/c360studio/taskjournal/taxonomy"
)

// Completer is the slice of the LLM client the service needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Config tunes the classification request.
type Config struct {
	// Capability is the model registry capability to resolve.
	Capability string `yaml:"capability" env:"CAPABILITY"`
	// Temperature passed to the model.
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// MaxTokens caps the response length.
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// DefaultTime is the time of day used for dates given without one,
	// DefaultTimeNoon or DefaultTimeEndOfDay.
	DefaultTime string `yaml:"default_time" env:"DEFAULT_TIME"`
	// Timezone names the location zone-less due dates are read in.
	// Empty means the process local zone.
	Timezone string `yaml:"timezone" env:"TIMEZONE"`
}

// DefaultConfig returns the settings the service ships with.
func DefaultConfig() Config {
	return Config{
		Capability:  string(model.CapabilityClassification),
		Temperature: 0.7,
		MaxTokens:   500,
		DefaultTime: DefaultTimeEndOfDay,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Capability == "" {
		return errors.New("capability is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0,2]", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	if c.DefaultTime != DefaultTimeNoon && c.DefaultTime != DefaultTimeEndOfDay {
		return fmt.Errorf("default_time must be %s or %s, got %q", DefaultTimeNoon, DefaultTimeEndOfDay, c.DefaultTime)
	}
	if _, err := c.location(); err != nil {
		return err
	}
	return nil
}

func (c Config) location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Hint carries values the user supplied alongside the entry.
type Hint struct {
	DueDate *time.Time
}

// Result is a validated classification.
type Result struct {
	Name        string                `json:"name"`
	Type        taxonomy.Type         `json:"type"`
	Category    taxonomy.Category     `json:"category"`
	Subcategory *taxonomy.Subcategory `json:"subcategory"`
	Who         string                `json:"who"`
	DueDate     *time.Time            `json:"due_date"`

	// Model is the model that produced the answer.
	Model string `json:"-"`
}

// Draft converts the result into a creatable task for entry.
func (r *Result) Draft(entry string) tasks.Draft {
	d := tasks.Draft{
		Entry:    entry,
		Name:     r.Name,
		Type:     r.Type,
		Category: r.Category,
		Who:      r.Who,
	}
	if r.Subcategory != nil {
		s := *r.Subcategory
		d.Subcategory = &s
	}
	if r.DueDate != nil {
		t := *r.DueDate
		d.DueDate = &t
	}
	return d
}

// Service classifies journal entries.
type Service struct {
	llm         Completer
	cfg         Config
	loc         *time.Location
	defaultTime clockTime
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the reference clock used for relative dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a classification service. The config is validated.
func NewService(client Completer, cfg Config, opts ...Option) (*Service, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("classification config: %w", err)
	}

	loc, _ := cfg.location()
	def, _ := parseClockTime(cfg.DefaultTime)

	s := &Service{
		llm:         client,
		cfg:         cfg,
		loc:         loc,
		defaultTime: def,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Location returns the zone used for relative and zone-less dates.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Classify asks the model to classify entry. It never retries; every failure
// is a *Error.
func (s *Service) Classify(ctx context.Context, entry string, hint *Hint) (*Result, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, &Error{Kind: KindInvalidRequest, Field: "entry", Err: errors.New("entry text is required")}
	}

	now := s.now().In(s.loc)
	temp := s.cfg.Temperature

	resp, err := s.llm.Complete(ctx, llm.Request{
		Capability: s.cfg.Capability,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt(now, s.cfg.DefaultTime)},
			{Role: "user", Content: userPrompt(entry, hint)},
		},
		Temperature: &temp,
		MaxTokens:   s.cfg.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, &Error{Kind: KindServiceUnavailable, Err: err}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, &Error{Kind: KindEmptyResponse, Err: errors.New("model returned no content")}
	}

	result, err := s.parse(resp.Content)
	if err != nil {
		s.logger.Debug("Rejected classification", "model", resp.Model, "error", err)
		return nil, err
	}
	result.Model = resp.Model

	if result.DueDate == nil && hint != nil && hint.DueDate != nil {
		d := *hint.DueDate
		result.DueDate = &d
	}

	return result, nil
}

// rawResult is the model's answer before validation. Optional fields are kept
// raw so a value of the wrong JSON type falls back to its default instead of
// failing the whole answer.
type rawResult struct {
	Name        json.RawMessage `json:"name"`
	Type        *string         `json:"type"`
	Category    *string         `json:"category"`
	Subcategory *string         `json:"subcategory"`
	Who         json.RawMessage `json:"who"`
	DueDate     json.RawMessage `json:"due_date"`
}

// optionalString returns the JSON string held by raw. Absent, null and
// non-string values yield "".
func (s *Service) optionalString(field string, raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.Debug("Ignoring non-string field", "field", field, "value", string(raw))
		return ""
	}
	return v
}

func (s *Service) parse(content string) (*Result, error) {
	body := llm.ExtractJSON(content)
	if body == "" {
		return nil, &Error{Kind: KindMalformedResponse, Err: errors.New("no JSON object in model output")}
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Err: err}
	}

	if raw.Type == nil || strings.TrimSpace(*raw.Type) == "" {
		return nil, &Error{Kind: KindMissingField, Field: string(taxonomy.KindType)}
	}
	typ, err := taxonomy.ParseType(strings.TrimSpace(*raw.Type))
	if err != nil {
		return nil, enumError(err)
	}

	if raw.Category == nil || strings.TrimSpace(*raw.Category) == "" {
		return nil, &Error{Kind: KindMissingField, Field: string(taxonomy.KindCategory)}
	}
	cat, err := taxonomy.ParseCategory(strings.TrimSpace(*raw.Category))
	if err != nil {
		return nil, enumError(err)
	}

	result := &Result{
		Name:     strings.TrimSpace(s.optionalString("name", raw.Name)),
		Type:     typ,
		Category: cat,
		Who:      strings.TrimSpace(s.optionalString("who", raw.Who)),
	}
	if result.Name == "" {
		result.Name = tasks.DefaultName
	}

	if raw.Subcategory != nil && strings.TrimSpace(*raw.Subcategory) != "" {
		sub, err := taxonomy.ParseSubcategory(strings.TrimSpace(*raw.Subcategory))
		if err != nil {
			return nil, enumError(err)
		}
		result.Subcategory = &sub
	}

	if due := s.optionalString("due_date", raw.DueDate); due != "" {
		if t, ok := parseDueDate(due, s.loc, s.defaultTime); ok {
			result.DueDate = &t
		} else {
			s.logger.Debug("Dropping unparseable due date", "due_date", due)
		}
	}

	return result, nil
}

func enumError(err error) error {
	var ee *taxonomy.EnumError
	if errors.As(err, &ee) {
		return &Error{Kind: KindInvalidEnumValue, Field: string(ee.Kind), Value: ee.Value, Err: err}
	}
	return &Error{Kind: KindMalformedResponse, Err: err}
}
