// Package client is a typed HTTP client for the task journal API, used by the
// command-line tools.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/c360studio/taskjournal/aggregation"
	"github.com/c360studio/taskjournal/api"
	"github.com/c360studio/taskjournal/tasks"
	"github.com/c360studio/taskjournal/taskstore"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%d %s: %s (%s)", e.Status, http.StatusText(e.Status), e.Message, e.Details)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// Client talks to a running server.
type Client struct {
	r *resty.Client
}

// Option configures a Client.
type Option func(*resty.Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *resty.Client) {
		r.SetTimeout(d)
	}
}

// WithHTTPClient swaps the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *resty.Client) {
		r.SetTransport(hc.Transport)
		if hc.Timeout > 0 {
			r.SetTimeout(hc.Timeout)
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60*time.Second).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(r)
	}
	return &Client{r: r}
}

// ListQuery selects and orders the task list.
type ListQuery struct {
	Filter taskstore.Filter
	Sort   taskstore.Sort
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("q", q.Filter.Search)
	set("type", string(q.Filter.Type))
	set("category", string(q.Filter.Category))
	set("subcategory", string(q.Filter.Subcategory))
	set("who", q.Filter.Who)
	if q.Filter.ShowCompleted {
		v.Set("completed", "show")
	}
	set("sort", string(q.Sort.Key))
	if q.Sort.Key != taskstore.SortNone {
		set("dir", string(q.Sort.Direction))
	}
	return v
}

// Analyze classifies an entry without saving it.
func (c *Client) Analyze(ctx context.Context, entry string, due *time.Time) (*api.AnalyzeResponse, error) {
	req := api.AnalyzeRequest{Entry: entry}
	if due != nil {
		s := due.Format(time.RFC3339)
		req.DueDate = &s
	}
	var out api.AnalyzeResponse
	if err := c.do(ctx, http.MethodPost, "/api/analyze-task", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create saves a draft.
func (c *Client) Create(ctx context.Context, d tasks.Draft) (*tasks.Task, error) {
	var out tasks.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", d, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one task.
func (c *Client) Get(ctx context.Context, id string) (*tasks.Task, error) {
	var out tasks.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the filtered, sorted task list.
func (c *Client) List(ctx context.Context, q ListQuery) (*api.TaskList, error) {
	var out api.TaskList
	path := "/api/tasks"
	if enc := q.values().Encode(); enc != "" {
		path += "?" + enc
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update applies a partial edit.
func (c *Client) Update(ctx context.Context, id string, p tasks.Patch) (*tasks.Task, error) {
	var out tasks.Task
	if err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetCompleted toggles completion.
func (c *Client) SetCompleted(ctx context.Context, id string, completed bool) (*tasks.Task, error) {
	var out tasks.Task
	path := "/api/tasks/" + url.PathEscape(id) + "/complete"
	if err := c.do(ctx, http.MethodPost, path, api.CompleteRequest{Completed: completed}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LogNow marks a task completed as of now.
func (c *Client) LogNow(ctx context.Context, id string) (*tasks.Task, error) {
	var out tasks.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/log-now", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a task.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

// Options returns the distinct filter values present in the data.
func (c *Client) Options(ctx context.Context) (*taskstore.Options, error) {
	var out taskstore.Options
	if err := c.do(ctx, http.MethodGet, "/api/tasks/options", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns the dashboard. tz may be empty for the server default.
func (c *Client) Stats(ctx context.Context, tz string) (*aggregation.Dashboard, error) {
	var out aggregation.Dashboard
	path := "/api/stats"
	if tz != "" {
		path += "?" + url.Values{"tz": {tz}}.Encode()
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks the server's database connectivity.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var apiErr api.ErrorResponse
	req := c.r.R().SetContext(ctx).SetError(&apiErr)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		return &APIError{Status: resp.StatusCode(), Message: msg, Details: apiErr.Details}
	}
	return nil
}
