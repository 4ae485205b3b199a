package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360studio/taskjournal/aggregation"
	"github.com/c360studio/taskjournal/storage"
	"github.com/c360studio/taskjournal/tasks"
	"github.com/c360studio/taskjournal/taskstore"
	"github.com/c360studio/taskjournal/taxonomy"
)

// TaskList is the body of GET /api/tasks.
type TaskList struct {
	Tasks     []tasks.Task     `json:"tasks"`
	Total     int              `json:"total"`
	Visible   int              `json:"visible"`
	Filter    taskstore.Filter `json:"filter"`
	Sort      taskstore.Sort   `json:"sort"`
	Completed int              `json:"completed"`
}

// CompleteRequest is the body of POST /api/tasks/{id}/complete.
type CompleteRequest struct {
	Completed bool `json:"completed"`
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter, err := parseFilter(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err.Error())
		return
	}
	key, err := taskstore.ParseSortKey(q.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sort", err.Error())
		return
	}
	dir, err := taskstore.ParseDirection(q.Get("dir"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sort", err.Error())
		return
	}
	sort := taskstore.Sort{Key: key, Direction: dir}

	all, err := h.collection(r.Context())
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}

	view := taskstore.Apply(all, filter, sort)
	completed := 0
	for i := range all {
		if all[i].Completed {
			completed++
		}
	}
	writeJSON(w, http.StatusOK, TaskList{
		Tasks:     view,
		Total:     len(all),
		Visible:   len(view),
		Filter:    filter,
		Sort:      sort,
		Completed: completed,
	})
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	all, err := h.collection(r.Context())
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskstore.OptionsOf(all))
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var d tasks.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body", err.Error())
		return
	}
	if d.Type == "" {
		d.Type = taxonomy.DefaultType
	}
	if d.Category == "" {
		d.Category = taxonomy.DefaultCategory
	}

	t, err := h.journal.Accept(r.Context(), d)
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handlePatchTask(w http.ResponseWriter, r *http.Request) {
	var p tasks.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body", err.Error())
		return
	}
	if p.IsEmpty() {
		writeError(w, http.StatusBadRequest, "No fields to update", "")
		return
	}

	t, err := h.journal.Edit(r.Context(), r.PathValue("id"), p)
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.journal.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeActionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body", err.Error())
		return
	}

	t, err := h.journal.SetCompleted(r.Context(), r.PathValue("id"), req.Completed)
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleLogNow(w http.ResponseWriter, r *http.Request) {
	t, err := h.journal.LogNow(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := aggregation.Options{Location: h.location}
	if tz := q.Get("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid tz", err.Error())
			return
		}
		opts.Location = loc
	}
	if v := q.Get("type"); v != "" {
		typ, err := taxonomy.ParseType(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid type", err.Error())
			return
		}
		opts.RateType = typ
	}
	if v := q.Get("category"); v != "" {
		cat, err := taxonomy.ParseCategory(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid category", err.Error())
			return
		}
		opts.Scope.Category = cat
	}
	if v := q.Get("subcategory"); v != "" {
		sub, err := taxonomy.ParseSubcategory(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid subcategory", err.Error())
			return
		}
		opts.Scope.Subcategory = sub
	}

	all, err := h.collection(r.Context())
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, aggregation.Build(all, opts))
}

// collection returns the full task set, from the working set when one is
// attached and from the database otherwise.
func (h *Handler) collection(ctx context.Context) ([]tasks.Task, error) {
	if h.working != nil {
		return h.working.All(), nil
	}
	return h.store.List(ctx, storage.OrderCreatedDesc)
}

func parseFilter(q url.Values) (taskstore.Filter, error) {
	f := taskstore.Filter{
		Search: q.Get("q"),
		Who:    q.Get("who"),
	}
	if strings.EqualFold(f.Who, "all") {
		f.Who = ""
	}
	if v := q.Get("type"); v != "" && !strings.EqualFold(v, "all") {
		typ, err := taxonomy.ParseType(v)
		if err != nil {
			return f, err
		}
		f.Type = typ
	}
	if v := q.Get("category"); v != "" && !strings.EqualFold(v, "all") {
		cat, err := taxonomy.ParseCategory(v)
		if err != nil {
			return f, err
		}
		f.Category = cat
	}
	if v := q.Get("subcategory"); v != "" && !strings.EqualFold(v, "all") {
		sub, err := taxonomy.ParseSubcategory(v)
		if err != nil {
			return f, err
		}
		f.Subcategory = sub
	}
	switch strings.ToLower(q.Get("completed")) {
	case "show", "true", "1", "yes":
		f.ShowCompleted = true
	}
	return f, nil
}
