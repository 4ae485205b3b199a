package api

import (
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/c360studio/taskjournal/classify"
	"github.com/c360studio/taskjournal/taxonomy"
)

// AnalyzeRequest is the body of POST /api/analyze-task.
type AnalyzeRequest struct {
	Entry   string  `json:"entry"`
	DueDate *string `json:"due_date,omitempty"`
}

// AnalyzeResponse is a successful classification.
type AnalyzeResponse struct {
	Name        string                `json:"name"`
	Type        taxonomy.Type         `json:"type"`
	Category    taxonomy.Category     `json:"category"`
	Subcategory *taxonomy.Subcategory `json:"subcategory"`
	Who         string                `json:"who"`
	DueDate     *time.Time            `json:"due_date"`
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusBadRequest, "Content-Type must be application/json", "")
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "Too many requests", "")
		return
	}

	var req AnalyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Entry) == "" {
		writeError(w, http.StatusBadRequest, "Entry text is required", "")
		return
	}

	var hint *classify.Hint
	if req.DueDate != nil && strings.TrimSpace(*req.DueDate) != "" {
		due, err := iso8601.ParseString(strings.TrimSpace(*req.DueDate))
		if err != nil {
			writeError(w, http.StatusBadRequest, "due_date must be an ISO-8601 timestamp", err.Error())
			return
		}
		hint = &classify.Hint{DueDate: &due}
	}

	draft, err := h.journal.Analyze(r.Context(), req.Entry, hint)
	if err != nil {
		h.writeClassifyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Name:        draft.Name,
		Type:        draft.Type,
		Category:    draft.Category,
		Subcategory: draft.Subcategory,
		Who:         draft.Who,
		DueDate:     draft.DueDate,
	})
}

// writeClassifyError follows the classification endpoint contract: 400 for a
// bad request, 422 for an answer outside the taxonomy, 500 otherwise.
func (h *Handler) writeClassifyError(w http.ResponseWriter, err error) {
	ce, ok := classify.AsError(err)
	if !ok {
		h.logger.Error("Classification failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to analyze task", err.Error())
		return
	}

	switch ce.Kind {
	case classify.KindInvalidRequest:
		writeError(w, http.StatusBadRequest, "Entry text is required", "")
	case classify.KindMissingField, classify.KindInvalidEnumValue:
		writeError(w, http.StatusUnprocessableEntity, invalidFieldMessage(taxonomy.Kind(ce.Field)), ce.Error())
	case classify.KindMalformedResponse:
		writeError(w, http.StatusInternalServerError, "Invalid JSON response from model", ce.Error())
	default:
		h.logger.Warn("Classification unavailable", "kind", ce.Kind, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to analyze task", ce.Error())
	}
}

func invalidFieldMessage(kind taxonomy.Kind) string {
	labels := taxonomy.Labels(kind)
	if len(labels) == 0 {
		return fmt.Sprintf("Invalid %s", kind)
	}
	return fmt.Sprintf("Invalid %s. Must be one of: %s", kind, strings.Join(labels, ", "))
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
