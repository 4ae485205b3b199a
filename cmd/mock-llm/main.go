// Package main implements a mock classification model for local development
// and integration tests. It serves OpenAI-compatible /v1/chat/completions
// responses chosen by matching the journal entry against fixture rules, so
// the server can run without a real model.
//
// Usage:
//
//	mock-llm -fixtures fixtures.yaml -port 11434
//
// The fixture file is YAML:
//
//	rules:
//	  - match: boat
//	    answer:
//	      name: Call John
//	      type: Follow up
//	      category: My asks
//	      subcategory: Boat
//	      who: John
//	  - match: garbled
//	    raw: "not json at all"
//	default:
//	  answer: {name: Untitled Task, type: Focus, category: Task}
//
// Rules are tried in order; the first whose match occurs in the entry text
// (case-insensitive) wins. A rule may carry a structured answer, which is
// encoded as JSON, or raw content returned verbatim for testing malformed
// model output.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Fixtures ---

// answer is a classification as the real model would emit it.
type answer struct {
	Name        string  `yaml:"name" json:"name"`
	Type        string  `yaml:"type" json:"type"`
	Category    string  `yaml:"category" json:"category"`
	Subcategory *string `yaml:"subcategory" json:"subcategory"`
	Who         string  `yaml:"who" json:"who"`
	DueDate     *string `yaml:"due_date" json:"due_date"`
}

type rule struct {
	Match  string  `yaml:"match"`
	Answer *answer `yaml:"answer"`
	Raw    string  `yaml:"raw"`
	// Status, when set, makes the rule fail with that HTTP status.
	Status int `yaml:"status"`
}

type fixtureSet struct {
	Rules   []rule `yaml:"rules"`
	Default *rule  `yaml:"default"`
}

// content renders the assistant message for r.
func (r *rule) content() (string, error) {
	if r.Answer == nil {
		return r.Raw, nil
	}
	data, err := json.Marshal(r.Answer)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// find returns the first rule matching entry, then the default.
func (f *fixtureSet) find(entry string) (*rule, int) {
	lower := strings.ToLower(entry)
	for i := range f.Rules {
		if strings.Contains(lower, strings.ToLower(f.Rules[i].Match)) {
			return &f.Rules[i], i
		}
	}
	return f.Default, -1
}

// loadFixtures reads and checks a fixture file.
func loadFixtures(path string) (*fixtureSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var f fixtureSet
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	for i, r := range f.Rules {
		if strings.TrimSpace(r.Match) == "" {
			return nil, fmt.Errorf("rule %d: match is required", i)
		}
		if r.Answer == nil && r.Raw == "" && r.Status == 0 {
			return nil, fmt.Errorf("rule %d (%q): one of answer, raw or status is required", i, r.Match)
		}
	}
	if len(f.Rules) == 0 && f.Default == nil {
		return nil, errors.New("no rules and no default in fixtures")
	}
	return &f, nil
}

// --- Server ---

// capturedRequest stores the key fields of an incoming request for test
// verification.
type capturedRequest struct {
	Model     string `json:"model"`
	Entry     string `json:"entry"`
	Rule      int    `json:"rule"` // -1 for the default
	Timestamp int64  `json:"timestamp"`
}

type server struct {
	fixtures *fixtureSet
	logger   *slog.Logger
	calls    atomic.Int64

	mu       sync.Mutex
	requests []capturedRequest
}

func newServer(fixtures *fixtureSet, logger *slog.Logger) *server {
	return &server{fixtures: fixtures, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /requests", s.handleRequests)
	return mux
}

func main() {
	fixturePath := flag.String("fixtures", "", "YAML fixture file")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if env := os.Getenv("MOCK_LLM_FIXTURES"); env != "" && *fixturePath == "" {
		*fixturePath = env
	}
	if *fixturePath == "" {
		*fixturePath = "/fixtures/classification.yaml"
	}

	fixtures, err := loadFixtures(*fixturePath)
	if err != nil {
		logger.Error("Failed to load fixtures", "path", *fixturePath, "error", err)
		os.Exit(1)
	}
	logger.Info("Loaded fixtures", "path", *fixturePath, "rules", len(fixtures.Rules), "default", fixtures.Default != nil)

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("Mock LLM server listening", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: newServer(fixtures, logger).routes(), ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// lastUserMessage is the entry text: the final user turn.
func lastUserMessage(msgs []chatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	entry := lastUserMessage(req.Messages)
	rule, idx := s.fixtures.find(entry)

	s.mu.Lock()
	s.requests = append(s.requests, capturedRequest{
		Model:     req.Model,
		Entry:     entry,
		Rule:      idx,
		Timestamp: time.Now().UnixMilli(),
	})
	s.mu.Unlock()

	if rule == nil {
		s.logger.Warn("No fixture matched", "call", callNum, "entry", entry)
		http.Error(w, "no fixture matched", http.StatusNotFound)
		return
	}
	if rule.Status != 0 {
		http.Error(w, http.StatusText(rule.Status), rule.Status)
		return
	}
	content, err := rule.content()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.Debug("Answered", "call", callNum, "model", req.Model, "rule", idx)
	writeJSON(w, chatResponse{
		ID:      fmt.Sprintf("mock-%d", callNum),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     len(entry) / 4, // rough estimate
			CompletionTokens: len(content) / 4,
			TotalTokens:      (len(entry) + len(content)) / 4,
		},
	})
}

// handleModels lists one model so Ollama-style probes succeed.
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"object": "list",
		"data": []map[string]string{
			{"id": "mock-classifier", "object": "model", "owned_by": "mock-llm"},
		},
	})
}

// handleStats returns call counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	byRule := make(map[string]int)
	for _, req := range s.requests {
		byRule[strconv.Itoa(req.Rule)]++
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"total_calls":   s.calls.Load(),
		"calls_by_rule": byRule,
	})
}

// handleRequests returns captured requests. The optional contains query
// parameter filters by entry text.
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	filter := strings.ToLower(r.URL.Query().Get("contains"))

	s.mu.Lock()
	out := make([]capturedRequest, 0, len(s.requests))
	for _, req := range s.requests {
		if filter == "" || strings.Contains(strings.ToLower(req.Entry), filter) {
			out = append(out, req)
		}
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"requests": out})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
