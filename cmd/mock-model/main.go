// Package main implements mock-model, an offline stand-in for the hosted
// model endpoints the workflow generator calls. It answers OpenAI
// chat-completions and Anthropic messages requests from JSON fixture files
// keyed by model name and falls back to a built-in codegen contract when no
// fixture matches, so a bare invocation is enough to run forge without API
// keys:
//
//	mock-model -port 8081
//
// pointed at from the forge config:
//
//	models:
//	  endpoints:
//	    claude-sonnet:
//	      provider: anthropic
//	      url: http://localhost:8081
//	      model: mock-codegen
//
// Fixture files are named by model: mock-codegen.json holds the assistant
// reply for model "mock-codegen". Numbered variants (mock-codegen.1.json,
// mock-codegen.2.json) are served in order per model, the unnumbered file
// repeating once the sequence is spent. A broken contract first and a clean
// one second exercises the generation retry loop end to end.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Wire mirrors for the two codecs the forge providers speak. Only the
// fields the client reads are populated.

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
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

type messagesRequest struct {
	Model    string         `json:"model"`
	System   string         `json:"system,omitempty"`
	Messages []messagesTurn `json:"messages"`
}

type messagesTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Content    []messagesBlock `json:"content"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason"`
	Usage      messagesUsage   `json:"usage"`
}

type messagesBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type server struct {
	fixtures map[string][]string
	logger   *slog.Logger

	mu    sync.Mutex
	total int
	calls map[string]int
}

func newServer(fixtures map[string][]string, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		fixtures: fixtures,
		logger:   logger,
		calls:    make(map[string]int),
	}
}

// next picks the reply for a model call: the Nth fixture of the model's
// sequence on its Nth call, the last fixture once the sequence is spent,
// the built-in contract when the model has no fixtures at all.
func (s *server) next(model string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.calls[model]
	s.calls[model]++
	s.total++

	seq, ok := s.fixtures[model]
	if !ok {
		seq = s.fixtures[strings.TrimPrefix(model, "mock-")]
	}
	if len(seq) == 0 {
		return fallbackContract
	}
	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	return seq[idx]
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	// Both spellings: endpoint URLs with and without the /v1 segment.
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/messages", s.handleMessages)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}

	content := s.next(req.Model)
	s.logger.Info("chat completion served",
		"model", req.Model,
		"messages", len(req.Messages),
		"bytes", len(content))

	prompt := 0
	for _, m := range req.Messages {
		prompt += len(m.Content) / 4
	}
	writeJSON(w, chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     prompt,
			CompletionTokens: len(content) / 4,
			TotalTokens:      prompt + len(content)/4,
		},
	})
}

func (s *server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req messagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}

	content := s.next(req.Model)
	s.logger.Info("messages reply served",
		"model", req.Model,
		"messages", len(req.Messages),
		"bytes", len(content))

	input := len(req.System) / 4
	for _, m := range req.Messages {
		input += len(m.Content) / 4
	}
	writeJSON(w, messagesResponse{
		ID:         fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Type:       "message",
		Role:       "assistant",
		Content:    []messagesBlock{{Type: "text", Text: content}},
		Model:      req.Model,
		StopReason: "end_turn",
		Usage: messagesUsage{
			InputTokens:  input,
			OutputTokens: len(content) / 4,
		},
	})
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	byModel := make(map[string]int, len(s.calls))
	for model, n := range s.calls {
		byModel[model] = n
	}
	total := s.total
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"total_calls":    total,
		"calls_by_model": byModel,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

var numberedFile = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads <model>.json and <model>.N.json files from dir into
// ordered per-model reply sequences: numbered files first in numeric order,
// the unnumbered file last. A missing directory is not an error; the
// built-in contract then covers every model.
func loadFixtures(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fixture dir: %w", err)
	}

	base := make(map[string]string)
	numbered := make(map[string]map[int]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read fixture %s: %w", name, err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("fixture %s is not valid JSON", name)
		}
		if m := numberedFile.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[2])
			if numbered[m[1]] == nil {
				numbered[m[1]] = make(map[int]string)
			}
			numbered[m[1]][n] = string(data)
			continue
		}
		base[strings.TrimSuffix(name, ".json")] = string(data)
	}

	fixtures := make(map[string][]string)
	for model, byIndex := range numbered {
		indices := make([]int, 0, len(byIndex))
		for n := range byIndex {
			indices = append(indices, n)
		}
		sort.Ints(indices)
		for _, n := range indices {
			fixtures[model] = append(fixtures[model], byIndex[n])
		}
	}
	for model, content := range base {
		fixtures[model] = append(fixtures[model], content)
	}
	return fixtures, nil
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory of canned model replies (optional)")
	port := flag.Int("port", 8081, "port to listen on")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *fixtureDir == "" {
		*fixtureDir = os.Getenv("MOCK_MODEL_FIXTURES")
	}
	fixtures := map[string][]string{}
	if *fixtureDir != "" {
		var err error
		fixtures, err = loadFixtures(*fixtureDir)
		if err != nil {
			logger.Error("load fixtures failed", "dir", *fixtureDir, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("fixtures loaded", "models", len(fixtures), "dir", *fixtureDir)
	for model, seq := range fixtures {
		logger.Info("fixture model", "model", model, "replies", len(seq))
	}

	s := newServer(fixtures, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("mock-model listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("serve failed", "error", err)
		os.Exit(1)
	}
}
