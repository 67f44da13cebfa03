package ai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/IshaanNene/ShopSense/internal/config"
	"github.com/IshaanNene/ShopSense/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeProvider returns canned replies and records requests.
type fakeProvider struct {
	reply    string
	err      error
	block    bool
	requests []Request
}

func (f *fakeProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	f.requests = append(f.requests, req)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Content: f.reply, Model: "fake-1"}, nil
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-1" }

func newTestClient(p Provider) *Client {
	return NewClient(p, config.DefaultConfig().LLM, testLogger)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantLabel string
		wantItems int
		wantError string
	}{
		{
			name:      "strict json",
			reply:     `{"product_classifier":"Electronics","relevant_items":["A","B","C","D","E","F"]}`,
			wantLabel: "Electronics",
			wantItems: 5,
		},
		{
			name:      "json in prose",
			reply:     "Sure! Here you go:\n{\"product_classifier\": \"Food\", \"relevant_items\": [\"Oats {rolled}\"]}\nHope that helps.",
			wantLabel: "Food",
			wantItems: 1,
		},
		{
			name:      "relevant items not a list",
			reply:     `{"product_classifier":"Clothes","relevant_items":"Shoes"}`,
			wantLabel: "Clothes",
		},
		{
			name:      "malformed",
			reply:     "I think this is electronics.",
			wantError: types.ClassificationError,
		},
		{
			name:      "null",
			reply:     "null",
			wantError: types.ClassificationError,
		},
		{
			name:      "empty object",
			reply:     "{}",
			wantError: types.ClassificationError,
		},
		{
			name:      "unrelated object",
			reply:     `{"foo": 1}`,
			wantError: types.ClassificationError,
		},
		{
			name:      "classifier not a string",
			reply:     `{"product_classifier": 7, "relevant_items": ["A"]}`,
			wantError: types.ClassificationError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{reply: tt.reply}
			got, err := newTestClient(p).Classify(context.Background(), "prompt")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got.Error != tt.wantError {
				t.Errorf("error = %q, want %q", got.Error, tt.wantError)
			}
			if got.ProductClassifier != tt.wantLabel || len(got.RelevantItems) != tt.wantItems {
				t.Errorf("classification = %+v", got)
			}
		})
	}
}

func TestClassifyRequestShape(t *testing.T) {
	p := &fakeProvider{reply: `{"product_classifier":"Electronics","relevant_items":[]}`}
	if _, err := newTestClient(p).Classify(context.Background(), "classify this"); err != nil {
		t.Fatal(err)
	}
	req := p.requests[0]
	if req.Temperature != 0 || req.MaxTokens != 1024 {
		t.Errorf("temperature=%v max_tokens=%d", req.Temperature, req.MaxTokens)
	}
	if len(req.Messages) != 2 || req.Messages[0].Content != "You are a helpful product classification assistant." {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.JSONSchema == nil {
		t.Fatal("classification request must carry a schema")
	}
	props, _ := req.JSONSchema["properties"].(map[string]any)
	if _, ok := props["product_classifier"]; !ok {
		t.Errorf("schema properties = %v", props)
	}
}

func TestClassifyProviderError(t *testing.T) {
	p := &fakeProvider{err: errors.New("invalid api key")}
	got, err := newTestClient(p).Classify(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("provider errors must degrade, got %v", err)
	}
	if !strings.Contains(got.Error, "invalid api key") || got.Category() != "" {
		t.Errorf("classification = %+v", got)
	}
}

func TestClassifyTimeout(t *testing.T) {
	cfg := config.DefaultConfig().LLM
	cfg.Timeout = 20 * time.Millisecond
	c := NewClient(&fakeProvider{block: true}, cfg, testLogger)

	_, err := c.Classify(context.Background(), "prompt")
	if !errors.Is(err, types.ErrLLMTimeout) {
		t.Fatalf("expected ErrLLMTimeout, got %v", err)
	}
}

func TestReportAndChatRequests(t *testing.T) {
	p := &fakeProvider{reply: "  ## Report\n"}
	c := newTestClient(p)

	report, err := c.Report(context.Background(), "report prompt")
	if err != nil || report != "## Report" {
		t.Fatalf("Report = %q, %v", report, err)
	}
	if _, err := c.Chat(context.Background(), "chat prompt"); err != nil {
		t.Fatal(err)
	}

	rep, chat := p.requests[0], p.requests[1]
	if rep.Temperature != 0 || rep.MaxTokens != 4096 || rep.Messages[0].Role != RoleSystem {
		t.Errorf("report request = %+v", rep)
	}
	if chat.Temperature != 0.7 || chat.MaxTokens != 4096 || len(chat.Messages) != 1 || chat.Messages[0].Role != RoleUser {
		t.Errorf("chat request = %+v", chat)
	}
}

func TestEmptyResponseIsError(t *testing.T) {
	_, err := newTestClient(&fakeProvider{reply: "   "}).Report(context.Background(), "p")
	if !errors.Is(err, types.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestErrorMarkdown(t *testing.T) {
	err := &types.LLMError{Provider: "groq", Err: errors.New("rate limit reached")}
	if got := ErrorMarkdown(err); got != "**Error:** rate limit reached" {
		t.Errorf("ErrorMarkdown = %q", got)
	}
}

func TestOllamaProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Stream || len(req.Messages) != 2 || req.Format == nil {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "llama3",
			"message": map[string]string{"role": "assistant", "content": `{"product_classifier":"Food","relevant_items":[]}`},
		})
	}))
	defer server.Close()

	cfg := config.DefaultConfig().LLM
	cfg.Provider = "ollama"
	cfg.BaseURL = server.URL
	p, err := NewProvider(cfg)
	if err != nil {
		t.Fatal(err)
	}

	got, err := newTestClient(p).Classify(context.Background(), "prompt")
	if err != nil || got.ProductClassifier != "Food" {
		t.Errorf("Classify = %+v, %v", got, err)
	}
}

func TestNewProvider(t *testing.T) {
	cfg := config.DefaultConfig().LLM

	if _, err := NewProvider(cfg); err == nil {
		t.Error("groq without an API key should fail")
	}

	cfg.APIKey = "gsk_test"
	p, err := NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "groq" || p.Model() != "llama3-8b-8192" {
		t.Errorf("provider = %s/%s", p.Name(), p.Model())
	}

	cfg.Provider = "anthropic"
	if p, err := NewProvider(cfg); err != nil || p.Name() != "anthropic" {
		t.Errorf("anthropic provider = %v, %v", p, err)
	}

	cfg.Provider = "mystery"
	if _, err := NewProvider(cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}
