package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/IshaanNene/ShopSense/internal/config"
	"github.com/IshaanNene/ShopSense/internal/types"
)

const (
	classifySystemPrompt = "You are a helpful product classification assistant."
	reportSystemPrompt   = "You are a helpful assistant that generates well-formatted product summaries and recommendations."
)

// classificationSchema is the reply shape the classifier is asked for.
type classificationSchema struct {
	ProductClassifier string   `json:"product_classifier" jsonschema:"enum=Electronics,enum=Clothes,enum=Food,enum=Other,description=Product category"`
	RelevantItems     []string `json:"relevant_items" jsonschema:"maxItems=5,description=Names of related products"`
}

var (
	schemaOnce sync.Once
	schemaMap  map[string]any
)

// ClassificationSchema returns the JSON schema for classifier replies.
func ClassificationSchema() map[string]any {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		raw, err := json.Marshal(reflector.Reflect(&classificationSchema{}))
		if err != nil {
			return
		}
		_ = json.Unmarshal(raw, &schemaMap)
		delete(schemaMap, "$schema")
		delete(schemaMap, "$id")
	})
	return schemaMap
}

// Client runs the three LLM tasks of an analysis.
type Client struct {
	provider Provider
	cfg      config.LLMConfig
	logger   *slog.Logger
}

// NewClient wraps provider.
func NewClient(provider Provider, cfg config.LLMConfig, logger *slog.Logger) *Client {
	return &Client{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With("component", "llm", "provider", provider.Name(), "model", provider.Model()),
	}
}

// Classify asks for a product category and related items. Unparseable
// replies and provider errors come back as a Classification carrying an
// error marker. The error is non-nil only on timeout or cancellation.
func (c *Client) Classify(ctx context.Context, prompt string) (types.Classification, error) {
	content, err := c.complete(ctx, "classify", Request{
		Messages: []Message{
			{Role: RoleSystem, Content: classifySystemPrompt},
			{Role: RoleUser, Content: prompt},
		},
		MaxTokens:   c.cfg.ClassifyMaxTokens,
		Temperature: 0,
		JSONSchema:  ClassificationSchema(),
	})
	if err != nil {
		if fatal(ctx, err) {
			return types.Classification{}, err
		}
		return types.Classification{Error: err.Error()}, nil
	}

	result, perr := ParseClassification(content)
	if perr != nil {
		c.logger.Warn("failed to decode JSON from LLM response", "error", perr, "response", truncate(content, 200))
		return types.Classification{Error: types.ClassificationError}, nil
	}
	return result, nil
}

// Report writes the markdown report.
func (c *Client) Report(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, "report", Request{
		Messages: []Message{
			{Role: RoleSystem, Content: reportSystemPrompt},
			{Role: RoleUser, Content: prompt},
		},
		MaxTokens:   c.cfg.ReportMaxTokens,
		Temperature: 0,
	})
}

// Chat answers a follow-up question.
func (c *Client) Chat(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, "chat", Request{
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   c.cfg.ChatMaxTokens,
		Temperature: c.cfg.ChatTemperature,
	})
}

// complete runs one request under llm.timeout and returns trimmed text.
func (c *Client) complete(ctx context.Context, task string, req Request) (string, error) {
	callCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.provider.Complete(callCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", types.ErrLLMTimeout, c.cfg.Timeout)
		}
		c.logger.Error("LLM call failed", "task", task, "error", err, "duration", time.Since(start))
		return "", &types.LLMError{Provider: c.provider.Name(), Err: err}
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		c.logger.Warn("LLM returned an empty response", "task", task)
		return "", &types.LLMError{Provider: c.provider.Name(), Err: types.ErrEmptyResponse}
	}
	c.logger.Info("LLM call complete",
		"task", task,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"duration", time.Since(start),
	)
	c.logger.Debug("LLM response", "task", task, "content", text)
	return text, nil
}

// fatal reports whether err must stop the run instead of degrading.
func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, types.ErrLLMTimeout) || ctx.Err() != nil
}

// errNoClassifier is returned for replies without a string product_classifier.
var errNoClassifier = errors.New("product_classifier missing or not a string")

// ParseClassification decodes a classifier reply, falling back to the
// first balanced JSON object embedded in surrounding prose.
func ParseClassification(content string) (types.Classification, error) {
	var raw struct {
		ProductClassifier any `json:"product_classifier"`
		RelevantItems     any `json:"relevant_items"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		obj, ok := extractJSON(content)
		if !ok {
			return types.Classification{}, err
		}
		if err := json.Unmarshal([]byte(obj), &raw); err != nil {
			return types.Classification{}, err
		}
	}

	label, ok := raw.ProductClassifier.(string)
	if !ok {
		return types.Classification{}, errNoClassifier
	}
	out := types.Classification{ProductClassifier: strings.TrimSpace(label)}
	// A non-list relevant_items is treated as no items.
	if items, ok := raw.RelevantItems.([]any); ok {
		for _, it := range items {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				out.RelevantItems = append(out.RelevantItems, strings.TrimSpace(s))
			}
		}
	}
	if len(out.RelevantItems) > 5 {
		out.RelevantItems = out.RelevantItems[:5]
	}
	return out, nil
}

// extractJSON finds the first balanced JSON object in s.
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ErrorMarkdown renders err as the inline text shown in place of a report
// or answer.
func ErrorMarkdown(err error) string {
	var le *types.LLMError
	if errors.As(err, &le) {
		err = le.Err
	}
	return "**Error:** " + err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
