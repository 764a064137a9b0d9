// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/kb-builder/internal/httputil"
	"github.com/pdiddy/kb-builder/internal/logging"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// backoffBase controls the base duration for exponential backoff between
// failed calls. Tests override this to avoid real sleeps.
var backoffBase = time.Second

const (
	defaultModel      = "claude-sonnet-4-5-20250929"
	defaultMaxTokens  = 8192
	defaultMaxRetries = 3
	defaultTimeout    = 5 * time.Minute
)

// ClaudeBackend implements Analyzer, Merger, Matcher and Describer over the
// Claude Messages API.
type ClaudeBackend struct {
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int
	Client     *http.Client

	// Limiter paces outgoing calls. Nil means unpaced.
	Limiter *rate.Limiter
	Log     *logging.Logger
}

// NewClaudeBackend builds a backend from cfg, filling defaults.
func NewClaudeBackend(cfg types.AIConfig, log *logging.Logger) *ClaudeBackend {
	c := &ClaudeBackend{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		MaxTokens:  cfg.MaxTokens,
		MaxRetries: cfg.MaxRetries,
		Log:        logging.OrNop(log),
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.Client = &http.Client{Timeout: timeout}
	if cfg.RequestsPerMinute > 0 {
		c.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

// claudeMessage is a single message in the Claude API conversation.
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

// claudeContent is a content block in the Claude API response.
type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Analyze implements Analyzer.
func (c *ClaudeBackend) Analyze(ctx context.Context, text, sourceName string, kctx *types.KnowledgeContext, instructions string) (*types.AnalysisResult, error) {
	data := struct {
		Source, Text, Instructions string
		People, Topics             []string
	}{Source: sourceName, Text: text, Instructions: instructions}
	if kctx != nil {
		data.People = kctx.ExistingPeople
		data.Topics = kctx.ExistingTopics
	}
	prompt, err := render(analysisPromptTmpl, data)
	if err != nil {
		return nil, fmt.Errorf("rendering analysis prompt: %w", err)
	}

	var result types.AnalysisResult
	if err := c.completeJSON(ctx, "analyze", prompt, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Merge implements Merger. A single result is returned unchanged.
func (c *ClaudeBackend) Merge(ctx context.Context, results []*types.AnalysisResult) (*types.AnalysisResult, error) {
	switch len(results) {
	case 0:
		return &types.AnalysisResult{}, nil
	case 1:
		return results[0], nil
	}
	payload, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("marshaling chunk results: %w", err)
	}
	prompt, err := render(mergePromptTmpl, struct{ Results string }{string(payload)})
	if err != nil {
		return nil, fmt.Errorf("rendering merge prompt: %w", err)
	}

	var merged types.AnalysisResult
	if err := c.completeJSON(ctx, "merge", prompt, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// matchItem is the wire form of a PendingItem.
type matchItem struct {
	ID     string   `json:"id"`
	Kind   string   `json:"kind"`
	Author string   `json:"author"`
	Area   string   `json:"area"`
	Topics []string `json:"topics,omitempty"`
	Text   string   `json:"text"`
}

// Match implements Matcher.
func (c *ClaudeBackend) Match(ctx context.Context, candidates []types.QuestionSummary, unlinked []types.PendingItem, instructions string) ([]types.Match, error) {
	items := make([]matchItem, len(unlinked))
	for i, p := range unlinked {
		e := p.Base()
		items[i] = matchItem{ID: e.ID, Kind: string(p.Kind()), Author: e.Author, Area: e.Area, Topics: e.Topics, Text: e.Text}
	}
	qJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("marshaling candidates: %w", err)
	}
	iJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshaling items: %w", err)
	}
	prompt, err := render(matchPromptTmpl, struct{ Questions, Items, Instructions string }{string(qJSON), string(iJSON), instructions})
	if err != nil {
		return nil, fmt.Errorf("rendering match prompt: %w", err)
	}

	var resp struct {
		Mappings []types.Match `json:"mappings"`
	}
	if err := c.completeJSON(ctx, "match", prompt, &resp); err != nil {
		return nil, err
	}
	return resp.Mappings, nil
}

// Describe implements Describer.
func (c *ClaudeBackend) Describe(ctx context.Context, kind DescriptionKind, id, content, instructions string) (string, error) {
	prompt, err := render(describePromptTmpl, struct {
		Kind                      DescriptionKind
		ID, Content, Instructions string
	}{kind, id, content, instructions})
	if err != nil {
		return "", fmt.Errorf("rendering describe prompt: %w", err)
	}
	text, err := c.completeWithRetry(ctx, "describe", prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *ClaudeBackend) completeJSON(ctx context.Context, op, prompt string, out any) error {
	return c.callWithRetry(ctx, op, prompt, func(text string) error {
		if err := json.Unmarshal([]byte(ExtractJSON(text)), out); err != nil {
			return fmt.Errorf("parsing AI response JSON: %w", err)
		}
		return nil
	})
}

func (c *ClaudeBackend) completeWithRetry(ctx context.Context, op, prompt string) (string, error) {
	var out string
	err := c.callWithRetry(ctx, op, prompt, func(text string) error {
		out = text
		return nil
	})
	return out, err
}

// callWithRetry calls the API with exponential backoff. A reply that fails
// to parse counts as a failed attempt.
func (c *ClaudeBackend) callWithRetry(ctx context.Context, op, prompt string, parse func(string) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries(); attempt++ {
		if err := sleepBackoff(ctx, attempt); err != nil {
			return types.CollaboratorError(op, err)
		}
		text, err := c.complete(ctx, prompt)
		if err == nil {
			err = parse(text)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return types.CollaboratorError(op, ctx.Err())
		}
		c.log().Warn("claude call failed", "op", op, "attempt", attempt+1, "error", err)
		lastErr = err
	}
	return types.CollaboratorError(op, fmt.Errorf("after %d retries: %w", c.maxRetries(), lastErr))
}

func (c *ClaudeBackend) log() *logging.Logger {
	return logging.OrNop(c.Log)
}

func (c *ClaudeBackend) maxRetries() int {
	if c.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return c.MaxRetries
}

func sleepBackoff(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return nil
	}
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}

// complete sends one prompt and returns the first text block of the reply.
func (c *ClaudeBackend) complete(ctx context.Context, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("no Anthropic API key configured")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	model := c.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	bodyBytes, err := json.Marshal(claudeRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding Claude response: %w", err)
	}
	for _, block := range cResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Claude API response")
}

// ExtractJSON strips markdown code fences and surrounding prose from a model
// reply, returning the outermost JSON object or array.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return text[start:]
	}
	return text[start : end+1]
}
