// Package gemini implements engine.Engine on the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/yungbote/courselens-backend/internal/config"
	"github.com/yungbote/courselens-backend/internal/inference/engine"
	"github.com/yungbote/courselens-backend/internal/platform/httpx"
)

type Engine struct {
	client *genai.Client
	model  string
	retry  httpx.Policy
}

func New(ctx context.Context, cfg config.LLMConfig) (*Engine, error) {
	return NewWithHTTPClient(ctx, cfg, nil)
}

// NewWithHTTPClient lets tests point the SDK at a local server through
// cfg.Endpoint and a custom client.
func NewWithHTTPClient(ctx context.Context, cfg config.LLMConfig, httpClient *http.Client) (*Engine, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key required")
	}
	model := strings.TrimSpace(cfg.Deployment)
	if model == "" {
		return nil, errors.New("gemini: model required")
	}

	cc := &genai.ClientConfig{
		APIKey:     strings.TrimSpace(cfg.APIKey),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimSpace(cfg.Endpoint); base != "" {
		cc.HTTPOptions.BaseURL = base
	}
	if cfg.Timeout.Duration > 0 {
		d := cfg.Timeout.Duration
		cc.HTTPOptions.Timeout = &d
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Engine{
		client: client,
		model:  model,
		retry:  httpx.Policy{MaxRetries: cfg.MaxRetries, BaseDelay: time.Second, MaxDelay: 20 * time.Second},
	}, nil
}

func (e *Engine) Name() string { return "gemini:" + e.model }

// GenerateText folds system messages into the system instruction and sends
// the rest as user turns.
func (e *Engine) GenerateText(ctx context.Context, messages []engine.Message, opts engine.GenerateOptions) (string, error) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "system", "developer":
			system = append(system, text)
		case "assistant", "model":
			contents = append(contents, genai.NewContentFromText(text, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return "", errors.New("gemini: no messages")
	}

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if len(system) > 0 {
		gc.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if opts.StructuredOutput {
		gc.ResponseMIMEType = "application/json"
	}

	var resp *genai.GenerateContentResponse
	err := httpx.Do(ctx, e.retry, nil, func(ctx context.Context) error {
		var err error
		resp, err = e.client.Models.GenerateContent(ctx, e.model, contents, gc)
		return classify(err)
	})
	if err != nil {
		if opts.StructuredOutput && rejectsJSONMode(err) {
			return "", fmt.Errorf("%w: %w", engine.ErrStructuredOutputRejected, err)
		}
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

func rejectsJSONMode(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "response_mime_type") ||
		strings.Contains(msg, "responsemimetype") ||
		strings.Contains(msg, "response mime type")
}

// statusError exposes the SDK's HTTP status to the retry policy.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }
func (e *statusError) HTTPStatusCode() int { return e.code }

func classify(err error) error {
	var apiErr genai.APIError
	if err == nil || !errors.As(err, &apiErr) {
		return err
	}
	return &statusError{code: apiErr.Code, err: err}
}
