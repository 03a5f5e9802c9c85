// Package azure implements engine.Engine over the Azure OpenAI chat
// completions REST API.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/courselens-backend/internal/config"
	"github.com/yungbote/courselens-backend/internal/inference/engine"
	"github.com/yungbote/courselens-backend/internal/platform/httpx"
)

type Engine struct {
	endpoint   string
	apiKey     string
	apiVersion string
	deployment string
	timeout    time.Duration
	retry      httpx.Policy

	httpClient *http.Client
}

func New(cfg config.LLMConfig) (*Engine, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("azure: endpoint required")
	}
	if strings.TrimSpace(cfg.Deployment) == "" {
		return nil, errors.New("azure: deployment required")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		return nil, errors.New("azure: api version required")
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Engine{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiVersion: strings.TrimSpace(cfg.APIVersion),
		deployment: strings.TrimSpace(cfg.Deployment),
		timeout:    cfg.Timeout.Duration,
		retry:      httpx.Policy{MaxRetries: cfg.MaxRetries, BaseDelay: time.Second, MaxDelay: 20 * time.Second},
		httpClient: &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg config.LLMConfig, httpClient *http.Client) (*Engine, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		e.httpClient = httpClient
	}
	return e, nil
}

func (e *Engine) Name() string { return "azure:" + e.deployment }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content,omitempty"`
		} `json:"message,omitempty"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

// GenerateText sends one chat completion. A refusal of the JSON response
// format is reported wrapped in engine.ErrStructuredOutputRejected.
func (e *Engine) GenerateText(ctx context.Context, messages []engine.Message, opts engine.GenerateOptions) (string, error) {
	chatMsgs := toChatMessages(messages)
	if len(chatMsgs) == 0 {
		return "", errors.New("azure: no messages")
	}

	reqBody := chatCompletionRequest{
		Messages:    chatMsgs,
		Temperature: opts.Temperature,
	}
	if opts.StructuredOutput {
		reqBody.ResponseFormat = map[string]any{"type": "json_object"}
	}

	var resp chatCompletionResponse
	if err := e.doJSON(ctx, reqBody, &resp); err != nil {
		var he *HTTPError
		if opts.StructuredOutput && errors.As(err, &he) && he.rejectsResponseFormat() {
			return "", fmt.Errorf("%w: %w", engine.ErrStructuredOutputRejected, err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("azure: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (e *Engine) chatURL() string {
	q := url.Values{}
	q.Set("api-version", e.apiVersion)
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?%s", e.endpoint, url.PathEscape(e.deployment), q.Encode())
}

func (e *Engine) doJSON(ctx context.Context, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return httpx.Do(ctx, e.retry, nil, func(ctx context.Context) error {
		return e.post(ctx, raw, out)
	})
}

// post makes one attempt; the per-call timeout applies to each attempt.
func (e *Engine) post(ctx context.Context, body []byte, out any) error {
	ctx2 := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx2, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx2, http.MethodPost, e.chatURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("api-key", e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		he := parseHTTPError(resp.StatusCode, raw)
		if resp.StatusCode == http.StatusTooManyRequests {
			he.retryAfter = httpx.RetryAfterDuration(resp.Header, time.Now())
		}
		return he
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func toChatMessages(messages []engine.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		role := strings.TrimSpace(m.Role)
		content := strings.TrimSpace(m.Content)
		if role == "" || content == "" {
			continue
		}
		out = append(out, chatMessage{Role: role, Content: content})
	}
	return out
}
