package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/courselens-backend/internal/config"
	"github.com/yungbote/courselens-backend/internal/inference/engine"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		Provider:   config.ProviderAzure,
		Endpoint:   "https://example.openai.azure.com/",
		APIKey:     "secret",
		APIVersion: "2024-06-01",
		Deployment: "gpt-4o",
		Timeout:    config.Duration{Duration: 2 * time.Second},
	}
}

func jsonResponse(status int, body any) *http.Response {
	b, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(b)),
	}
}

func TestGenerateText(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/openai/deployments/gpt-4o/chat/completions" {
				t.Fatalf("unexpected path: %s", req.URL.Path)
			}
			if got := req.URL.Query().Get("api-version"); got != "2024-06-01" {
				t.Fatalf("api-version=%q", got)
			}
			if got := req.Header.Get("api-key"); got != "secret" {
				t.Fatalf("api-key=%q", got)
			}

			var in chatCompletionRequest
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				t.Fatalf("decode req: %v", err)
			}
			if len(in.Messages) != 2 || in.Messages[0].Role != "system" {
				t.Fatalf("messages=%+v", in.Messages)
			}
			if in.ResponseFormat["type"] != "json_object" {
				t.Fatalf("response_format=%v", in.ResponseFormat)
			}
			if in.Temperature != 0.3 {
				t.Fatalf("temperature=%v", in.Temperature)
			}

			return jsonResponse(http.StatusOK, map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"content": `{"cards":[]}`}},
				},
			}), nil
		}),
	}

	e, err := NewWithHTTPClient(testConfig(), client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	out, err := e.GenerateText(context.Background(), []engine.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
	}, engine.GenerateOptions{Temperature: 0.3, StructuredOutput: true})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if out != `{"cards":[]}` {
		t.Fatalf("out=%q", out)
	}
}

func TestGenerateTextOmitsResponseFormat(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(req.Body)
			if strings.Contains(string(raw), "response_format") {
				t.Fatalf("unexpected response_format in %s", raw)
			}
			return jsonResponse(http.StatusOK, map[string]any{
				"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
			}), nil
		}),
	}
	e, err := NewWithHTTPClient(testConfig(), client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	if _, err := e.GenerateText(context.Background(), []engine.Message{{Role: "user", Content: "hi"}}, engine.GenerateOptions{}); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
}

func TestGenerateTextClassifiesResponseFormatRejection(t *testing.T) {
	var calls int32
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return jsonResponse(http.StatusBadRequest, map[string]any{
				"error": map[string]any{
					"message": "Invalid parameter: 'response_format' of type 'json_object' is not supported with this model.",
					"param":   "response_format",
					"code":    "invalid_request_error",
				},
			}), nil
		}),
	}
	e, err := NewWithHTTPClient(testConfig(), client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	_, err = e.GenerateText(context.Background(), []engine.Message{{Role: "user", Content: "hi"}}, engine.GenerateOptions{StructuredOutput: true})
	if !errors.Is(err, engine.ErrStructuredOutputRejected) {
		t.Fatalf("expected ErrStructuredOutputRejected, got %v", err)
	}
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected wrapped HTTPError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestGenerateTextUpstreamFailureIsNotRejection(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, map[string]any{
				"error": map[string]any{"message": "overloaded"},
			}), nil
		}),
	}
	e, err := NewWithHTTPClient(testConfig(), client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	_, err = e.GenerateText(context.Background(), []engine.Message{{Role: "user", Content: "hi"}}, engine.GenerateOptions{StructuredOutput: true})
	if err == nil || errors.Is(err, engine.ErrStructuredOutputRejected) {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("err=%v", err)
	}
}

func TestNewRequiresDeployment(t *testing.T) {
	cfg := testConfig()
	cfg.Deployment = ""
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGenerateTextDefaultsToSingleAttempt(t *testing.T) {
	var calls int32
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return jsonResponse(http.StatusServiceUnavailable, map[string]any{
				"error": map[string]any{"message": "overloaded"},
			}), nil
		}),
	}
	cfg := config.Defaults().LLM
	cfg.Endpoint = "https://example.openai.azure.com"
	cfg.APIKey = "secret"
	cfg.APIVersion = "2024-06-01"
	cfg.Deployment = "gpt-4o"
	e, err := NewWithHTTPClient(cfg, client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	if _, err := e.GenerateText(context.Background(), []engine.Message{{Role: "user", Content: "hi"}}, engine.GenerateOptions{}); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestGenerateTextRetriesThrottling(t *testing.T) {
	var calls int32
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				resp := jsonResponse(http.StatusTooManyRequests, map[string]any{
					"error": map[string]any{"code": "429", "message": "rate limited"},
				})
				resp.Header.Set("Retry-After", "0")
				return resp, nil
			}
			return jsonResponse(http.StatusOK, map[string]any{
				"choices": []any{map[string]any{"message": map[string]any{"content": "ok"}}},
			}), nil
		}),
	}
	cfg := testConfig()
	cfg.MaxRetries = 2
	e, err := NewWithHTTPClient(cfg, client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	e.retry.BaseDelay = time.Millisecond
	e.retry.MaxDelay = 5 * time.Millisecond

	out, err := e.GenerateText(context.Background(), []engine.Message{{Role: "user", Content: "hi"}}, engine.GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if out != "ok" || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("out=%q calls=%d", out, calls)
	}
}

func TestGenerateTextDoesNotRetryBadRequest(t *testing.T) {
	var calls int32
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return jsonResponse(http.StatusBadRequest, map[string]any{
				"error": map[string]any{"message": "bad prompt"},
			}), nil
		}),
	}
	cfg := testConfig()
	cfg.MaxRetries = 3
	e, err := NewWithHTTPClient(cfg, client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	if _, err := e.GenerateText(context.Background(), []engine.Message{{Role: "user", Content: "hi"}}, engine.GenerateOptions{}); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls=%d", calls)
	}
}
