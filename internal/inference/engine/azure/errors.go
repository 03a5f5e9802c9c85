package azure

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type HTTPError struct {
	StatusCode int
	Code       string
	Param      string
	Message    string
	Body       string

	retryAfter time.Duration
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// RetryAfter is the delay the service asked for on 429 responses, if any.
func (e *HTTPError) RetryAfter() time.Duration { return e.retryAfter }

func (e *HTTPError) Error() string {
	if e == nil {
		return "azure openai http error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("azure openai http error: status=%d code=%s message=%s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("azure openai http error: status=%d message=%s", e.StatusCode, msg)
}

func parseHTTPError(status int, raw []byte) *HTTPError {
	out := &HTTPError{StatusCode: status, Body: strings.TrimSpace(string(raw))}
	var env struct {
		Error struct {
			Message string `json:"message"`
			Param   string `json:"param"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		out.Message = strings.TrimSpace(env.Error.Message)
		out.Param = strings.TrimSpace(env.Error.Param)
		if env.Error.Code != nil {
			out.Code = strings.TrimSpace(fmt.Sprint(env.Error.Code))
		}
	}
	return out
}

// rejectsResponseFormat reports whether the upstream refused the request
// because of response_format, as older deployments and API versions do.
func (e *HTTPError) rejectsResponseFormat() bool {
	if e == nil {
		return false
	}
	if e.StatusCode != http.StatusBadRequest && e.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	if e.Param == "response_format" {
		return true
	}
	text := strings.ToLower(e.Message + " " + e.Body)
	return strings.Contains(text, "response_format") || strings.Contains(text, "json_object")
}
