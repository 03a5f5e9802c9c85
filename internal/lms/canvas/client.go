// Package canvas fetches course structure and enrollment from the Canvas LMS
// REST API.
package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/courselens-backend/internal/config"
	"github.com/yungbote/courselens-backend/internal/domain"
	"github.com/yungbote/courselens-backend/internal/platform/httpx"
	"github.com/yungbote/courselens-backend/internal/platform/logger"
	"github.com/yungbote/courselens-backend/internal/reconcile"
)

// Client provides the LMS view of a course.
type Client interface {
	FetchContext(ctx context.Context, courseID string) (*domain.CourseContext, error)
	// Close releases pooled connections.
	Close()
}

func New(log *logger.Logger, cfg config.LMSConfig) (Client, error) {
	return NewWithHTTPClient(log, cfg, nil)
}

// NewWithHTTPClient is intended for tests.
func NewWithHTTPClient(log *logger.Logger, cfg config.LMSConfig, httpClient *http.Client) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("missing CANVAS_BASE_URL")
	}
	origin, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid CANVAS_BASE_URL: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid CANVAS_BASE_URL %q: absolute URL required", base)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("missing CANVAS_TOKEN")
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = 100
	}

	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	return &client{
		log:        log.With("client", "CanvasClient"),
		baseURL:    base,
		origin:     origin,
		token:      token,
		perPage:    perPage,
		timeout:    cfg.Timeout.Duration,
		httpClient: httpClient,
		retry: httpx.Policy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   10 * time.Second,
		},
	}, nil
}

type client struct {
	log        *logger.Logger
	baseURL    string
	origin     *url.URL
	token      string
	perPage    int
	timeout    time.Duration
	httpClient *http.Client
	retry      httpx.Policy
}

type module struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Position int          `json:"position"`
	ItemsURL string       `json:"items_url"`
	Items    []moduleItem `json:"items"`
}

type moduleItem struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	ContentID int64  `json:"content_id"`
}

type course struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	TotalStudents *int   `json:"total_students"`
}

// FetchContext loads modules (with their items) and the enrollment total
// concurrently and folds them into a CourseContext.
func (c *client) FetchContext(ctx context.Context, courseID string) (*domain.CourseContext, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return nil, fmt.Errorf("canvas: course id required")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		modules []module
		info    *course
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		modules, err = c.listModules(gctx, courseID)
		return err
	})
	g.Go(func() error {
		var err error
		info, err = c.getCourse(gctx, courseID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := buildContext(courseID, modules)
	if info != nil {
		out.StudentCount = info.TotalStudents
	}
	c.log.Debug("canvas context fetched",
		"course_id", courseID,
		"modules", len(out.ModuleOrder),
		"assignment_links", len(out.AssignmentModules),
	)
	return out, nil
}

func (c *client) Close() {
	c.httpClient.CloseIdleConnections()
}

func buildContext(courseID string, modules []module) *domain.CourseContext {
	entries := make([]reconcile.Entry, 0, len(modules))
	assignments := make(map[string]string)
	for i, m := range modules {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		pos := m.Position
		if pos <= 0 {
			pos = i + 1
		}
		entries = append(entries, reconcile.Entry{Name: name, Position: pos})

		for _, it := range m.Items {
			key := ""
			switch it.Type {
			case "Assignment":
				if it.ContentID > 0 {
					key = strconv.FormatInt(it.ContentID, 10)
				}
			case "Quiz", "Discussion":
				key = strings.TrimSpace(it.Title)
			}
			if key == "" {
				continue
			}
			if _, seen := assignments[key]; !seen {
				assignments[key] = name
			}
		}
	}
	return &domain.CourseContext{
		CourseID:          courseID,
		ModuleOrder:       reconcile.BuildLookup(entries),
		AssignmentModules: assignments,
	}
}

func (c *client) listModules(ctx context.Context, courseID string) ([]module, error) {
	q := url.Values{}
	q.Add("include[]", "items")
	q.Set("per_page", strconv.Itoa(c.perPage))
	next := fmt.Sprintf("%s/api/v1/courses/%s/modules?%s", c.baseURL, url.PathEscape(courseID), q.Encode())

	modules, err := getPaged[module](c, ctx, next)
	if err != nil {
		return nil, err
	}
	// Canvas leaves items out for large modules and links them instead.
	for i := range modules {
		if modules[i].Items != nil || strings.TrimSpace(modules[i].ItemsURL) == "" {
			continue
		}
		items, err := getPaged[moduleItem](c, ctx, c.withPerPage(modules[i].ItemsURL))
		if err != nil {
			return nil, err
		}
		modules[i].Items = items
	}
	return modules, nil
}

func (c *client) getCourse(ctx context.Context, courseID string) (*course, error) {
	q := url.Values{}
	q.Add("include[]", "total_students")
	u := fmt.Sprintf("%s/api/v1/courses/%s?%s", c.baseURL, url.PathEscape(courseID), q.Encode())
	var out course
	if _, err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) withPerPage(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("per_page") == "" {
		q.Set("per_page", strconv.Itoa(c.perPage))
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// ---------- HTTP helpers ----------

type HTTPError struct {
	StatusCode int
	URL        string
	Body       string

	retryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "canvas: <nil error>"
	}
	msg := strings.TrimSpace(e.Body)
	var env struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal([]byte(e.Body), &env) == nil && len(env.Errors) > 0 && env.Errors[0].Message != "" {
		msg = env.Errors[0].Message
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("canvas http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// Retryable also treats Canvas throttling, which arrives as a 403 with a
// "Rate Limit Exceeded" body, as transient.
func (e *HTTPError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(e.Body), "rate limit exceeded") {
		return true
	}
	return httpx.IsRetryableHTTPStatus(e.StatusCode)
}

func (e *HTTPError) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return e.retryAfter
}

// getPaged follows rel="next" Link headers until the last page.
func getPaged[T any](c *client, ctx context.Context, first string) ([]T, error) {
	var out []T
	seen := map[string]bool{}
	for next := first; next != ""; {
		if seen[next] {
			return nil, fmt.Errorf("canvas: pagination loop at %s", next)
		}
		seen[next] = true

		var page []T
		resp, err := c.getJSON(ctx, next, &page)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		next = nextLink(resp.Header.Get("Link"))
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// getJSON retries throttled and transient failures per the client's policy.
func (c *client) getJSON(ctx context.Context, urlStr string, out any) (*http.Response, error) {
	var resp *http.Response
	err := httpx.Do(ctx, c.retry, func(attempt int, err error, wait time.Duration) {
		c.log.Warn("canvas request retry",
			"url", redactURL(urlStr),
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
	}, func(ctx context.Context) error {
		var err error
		resp, err = c.getJSONOnce(ctx, urlStr, out)
		return err
	})
	return resp, err
}

// ErrForeignHost rejects a response-supplied URL that points away from the
// configured Canvas host, so the bearer token is never sent elsewhere.
var ErrForeignHost = errors.New("canvas: url outside configured host")

// resolve makes raw absolute against the base URL and checks it stays on the
// same scheme and host.
func (c *client) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("canvas: bad url: %w", err)
	}
	u = c.origin.ResolveReference(u)
	if !strings.EqualFold(u.Scheme, c.origin.Scheme) || !strings.EqualFold(u.Host, c.origin.Host) {
		return "", fmt.Errorf("%w: %s", ErrForeignHost, redactURL(u.String()))
	}
	return u.String(), nil
}

func (c *client) getJSONOnce(ctx context.Context, urlStr string, out any) (*http.Response, error) {
	urlStr, err := c.resolve(urlStr)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return resp, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        redactURL(urlStr),
			Body:       string(raw),
			retryAfter: httpx.RetryAfterDuration(resp.Header, time.Now()),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return resp, fmt.Errorf("canvas decode error: empty body from %s", redactURL(urlStr))
		}
		return resp, fmt.Errorf("canvas decode error: %w", err)
	}
	return resp, nil
}

// nextLink extracts the rel="next" target from an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, p := range segs[1:] {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if ok && strings.TrimSpace(k) == "rel" && strings.Trim(strings.TrimSpace(v), `"`) == "next" {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
