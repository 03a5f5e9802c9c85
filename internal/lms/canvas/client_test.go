package canvas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/courselens-backend/internal/config"
	"github.com/yungbote/courselens-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, h http.Handler) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewWithHTTPClient(logger.NewNop(), config.LMSConfig{
		BaseURL: srv.URL + "/",
		Token:   "tok",
		Timeout: config.Duration{Duration: 5 * time.Second},
		PerPage: 2,
	}, srv.Client())
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestFetchContext(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/101/modules", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization=%q", got)
		}
		if r.URL.Query().Get("include[]") != "items" {
			t.Errorf("query=%s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "":
			next := fmt.Sprintf("http://%s/api/v1/courses/101/modules?include%%5B%%5D=items&page=2&per_page=2", r.Host)
			w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="current", <%s>; rel="next"`, r.URL.String(), next))
			fmt.Fprint(w, `[
				{"id":1,"name":"Week 1","position":1,"items":[
					{"id":10,"title":"Essay 1","type":"Assignment","content_id":555},
					{"id":11,"title":"Quiz 1","type":"Quiz","content_id":77},
					{"id":12,"title":"Intro","type":"Page"}
				]},
				{"id":2,"name":"Week 2","position":2,"items":[]}
			]`)
		case "2":
			fmt.Fprintf(w, `[
				{"id":3,"name":"Week 1","position":3,"items":[{"id":13,"title":"Essay 2","type":"Assignment","content_id":556}]},
				{"id":4,"name":"Week 3","position":4,"items_url":"http://%s/api/v1/courses/101/modules/4/items"}
			]`, r.Host)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})
	mux.HandleFunc("/api/v1/courses/101/modules/4/items", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("per_page") != "2" {
			t.Errorf("items per_page=%q", r.URL.Query().Get("per_page"))
		}
		fmt.Fprint(w, `[{"id":20,"title":"Lab","type":"Assignment","content_id":900}]`)
	})
	mux.HandleFunc("/api/v1/courses/101", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("include[]") != "total_students" {
			t.Errorf("query=%s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"id":101,"name":"Biology","total_students":42}`)
	})

	c := newTestClient(t, mux)
	got, err := c.FetchContext(context.Background(), "101")
	if err != nil {
		t.Fatalf("FetchContext: %v", err)
	}

	if diff := cmp.Diff(map[string]int{"Week 1": 1, "Week 2": 2, "Week 3": 4}, got.ModuleOrder); diff != "" {
		t.Fatalf("module order (-want +got):\n%s", diff)
	}
	wantAssignments := map[string]string{
		"555":    "Week 1",
		"Quiz 1": "Week 1",
		"556":    "Week 1",
		"900":    "Week 3",
	}
	if diff := cmp.Diff(wantAssignments, got.AssignmentModules); diff != "" {
		t.Fatalf("assignments (-want +got):\n%s", diff)
	}
	if got.StudentCount == nil || *got.StudentCount != 42 {
		t.Fatalf("student count=%v", got.StudentCount)
	}
	if got.CourseID != "101" {
		t.Fatalf("course id=%q", got.CourseID)
	}
}

func TestFetchContextKeepsTokenOnConfiguredHost(t *testing.T) {
	var foreignCalls atomic.Int32
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignCalls.Add(1)
		fmt.Fprint(w, `[]`)
	}))
	t.Cleanup(foreign.Close)

	cases := []struct {
		name    string
		modules func(w http.ResponseWriter)
	}{
		{
			name: "items_url",
			modules: func(w http.ResponseWriter) {
				fmt.Fprintf(w, `[{"id":1,"name":"Week 1","position":1,"items_url":"%s/api/v1/courses/8/modules/1/items"}]`, foreign.URL)
			},
		},
		{
			name: "next link",
			modules: func(w http.ResponseWriter) {
				w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/courses/8/modules?page=2>; rel="next"`, foreign.URL))
				fmt.Fprint(w, `[]`)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/v1/courses/8/modules", func(w http.ResponseWriter, r *http.Request) {
				tc.modules(w)
			})
			mux.HandleFunc("/api/v1/courses/8", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"id":8}`)
			})
			c := newTestClient(t, mux)
			_, err := c.FetchContext(context.Background(), "8")
			if !errors.Is(err, ErrForeignHost) {
				t.Fatalf("err=%v", err)
			}
		})
	}
	if foreignCalls.Load() != 0 {
		t.Fatalf("foreign host called %d times", foreignCalls.Load())
	}
}

func TestFetchContextResolvesRelativeItemsURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/12/modules", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":1,"name":"Week 1","position":1,"items_url":"/api/v1/courses/12/modules/1/items"}]`)
	})
	mux.HandleFunc("/api/v1/courses/12/modules/1/items", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization=%q", got)
		}
		fmt.Fprint(w, `[{"id":2,"title":"Essay","type":"Assignment","content_id":31}]`)
	})
	mux.HandleFunc("/api/v1/courses/12", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":12}`)
	})
	c := newTestClient(t, mux)
	got, err := c.FetchContext(context.Background(), "12")
	if err != nil {
		t.Fatalf("FetchContext: %v", err)
	}
	if got.AssignmentModules["31"] != "Week 1" {
		t.Fatalf("assignments=%v", got.AssignmentModules)
	}
}

func TestFetchContextMissingStudentCount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/7/modules", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("/api/v1/courses/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":7}`)
	})
	c := newTestClient(t, mux)
	got, err := c.FetchContext(context.Background(), "7")
	if err != nil {
		t.Fatalf("FetchContext: %v", err)
	}
	if got.StudentCount != nil {
		t.Fatalf("student count=%v", *got.StudentCount)
	}
	if len(got.ModuleOrder) != 0 {
		t.Fatalf("module order=%v", got.ModuleOrder)
	}
}

func TestFetchContextHTTPError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/9/modules", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errors":[{"message":"Invalid access token."}]}`)
	})
	mux.HandleFunc("/api/v1/courses/9", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":9,"total_students":3}`)
	})
	c := newTestClient(t, mux)
	_, err := c.FetchContext(context.Background(), "9")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "canvas http 401: Invalid access token.") {
		t.Fatalf("err=%v", err)
	}
}

func TestFetchContextDefaultsToSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/4/modules", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/api/v1/courses/4", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":4}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Defaults().LMS
	cfg.BaseURL = srv.URL
	cfg.Token = "tok"
	c, err := NewWithHTTPClient(logger.NewNop(), cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	t.Cleanup(c.Close)

	if _, err := c.FetchContext(context.Background(), "4"); err == nil || !strings.Contains(err.Error(), "canvas http 503") {
		t.Fatalf("err=%v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d", calls.Load())
	}
}

func retryingClient(t *testing.T, h http.Handler, retries int) Client {
	t.Helper()
	c := newTestClient(t, h)
	cl := c.(*client)
	cl.retry.MaxRetries = retries
	cl.retry.BaseDelay = time.Millisecond
	cl.retry.MaxDelay = 5 * time.Millisecond
	return c
}

func TestFetchContextRetriesThrottling(t *testing.T) {
	var moduleCalls, courseCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/5/modules", func(w http.ResponseWriter, r *http.Request) {
		if moduleCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `403 Forbidden (Rate Limit Exceeded)`)
			return
		}
		fmt.Fprint(w, `[{"id":1,"name":"Week 1","position":1,"items":[]}]`)
	})
	mux.HandleFunc("/api/v1/courses/5", func(w http.ResponseWriter, r *http.Request) {
		if courseCalls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id":5,"total_students":12}`)
	})

	c := retryingClient(t, mux, 2)
	got, err := c.FetchContext(context.Background(), "5")
	if err != nil {
		t.Fatalf("FetchContext: %v", err)
	}
	if got.StudentCount == nil || *got.StudentCount != 12 {
		t.Fatalf("student count=%v", got.StudentCount)
	}
	if moduleCalls.Load() != 2 || courseCalls.Load() != 2 {
		t.Fatalf("calls modules=%d course=%d", moduleCalls.Load(), courseCalls.Load())
	}
}

func TestFetchContextDoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/6/modules", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"errors":[{"message":"user not authorized to perform that action"}]}`)
	})
	mux.HandleFunc("/api/v1/courses/6", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":6}`)
	})

	c := retryingClient(t, mux, 3)
	_, err := c.FetchContext(context.Background(), "6")
	if err == nil || !strings.Contains(err.Error(), "canvas http 403") {
		t.Fatalf("err=%v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d", calls.Load())
	}
}

func TestNextLink(t *testing.T) {
	cases := map[string]string{
		``: "",
		`<https://x/a?page=2>; rel="next"`:                                    "https://x/a?page=2",
		`<https://x/a?page=1>; rel="current",<https://x/a?page=3>; rel="next"`: "https://x/a?page=3",
		`<https://x/a?page=9>; rel="last"`:                                    "",
		`garbage`:                                                             "",
	}
	for in, want := range cases {
		if got := nextLink(in); got != want {
			t.Fatalf("nextLink(%q)=%q want %q", in, got, want)
		}
	}
}

func TestNewRequiresSettings(t *testing.T) {
	if _, err := New(logger.NewNop(), config.LMSConfig{Token: "x"}); err == nil {
		t.Fatalf("expected error without base url")
	}
	if _, err := New(logger.NewNop(), config.LMSConfig{BaseURL: "https://canvas"}); err == nil {
		t.Fatalf("expected error without token")
	}
}
