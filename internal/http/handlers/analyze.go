package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/courselens-backend/internal/domain"
	httpMW "github.com/yungbote/courselens-backend/internal/http/middleware"
	"github.com/yungbote/courselens-backend/internal/http/response"
	"github.com/yungbote/courselens-backend/internal/pipeline"
	"github.com/yungbote/courselens-backend/internal/platform/apierr"
	"github.com/yungbote/courselens-backend/internal/platform/logger"
)

// Multipart field names accepted by POST /analyze.
const (
	FieldCourseID        = "course_id"
	FieldGradebook       = "canvas_gradebook_csv"
	FieldEcho            = "echo_analytics_csv"
	FieldIncludeStudents = "include_students"
)

type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*domain.Envelope, error)
}

type AnalyzeHandler struct {
	log            *logger.Logger
	analyzer       Analyzer
	timeout        time.Duration
	maxUploadBytes int64
}

func NewAnalyzeHandler(log *logger.Logger, analyzer Analyzer, timeout time.Duration, maxUploadBytes int64) *AnalyzeHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &AnalyzeHandler{
		log:            log.With("handler", "analyze"),
		analyzer:       analyzer,
		timeout:        timeout,
		maxUploadBytes: maxUploadBytes,
	}
}

// POST /analyze
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		// Two files plus form overhead.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.maxUploadBytes+1<<20)
	}
	form, err := c.MultipartForm()
	if err != nil {
		response.RespondAPIError(c, apierr.Stage(apierr.KindUploadRead, pipeline.StageReadUploads, formError(err)))
		return
	}

	includeStudents := false
	if v := strings.TrimSpace(formValue(form, FieldIncludeStudents)); v != "" {
		includeStudents, err = strconv.ParseBool(v)
		if err != nil {
			response.RespondAPIError(c, apierr.Stage(apierr.KindUploadRead, pipeline.StageReadUploads,
				fmt.Errorf("invalid %s %q", FieldIncludeStudents, v)))
			return
		}
	}

	req := pipeline.Request{
		CourseID:        strings.TrimSpace(formValue(form, FieldCourseID)),
		Gradebook:       fileSource(form, FieldGradebook),
		Echo:            fileSource(form, FieldEcho),
		IncludeStudents: includeStudents,
	}

	httpMW.AddLogFields(c, "course_id", req.CourseID, "roster", includeStudents)

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	env, err := h.analyzer.Analyze(ctx, req)
	if err != nil {
		// Bad uploads are the caller's problem; everything else is ours.
		if apierr.IsKind(err, apierr.KindUploadRead) {
			h.log.Info("analysis rejected", "course_id", req.CourseID, "error", err)
		} else {
			h.log.Error("analysis failed", "course_id", req.CourseID, "error", err)
		}
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, env)
}

func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
	}
	return fmt.Errorf("invalid multipart form: %w", err)
}

func formValue(form *multipart.Form, name string) string {
	if form == nil || len(form.Value[name]) == 0 {
		return ""
	}
	return form.Value[name][0]
}

// fileSource returns nil when the field is absent so the pipeline reports it.
func fileSource(form *multipart.Form, name string) pipeline.Source {
	if form == nil || len(form.File[name]) == 0 {
		return nil
	}
	fh := form.File[name][0]
	return func() (io.ReadCloser, error) {
		return fh.Open()
	}
}
