// Package pipeline runs one analysis request through its ordered stages.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/courselens-backend/internal/domain"
	"github.com/yungbote/courselens-backend/internal/narrative"
	"github.com/yungbote/courselens-backend/internal/observability"
	"github.com/yungbote/courselens-backend/internal/platform/apierr"
	"github.com/yungbote/courselens-backend/internal/platform/ctxutil"
	"github.com/yungbote/courselens-backend/internal/platform/logger"
	"github.com/yungbote/courselens-backend/internal/reconcile"
	"github.com/yungbote/courselens-backend/internal/tables"
)

// Stage names, in execution order.
const (
	StageReadUploads       = "read_uploads"
	StageFetchContext      = "fetch_context"
	StageBuildTables       = "build_tables"
	StageReconcileOrder    = "reconcile_order"
	StageComputeKPIs       = "compute_kpis"
	StageGenerateNarrative = "generate_narrative"
	StageAssembleResponse  = "assemble_response"
)

type ContextProvider interface {
	FetchContext(ctx context.Context, courseID string) (*domain.CourseContext, error)
}

type TableBuilder interface {
	BuildEcho(r io.Reader, cc *domain.CourseContext) (*tables.EchoTables, error)
	BuildGradebook(r io.Reader, cc *domain.CourseContext) (*tables.GradebookTables, error)
}

type KPISynthesizer interface {
	Compute(echo *tables.EchoTables, grades *tables.GradebookTables, studentCount *int) (domain.KPIs, error)
}

type NarrativeGenerator interface {
	Generate(ctx context.Context, kpis domain.KPIs, t narrative.Tables) (*domain.AnalysisReport, error)
}

// Source opens one uploaded export.
type Source func() (io.ReadCloser, error)

type Request struct {
	CourseID  string
	Gradebook Source
	Echo      Source
	// IncludeStudents adds the de-identified per-student tables.
	IncludeStudents bool
}

type Deps struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	Context        ContextProvider
	Tables         TableBuilder
	KPIs           KPISynthesizer
	Narrative      NarrativeGenerator
	MaxUploadBytes int64
}

type Analyzer struct {
	log            *logger.Logger
	metrics        *observability.Metrics
	context        ContextProvider
	tables         TableBuilder
	kpis           KPISynthesizer
	narrative      NarrativeGenerator
	maxUploadBytes int64
}

func New(deps Deps) (*Analyzer, error) {
	if deps.Context == nil || deps.Tables == nil || deps.KPIs == nil || deps.Narrative == nil {
		return nil, errors.New("pipeline: missing collaborator")
	}
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &Analyzer{
		log:            log.With("component", "pipeline"),
		metrics:        deps.Metrics,
		context:        deps.Context,
		tables:         deps.Tables,
		kpis:           deps.KPIs,
		narrative:      deps.Narrative,
		maxUploadBytes: deps.MaxUploadBytes,
	}, nil
}

// run wraps one stage in a span, a duration log line and stage metrics.
func (a *Analyzer) run(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	ctx, span := observability.Tracer().Start(ctx, "pipeline."+stage)
	defer span.End()
	span.SetAttributes(attribute.String("pipeline.stage", stage))

	start := time.Now()
	err := fn(ctx)
	dur := time.Since(start)

	log := a.log.With("stage", stage, "request_id", ctxutil.RequestID(ctx), "duration_ms", dur.Milliseconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.ObserveStage(stage, "error", dur)
		log.Warn("stage failed", "error", err)
		return err
	}
	a.metrics.ObserveStage(stage, "ok", dur)
	log.Debug("stage done")
	return nil
}

type builtTables struct {
	echo   *tables.EchoTables
	grades *tables.GradebookTables
}

// Analyze runs the request to completion. Failures before narrative
// generation return a stage-tagged *apierr.Error; a narrative failure is
// reported inside the envelope instead.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*domain.Envelope, error) {
	var (
		gradebookRaw, echoRaw []byte
		cc                    *domain.CourseContext
		built                 builtTables
		echoModules           *domain.Table
		gradeModules          *domain.Table
		kpis                  domain.KPIs
		analysis              domain.Analysis
		out                   *domain.Envelope
	)

	if err := a.run(ctx, StageReadUploads, func(ctx context.Context) error {
		if strings.TrimSpace(req.CourseID) == "" {
			return errors.New("course_id is required")
		}
		var err error
		if gradebookRaw, err = a.readUpload("canvas gradebook", req.Gradebook); err != nil {
			return err
		}
		echoRaw, err = a.readUpload("echo360 analytics", req.Echo)
		return err
	}); err != nil {
		return nil, apierr.Stage(apierr.KindUploadRead, StageReadUploads, fmt.Errorf("error reading uploaded files: %w", err))
	}

	if err := a.run(ctx, StageFetchContext, func(ctx context.Context) error {
		var err error
		cc, err = a.context.FetchContext(ctx, strings.TrimSpace(req.CourseID))
		if err == nil && cc == nil {
			err = errors.New("empty course context")
		}
		return err
	}); err != nil {
		return nil, apierr.Stage(apierr.KindUpstreamFetch, StageFetchContext, fmt.Errorf("error fetching course context: %w", err))
	}

	if err := a.run(ctx, StageBuildTables, func(ctx context.Context) error {
		var err error
		built, err = a.buildTables(ctx, gradebookRaw, echoRaw, cc)
		return err
	}); err != nil {
		return nil, apierr.Stage(apierr.KindProcessing, StageBuildTables, err)
	}

	// Reordering is pure and total; the stage only adds a span and timing.
	_ = a.run(ctx, StageReconcileOrder, func(ctx context.Context) error {
		echoModules = reconcile.ByCourseOrder(built.echo.Modules, tables.ModuleColumn, cc.ModuleOrder)
		gradeModules = reconcile.ByCourseOrder(built.grades.ModuleMetrics, tables.ModuleColumn, cc.ModuleOrder)
		return nil
	})

	if err := a.run(ctx, StageComputeKPIs, func(ctx context.Context) error {
		var err error
		kpis, err = a.kpis.Compute(built.echo, built.grades, cc.StudentCount)
		return err
	}); err != nil {
		return nil, apierr.Stage(apierr.KindKPI, StageComputeKPIs, fmt.Errorf("error computing KPIs: %w", err))
	}

	// Narrative failures are soft: the envelope carries the message instead.
	_ = a.run(ctx, StageGenerateNarrative, func(ctx context.Context) error {
		report, err := a.narrative.Generate(ctx, kpis, narrative.Tables{
			EchoModules:         echoModules,
			GradebookSummary:    built.grades.Summary,
			GradebookModuleRows: gradeModules,
		})
		if err != nil {
			msg := err.Error()
			analysis = domain.Analysis{Error: &msg}
			return apierr.Stage(apierr.KindNarrative, StageGenerateNarrative, err)
		}
		analysis = domain.Analysis{Text: report}
		return nil
	})

	_ = a.run(ctx, StageAssembleResponse, func(ctx context.Context) error {
		out = &domain.Envelope{
			CourseID:     cc.CourseID,
			StudentCount: cc.StudentCount,
			KPIs:         kpis,
			Echo: domain.EchoSection{
				Summary: built.echo.Summary,
				Modules: echoModules,
			},
			Grades: domain.GradesSection{
				Summary:       built.grades.Summary,
				ModuleMetrics: gradeModules,
			},
			Analysis: analysis,
		}
		if out.CourseID == "" {
			out.CourseID = strings.TrimSpace(req.CourseID)
		}
		if req.IncludeStudents {
			out.Echo.Students = built.echo.Students
			out.Grades.Gradebook = built.grades.Gradebook
		}
		return nil
	})
	return out, nil
}

// buildTables runs both export parsers concurrently; neither touches shared
// state.
func (a *Analyzer) buildTables(ctx context.Context, gradebookRaw, echoRaw []byte, cc *domain.CourseContext) (builtTables, error) {
	var out builtTables
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, span := observability.Tracer().Start(gctx, "tables.echo360")
		defer span.End()
		t, err := a.tables.BuildEcho(bytes.NewReader(echoRaw), cc)
		if err != nil {
			return fmt.Errorf("error building Echo360 tables: %w", err)
		}
		out.echo = t
		return nil
	})
	g.Go(func() error {
		_, span := observability.Tracer().Start(gctx, "tables.gradebook")
		defer span.End()
		t, err := a.tables.BuildGradebook(bytes.NewReader(gradebookRaw), cc)
		if err != nil {
			return fmt.Errorf("error building gradebook tables: %w", err)
		}
		out.grades = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return builtTables{}, err
	}
	if out.echo == nil || out.grades == nil {
		return builtTables{}, errors.New("table builder returned no tables")
	}
	return out, nil
}

func (a *Analyzer) readUpload(label string, src Source) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("%s file is required", label)
	}
	rc, err := src()
	if err != nil {
		return nil, fmt.Errorf("open %s file: %w", label, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if a.maxUploadBytes > 0 {
		r = io.LimitReader(rc, a.maxUploadBytes+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s file: %w", label, err)
	}
	if a.maxUploadBytes > 0 && int64(len(raw)) > a.maxUploadBytes {
		return nil, fmt.Errorf("%s file exceeds %d bytes", label, a.maxUploadBytes)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%s file is empty", label)
	}
	return raw, nil
}
