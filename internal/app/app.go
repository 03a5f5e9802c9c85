package app

import (
	"context"
	"fmt"

	"github.com/yungbote/courselens-backend/internal/config"
	"github.com/yungbote/courselens-backend/internal/http"
	httpH "github.com/yungbote/courselens-backend/internal/http/handlers"
	"github.com/yungbote/courselens-backend/internal/kpi"
	"github.com/yungbote/courselens-backend/internal/lms/canvas"
	"github.com/yungbote/courselens-backend/internal/narrative"
	"github.com/yungbote/courselens-backend/internal/observability"
	"github.com/yungbote/courselens-backend/internal/pipeline"
	"github.com/yungbote/courselens-backend/internal/platform/logger"
	"github.com/yungbote/courselens-backend/internal/tables"
)

type App struct {
	Log      *logger.Logger
	Config   *config.Config
	Metrics  *observability.Metrics
	Analyzer *pipeline.Analyzer

	canvas        canvas.Client
	server        *http.Server
	shutdownTrace func(context.Context) error
}

// New loads configuration and wires every collaborator. Nothing is served
// until Run.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewWithOptions(logger.Options{Mode: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Log: log, Config: cfg, Metrics: observability.NewMetrics()}
	a.shutdownTrace = observability.InitTracing(ctx, log, cfg)

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	a.Log.Info("Wiring LMS client...", "base_url", cfg.LMS.BaseURL)
	cc, err := canvas.New(a.Log, cfg.LMS)
	if err != nil {
		return fmt.Errorf("init canvas client: %w", err)
	}
	a.canvas = cc

	eng, err := newEngine(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("init narrative engine: %w", err)
	}
	a.Log.Info("Wiring narrative engine...", "engine", eng.Name())

	a.Analyzer, err = pipeline.New(pipeline.Deps{
		Log:            a.Log,
		Metrics:        a.Metrics,
		Context:        cc,
		Tables:         tables.Builder{},
		KPIs:           kpi.Synthesizer{},
		Narrative:      narrative.NewGenerator(eng, cfg.LLM.Temperature, a.Log, a.Metrics),
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	router, err := http.NewRouter(http.RouterConfig{
		Log:            a.Log,
		Metrics:        a.Metrics,
		HTTP:           cfg.HTTP,
		ServiceName:    cfg.Otel.ServiceName,
		AnalyzeHandler: httpH.NewAnalyzeHandler(a.Log, a.Analyzer, cfg.HTTP.RequestTimeout.Duration, cfg.HTTP.MaxUploadBytes),
		HealthHandler:  httpH.NewHealthHandler(),
	})
	if err != nil {
		return fmt.Errorf("init router: %w", err)
	}
	a.server = http.NewServer(cfg.HTTP, a.Log, router)
	return nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.server.Run(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.canvas != nil {
		a.canvas.Close()
	}
	if a.shutdownTrace != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout.Duration)
		if err := a.shutdownTrace(ctx); err != nil {
			a.Log.Warn("tracer shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
