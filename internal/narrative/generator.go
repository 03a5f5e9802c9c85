// Package narrative turns course KPIs and tables into the five card
// instructor report.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/courselens-backend/internal/domain"
	"github.com/yungbote/courselens-backend/internal/inference/engine"
	"github.com/yungbote/courselens-backend/internal/observability"
	"github.com/yungbote/courselens-backend/internal/platform/logger"
)

type Generator struct {
	engine      engine.Engine
	temperature float64
	log         *logger.Logger
	metrics     *observability.Metrics
}

// NewGenerator builds a generator; log and metrics may be nil.
func NewGenerator(e engine.Engine, temperature float64, log *logger.Logger, metrics *observability.Metrics) *Generator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Generator{engine: e, temperature: temperature, log: log.With("component", "narrative"), metrics: metrics}
}

// Generate asks the engine for a report and normalizes whatever comes back.
// Only engine failures are returned as errors; malformed output never is.
func (g *Generator) Generate(ctx context.Context, kpis domain.KPIs, tables Tables) (*domain.AnalysisReport, error) {
	if g == nil || g.engine == nil {
		return nil, errors.New("narrative: engine not configured")
	}
	messages := []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: BuildPayload(kpis, tables)},
	}

	start := time.Now()
	raw, err := g.call(ctx, messages, true)
	if err != nil && errors.Is(err, engine.ErrStructuredOutputRejected) && ctx.Err() == nil {
		g.log.Warn("structured output rejected; retrying without it", "engine", g.engine.Name(), "error", err)
		g.metrics.IncStructuredOutputFallback(g.engine.Name())
		raw, err = g.call(ctx, messages, false)
	}
	if err != nil {
		return nil, fmt.Errorf("narrative generation failed: %w", err)
	}

	report := NormalizeText(raw)
	g.log.Debug("narrative generated",
		"engine", g.engine.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
		"raw_len", len(raw),
	)
	return &report, nil
}

func (g *Generator) call(ctx context.Context, messages []engine.Message, structured bool) (string, error) {
	start := time.Now()
	raw, err := g.engine.GenerateText(ctx, messages, engine.GenerateOptions{
		Temperature:      g.temperature,
		StructuredOutput: structured,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	g.metrics.ObserveLLMRequest(g.engine.Name(), status, time.Since(start))
	return raw, err
}
