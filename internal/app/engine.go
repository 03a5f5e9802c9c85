package app

import (
	"context"
	"fmt"

	"github.com/yungbote/courselens-backend/internal/config"
	"github.com/yungbote/courselens-backend/internal/inference/engine"
	"github.com/yungbote/courselens-backend/internal/inference/engine/azure"
	"github.com/yungbote/courselens-backend/internal/inference/engine/gemini"
	"github.com/yungbote/courselens-backend/internal/inference/engine/mock"
)

func newEngine(ctx context.Context, cfg config.LLMConfig) (engine.Engine, error) {
	switch cfg.Provider {
	case config.ProviderAzure:
		return azure.New(cfg)
	case config.ProviderGemini:
		return gemini.New(ctx, cfg)
	case config.ProviderMock:
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
