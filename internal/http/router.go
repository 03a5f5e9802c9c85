package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/courselens-backend/internal/config"
	httpH "github.com/yungbote/courselens-backend/internal/http/handlers"
	httpMW "github.com/yungbote/courselens-backend/internal/http/middleware"
	"github.com/yungbote/courselens-backend/internal/observability"
	"github.com/yungbote/courselens-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	HTTP        config.HTTPConfig
	ServiceName string

	AnalyzeHandler *httpH.AnalyzeHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	cors, err := httpMW.CORS(cfg.HTTP)
	if err != nil {
		return nil, err
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "courselens"
	}

	r := gin.New()
	r.Use(httpMW.Recovery(cfg.Log))
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(cors)

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}

	// Metrics
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	// Analysis
	if cfg.AnalyzeHandler != nil {
		r.POST("/analyze", cfg.AnalyzeHandler.Analyze)
	}

	return r, nil
}
