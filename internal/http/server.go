package http

import (
	"context"
	"errors"
	nethttp "net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/courselens-backend/internal/config"
	"github.com/yungbote/courselens-backend/internal/platform/logger"
)

type Server struct {
	Engine *gin.Engine

	log             *logger.Logger
	srv             *nethttp.Server
	shutdownTimeout config.Duration
}

func NewServer(cfg config.HTTPConfig, log *logger.Logger, engine *gin.Engine) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		Engine: engine,
		log:    log,
		srv: &nethttp.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout.Duration,
			WriteTimeout:      0,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests for up to
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.log.Info("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout.Duration)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	}
}
