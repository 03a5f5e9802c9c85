package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/courselens-backend/internal/platform/ctxutil"
	"github.com/yungbote/courselens-backend/internal/platform/logger"
)

const logFieldsKey = "request_log_fields"

// quietRoutes are only logged when they fail.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// AddLogFields attaches key/value pairs to the access log line for c.
func AddLogFields(c *gin.Context, kv ...any) {
	if c == nil || len(kv) == 0 {
		return
	}
	prev, _ := c.Get(logFieldsKey)
	fields, _ := prev.([]any)
	c.Set(logFieldsKey, append(fields, kv...))
}

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		if quietRoutes[route] && status < 400 {
			return
		}

		fields := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes_in", c.Request.ContentLength,
			"bytes_out", c.Writer.Size(),
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			fields = append(fields, "trace_id", td.TraceID, "request_id", td.RequestID)
		}
		if extra, ok := c.Get(logFieldsKey); ok {
			if kv, ok := extra.([]any); ok {
				fields = append(fields, kv...)
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		logAt(log, status)("request completed", fields...)
	}
}

func logAt(log *logger.Logger, status int) func(string, ...any) {
	switch {
	case status >= 500:
		return log.Error
	case status >= 400:
		return log.Warn
	default:
		return log.Info
	}
}
