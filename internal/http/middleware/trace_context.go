package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/courselens-backend/internal/platform/ctxutil"
)

const (
	HeaderTraceID   = "X-Trace-Id"
	HeaderRequestID = "X-Request-Id"

	maxRequestIDLen = 128
)

// AttachTraceContext stores the request and trace ids on the request context
// and echoes them back. It must run after otelgin so an active span's trace id
// wins over anything the caller sent.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		td := &ctxutil.TraceData{
			TraceID:   resolveTraceID(c.Request),
			RequestID: headerID(c.Request.Header, HeaderRequestID),
		}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))

		h := c.Writer.Header()
		h.Set(HeaderTraceID, td.TraceID)
		h.Set(HeaderRequestID, td.RequestID)
		c.Next()
	}
}

func resolveTraceID(r *http.Request) string {
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return headerID(r.Header, HeaderTraceID)
}

// headerID returns a caller supplied id when it is short and printable,
// otherwise a fresh uuid.
func headerID(h http.Header, name string) string {
	v := strings.TrimSpace(h.Get(name))
	if v == "" || len(v) > maxRequestIDLen || strings.IndexFunc(v, unsafeIDRune) >= 0 {
		return uuid.NewString()
	}
	return v
}

func unsafeIDRune(r rune) bool {
	return r < 0x21 || r > 0x7e
}
