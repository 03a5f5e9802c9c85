package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/courselens-backend/internal/http/response"
	"github.com/yungbote/courselens-backend/internal/platform/ctxutil"
	"github.com/yungbote/courselens-backend/internal/platform/logger"
)

// Recovery turns a handler panic into a 500 error envelope.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		if log != nil {
			log.Error("panic recovered",
				"path", c.Request.URL.Path,
				"request_id", ctxutil.RequestID(c.Request.Context()),
				"panic", fmt.Sprint(recovered),
			)
		}
		response.RespondError(c, http.StatusInternalServerError, "internal_error", errors.New("internal server error"))
		c.Abort()
	})
}
