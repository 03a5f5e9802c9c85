package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/courselens-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError writes err using the status, code and stage it carries.
// Untyped errors become a 500 internal_error.
func RespondAPIError(c *gin.Context, err error) {
	e, ok := apierr.As(err)
	if !ok {
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
		return
	}
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	msg := "unknown error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    e.Code,
			Stage:   e.Stage,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
