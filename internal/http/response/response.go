package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storybook-admin/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes the raw error message verbatim; the console is an internal tool.
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

// RespondAPIError takes status and code from an *apierr.Error in err's chain and
// falls back to 500 with fallbackCode.
func RespondAPIError(c *gin.Context, err error, fallbackCode string) {
	status, code := apierr.StatusOf(err, fallbackCode)
	RespondError(c, status, code, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
