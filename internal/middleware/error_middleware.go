package middleware

import (
	"marketchat/internal/services"
	"marketchat/internal/transport/httpdto"
	"marketchat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders errors attached with c.Error when the handler wrote
// no response of its own.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		l.Ctx(c.Request.Context()).Sugar().Errorf("request error: %s", err.Error())
		if c.Writer.Written() {
			return
		}
		c.JSON(services.HTTPStatus(err), httpdto.NewErrorResponse(err.Error(), services.ErrorCode(err)))
	}
}
