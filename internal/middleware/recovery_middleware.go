// internal/middleware/recovery_middleware.go
package middleware

import (
	"errors"
	"net/http"

	"bloom-payments/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a handler panic into a 500. A panic on a write
// route may have happened after a tender was captured, so the terminal is
// told to look the transaction up instead of paying again.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			fields := []zap.Field{
				zap.Any("panic", rec),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Stack("stack"),
			}
			if id, ok := GetEmployeeID(c); ok {
				fields = append(fields, zap.String("employee_id", id))
			}
			logger.Error("handler panicked", fields...)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			message := "internal server error"
			if c.Request.Method != http.MethodGet {
				message = "request failed part way; check the transaction before retrying"
			}
			response.Error(c, http.StatusInternalServerError, message, nil)
		}()
		c.Next()
	}
}
