package middleware

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

// Recovery turns a panic in a handler into a 500 response in the API error
// format. The panic is logged with its stack and recorded on the request span.
// Broken client connections are left to gin.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Get()
	}
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		ctx := c.Request.Context()
		requestID := GetRequestID(c)

		span := trace.SpanFromContext(ctx)
		span.RecordError(fmt.Errorf("panic: %v", recovered), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, "panic")

		log.WithContext(ctx).Error("Panic recovered",
			logger.Any("panic", recovered),
			logger.RequestID(requestID),
			logger.Method(c.Request.Method),
			logger.Path(c.Request.URL.Path),
		)

		if c.Writer.Written() {
			c.Abort()
			return
		}
		body := gin.H{
			"error":   apperrors.KindInternal,
			"message": "An unexpected error occurred",
		}
		if requestID != "" {
			body["details"] = gin.H{"request_id": requestID}
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
	})
}
