package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bravo68web/tableidentity/internal/snapshot"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

// respondError writes the JSON error response matching err
func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	body := gin.H{
		"error":   code,
		"message": err.Error(),
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Details != nil {
		body["details"] = appErr.Details
	}

	if status == http.StatusInternalServerError {
		logger.Get().WithContext(c.Request.Context()).Error("Request failed",
			logger.Path(c.Request.URL.Path),
			logger.Error(err),
		)
		body["message"] = "An unexpected error occurred"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		return http.StatusNotFound, string(apperrors.KindNotFound)
	case errors.Is(err, snapshot.ErrCorrupt):
		return http.StatusUnprocessableEntity, "corrupt_snapshot"
	}
	kind := apperrors.KindOf(err)
	return kind.Status(), string(kind)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   apperrors.KindBadRequest,
		"message": message,
	})
}
