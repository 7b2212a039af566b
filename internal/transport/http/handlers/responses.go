package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wrdsb/user-directory-api/internal/usecase"
)

// respondError writes the wire error body for err. Request-level errors carry
// their own code and status; anything else becomes a 500.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	if reqErr, ok := usecase.AsRequestError(err); ok {
		c.JSON(reqErr.Status, ErrorResponse{
			Code:    reqErr.Code,
			Message: reqErr.Message,
			Status:  reqErr.Status,
		})
		return
	}

	if log != nil {
		log.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    "rest_internal_error",
		Message: "An unexpected error occurred.",
		Status:  http.StatusInternalServerError,
	})
}
