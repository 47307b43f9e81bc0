package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"pkt.systems/pslog"

	apperrors "focusflow/backend/internal/errors"
)

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	if apiErr == nil {
		apiErr = apperrors.Internal("", nil)
	}
	if apiErr.Status >= http.StatusInternalServerError {
		logger := pslog.Ctx(c.Request.Context())
		if cause := errors.Unwrap(apiErr); cause != nil {
			logger.Error(apiErr.Message, "code", apiErr.Code, "error", cause)
		} else {
			logger.Error(apiErr.Message, "code", apiErr.Code)
		}
	}

	errorBody := gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	}
	if apiErr.Details != nil {
		errorBody["details"] = apiErr.Details
	}

	c.JSON(apiErr.Status, gin.H{
		"error": errorBody,
	})
}

func writeInvalidJSON(c *gin.Context) {
	writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
}
