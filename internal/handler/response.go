package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// apiResponse is the JSON envelope of the /api routes. Code is 0 on success and the HTTP status
// otherwise.
type apiResponse struct {
	Code      int            `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Data      any            `json:"data,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Message:   "ok",
		RequestID: c.GetString(requestIDHeader),
		Data:      data,
		Meta:      meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.AbortWithStatusJSON(status, apiResponse{
		Code:      status,
		Message:   message,
		RequestID: c.GetString(requestIDHeader),
		Meta:      meta,
	})
}
