package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hideyau28/hk-marketplace-sub002/internal/apperr"
)

// envelope is the uniform response shape: exactly one of Data or Error is
// set. RequestID lets support correlate a client report with logs.
type envelope struct {
	OK        bool           `json:"ok"`
	RequestID string         `json:"requestId"`
	Data      interface{}    `json:"data,omitempty"`
	Error     *errorEnvelope `json:"error,omitempty"`
}

type errorEnvelope struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// requestID returns the inbound correlation id or mints one.
func requestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func respondData(c *gin.Context, requestID string, status int, data interface{}) {
	c.JSON(status, envelope{OK: true, RequestID: requestID, Data: data})
}

// respondError is the single place an error becomes a response. Inner
// components return *apperr.Error; anything else is surfaced as INTERNAL.
func respondError(c *gin.Context, requestID string, err error) {
	ae := apperr.From(err)
	c.JSON(ae.HTTPStatus, envelope{
		OK:        false,
		RequestID: requestID,
		Error: &errorEnvelope{
			Code:    ae.Code,
			Message: ae.Message,
			Details: ae.Details,
		},
	})
}
