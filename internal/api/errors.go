package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/logger"
)

var log = logger.New("api")

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string      `json:"error"`
	Code      apperr.Code `json:"code"`
	Retryable bool        `json:"retryable"`
}

// respondError writes err with the status its code maps to. Unknown errors
// are reported as internal without leaking their text.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := apperr.Message(err)
	if apperr.CodeOf(err) == apperr.CodeUnknown {
		log.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "Internal server error"
	}
	c.JSON(status, ErrorResponse{
		Error:     msg,
		Code:      apperr.CodeOf(err),
		Retryable: apperr.IsRetryable(err),
	})
}

// viewer returns the authenticated user, writing a 401 when there is none
func viewer(c *gin.Context) (uuid.UUID, bool) {
	userID, exists := c.Get("userID")
	id, ok := userID.(uuid.UUID)
	if !exists || !ok || id == uuid.Nil {
		respondError(c, apperr.Unauthorized("Unauthorized"))
		return uuid.Nil, false
	}
	return id, true
}

// idParam parses a uuid path parameter, writing a 400 when it is malformed
func idParam(c *gin.Context, name, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperr.InvalidArg("Invalid "+what+" ID"))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.InvalidArg(err.Error()))
		return false
	}
	return true
}
