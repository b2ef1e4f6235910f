package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phishguard/aegis/core"
	"github.com/phishguard/aegis/service"
)

// Response is the stable envelope every endpoint answers with. Clients key
// their refresh protocol off StatusCode, so its shape must not drift.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
}

func respondOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{StatusCode: status, Success: true, Message: message, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, Response{StatusCode: status, Success: false, Message: message})
}

func abortError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{StatusCode: status, Success: false, Message: message})
}

// respondServiceError maps the error taxonomy onto wire status codes.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrDuplicateIdentity):
		respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, core.ErrInvalidToken), errors.Is(err, core.ErrTokenExpired):
		respondError(c, http.StatusUnauthorized, core.ErrInvalidToken.Error())
	case errors.Is(err, core.ErrAlreadyVerified):
		respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrUnauthorized):
		respondError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrPasswordTooLong):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "internal server error")
	}
}
