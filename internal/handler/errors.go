package handler

import (
	"errors"
	"log"
	"net/http"

	"adminauth/internal/service"
	"adminauth/pkg/response"

	"github.com/gin-gonic/gin"
)

// respondError writes err as a JSON failure. Service errors carry their own safe
// message; anything else is logged and reported as a generic 500.
func respondError(c *gin.Context, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		response.Fail(c, statusFor(svcErr), svcErr.Message, svcErr.Code)
		return
	}
	log.Printf("handler: %s %s: %v", c.Request.Method, c.FullPath(), err)
	response.Fail(c, http.StatusInternalServerError, "Internal server error", "INTERNAL_ERROR")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidChallenge), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// bindError keeps validator output in the log; clients only learn the payload was rejected.
func bindError(c *gin.Context, err error) {
	log.Printf("handler: %s %s: bind: %v", c.Request.Method, c.FullPath(), err)
	response.Fail(c, http.StatusBadRequest, "Invalid request payload", "INVALID_INPUT")
}
