package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/auth"
	"github.com/xraph/subledger/payment"
)

// errBadRequest marks malformed input that never reached the engine.
var errBadRequest = errors.New("bad request")

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code  uint32 `json:"code"`
	Error string `json:"error"`
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrAuthRequired), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, subledger.ErrUnauthorized):
		return http.StatusForbidden
	case subledger.IsNotFound(err):
		return http.StatusNotFound
	case subledger.IsConflict(err):
		return http.StatusConflict
	case subledger.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, subledger.ErrPlanInactive),
		errors.Is(err, subledger.ErrSubscriptionCancelled),
		errors.Is(err, subledger.ErrRenewTooEarly),
		errors.Is(err, subledger.ErrTickOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, subledger.ErrArchived):
		return http.StatusGone
	case errors.Is(err, payment.ErrUnknownToken):
		return http.StatusInternalServerError
	case errors.Is(err, subledger.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, payment.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, subledger.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, subledger.ErrNoAllowanceReader), errors.Is(err, subledger.ErrNoApprover):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(StatusFor(err), ErrorResponse{Code: subledger.Code(err), Error: err.Error()})
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusFor(err), ErrorResponse{Code: subledger.Code(err), Error: err.Error()})
}
