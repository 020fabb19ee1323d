package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/and161185/ifcoins/internal/api"
	"github.com/and161185/ifcoins/internal/errs"
)

var httpCodes = []struct {
	err  error
	code int
}{
	{errs.ErrInvalidArgument, http.StatusBadRequest},
	{errs.ErrInvalidProposal, http.StatusBadRequest},
	{errs.ErrSelfTrade, http.StatusBadRequest},
	{errs.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{errs.ErrInsufficientHoldings, http.StatusUnprocessableEntity},
	{errs.ErrCatalogEmpty, http.StatusUnprocessableEntity},
	{errs.ErrConflict, http.StatusConflict},
	{errs.ErrStaleProposal, http.StatusConflict},
	{errs.ErrAlreadySettled, http.StatusConflict},
	{errs.ErrAlreadyExists, http.StatusConflict},
	{errs.ErrOutOfStock, http.StatusConflict},
	{errs.ErrForbidden, http.StatusForbidden},
	{errs.ErrUnauthorized, http.StatusUnauthorized},
	{errs.ErrNotFound, http.StatusNotFound},
	{errs.ErrNoMatchingStudents, http.StatusNotFound},
	{errs.ErrRateLimited, http.StatusTooManyRequests},
}

// statusOf returns the HTTP status for a service error, 500 when it wraps no known sentinel.
func statusOf(err error) int {
	for _, c := range httpCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return http.StatusInternalServerError
}

// fail aborts the request with the {"error": code, "message": text} envelope. Internal errors are
// logged by the access log middleware and not echoed to the client.
func fail(c *gin.Context, err error) {
	code := statusOf(err)
	body := api.ErrorBody{Error: errs.Code(err), Message: err.Error()}
	if code == http.StatusInternalServerError {
		body.Message = "internal error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, body)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, api.ErrorBody{Error: errs.Code(errs.ErrInvalidArgument), Message: err.Error()})
}
