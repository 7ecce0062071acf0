// Package handlers implements the read API endpoints.
package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/interfaces/http/middleware"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeAppError maps an application error to its HTTP status. Server side
// failures are logged and masked.
func writeAppError(c *gin.Context, logger logging.Logger, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error("request failed",
			logging.String("path", c.Request.URL.Path),
			logging.String("request_id", middleware.GetRequestID(c)),
			logging.Err(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    string(errors.ErrCodeInternal),
			Message: errors.DefaultMessageForCode(errors.ErrCodeInternal),
		})
		return
	}

	resp := ErrorResponse{Code: string(code), Message: errors.DefaultMessageForCode(code)}
	var ae *errors.AppError
	if stderrors.As(err, &ae) {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}
	c.JSON(status, resp)
}

// queryInt reads an optional integer parameter.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(errors.ErrCodeValidation, name+" must be an integer").WithDetail(v)
	}
	return n, nil
}

// queryBool treats only "true" as set, the way the web client sends flags.
func queryBool(c *gin.Context, name string) bool {
	return c.Query(name) == "true"
}
