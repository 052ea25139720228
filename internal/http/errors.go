package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/sanitize"
)

const (
	unsupportedTypeMessage = "Invalid file type. Only PDF is accepted."
	internalMessage        = "Something went wrong! Please try again."
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch errdefs.Kind(err) {
	case errdefs.ErrInvalidInput, errdefs.ErrEmptyDocument:
		return http.StatusUnprocessableEntity
	case errdefs.ErrNotFound:
		return http.StatusNotFound
	case errdefs.ErrAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail converts err into an echo.HTTPError. Server errors are logged with
// their cause and answered with a generic message.
func (s *Server) fail(c echo.Context, op string, err error) error {
	status := statusFor(err)
	ctx := c.Request().Context()

	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, op+" failed",
			zap.Error(err),
			zap.Bool("retryable", errdefs.IsRetryable(err)),
		)
		return echo.NewHTTPError(status, internalMessage).SetInternal(err)
	}

	s.logger.Debug(ctx, op+" rejected", zap.Error(err), zap.Int("status", status))
	msg := err.Error()
	if errors.Is(err, sanitize.ErrUnsupportedType) {
		msg = unsupportedTypeMessage
	}
	return echo.NewHTTPError(status, msg).SetInternal(err)
}
