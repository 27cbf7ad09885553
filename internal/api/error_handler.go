package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/account-service/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps domain failure kinds to their HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

var kindStatus = map[domain.FailureKind]struct {
	code     int
	sentinel error
}{
	domain.KindValidation: {http.StatusBadRequest, domain.ErrValidation},
	domain.KindConflict:   {http.StatusConflict, domain.ErrConflict},
	domain.KindNotFound:   {http.StatusNotFound, domain.ErrNotFound},
	domain.KindLocked:     {http.StatusLocked, domain.ErrLocked},
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	kind := domain.KindOf(err)
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Reason
	case kind == domain.KindAuth:
		// Unknown email and wrong password must read the same.
		return http.StatusUnauthorized, "The email or password is incorrect"
	}
	if m, ok := kindStatus[kind]; ok {
		return m.code, strings.TrimPrefix(err.Error(), m.sentinel.Error()+": ")
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}
