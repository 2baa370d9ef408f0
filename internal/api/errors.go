package api

import (
	"errors"
	"github.com/daniyalizadpanahi/swiftorder/internal/idempotency"
	"github.com/daniyalizadpanahi/swiftorder/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"net/http"
	"os"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func detail(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"detail": msg})
}

func invalidPayload(c echo.Context) error {
	return detail(c, http.StatusBadRequest, "Invalid request payload")
}

// writeError renders err. Field-scoped errors become {field: [message]}
// bodies, the rest {"detail": message}.
func writeError(c echo.Context, err error) error {
	var (
		domainErr     *service.Error
		clampErr      *service.QuantityClampedError
		validationErr service.ValidationError
	)

	switch {
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, validationErr)
	case errors.As(err, &clampErr):
		return c.JSON(http.StatusBadRequest, service.ValidationError{"quantity": {clampErr.Error()}})
	case errors.Is(err, idempotency.ErrInvalidKey):
		return detail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, idempotency.ErrInFlight):
		return detail(c, http.StatusConflict, err.Error())
	case errors.As(err, &domainErr):
		if domainErr.Field != "" && domainErr.Code != service.EFATAL {
			return c.JSON(http.StatusBadRequest, service.ValidationError{domainErr.Field: {domainErr.Message}})
		}
		status := statusOf(domainErr.Code)
		if status == http.StatusInternalServerError {
			logger.Error().Err(err).Msgf("%s %s failed", c.Request().Method, c.Path())
		}
		return detail(c, status, domainErr.Message)
	}

	logger.Error().Err(err).Msgf("%s %s failed", c.Request().Method, c.Path())
	return detail(c, http.StatusInternalServerError, "Internal server error")
}

func statusOf(code string) int {
	switch code {
	case service.EINVALID:
		return http.StatusBadRequest
	case service.ENOTFOUND:
		return http.StatusNotFound
	case service.ECONFLICT, service.EBUSY:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
