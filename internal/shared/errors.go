package shared

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrDeviceAcquisition = errors.New("device acquisition failed")
	ErrChannel           = errors.New("session channel failed")
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

func (e *APIError) ToHTTP(status int) *echo.HTTPError {
	return echo.NewHTTPError(status, e)
}

func NotFound(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusNotFound)
}

// ConnectError maps a connect failure onto the single user-visible
// "connection failed" response.
func ConnectError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return NewAPIError("missing_credential", "connection failed").ToHTTP(http.StatusPreconditionFailed)
	case errors.Is(err, ErrDeviceAcquisition):
		return NewAPIError("device_unavailable", "connection failed").ToHTTP(http.StatusServiceUnavailable)
	default:
		return NewAPIError("connection_failed", "connection failed").ToHTTP(http.StatusBadGateway)
	}
}
