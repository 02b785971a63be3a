package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/service"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error sends a JSON error response.
func Error(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// mapServiceError converts a service.ServiceError into the matching HTTP
// response. Anything else is logged and reported as a 500.
func mapServiceError(c echo.Context, err error) error {
	var se *service.ServiceError
	if !errors.As(err, &se) {
		slog.Error("unhandled service error", "path", c.Path(), "error", err)
		return Error(c, http.StatusInternalServerError, service.CodeInternal, "internal server error")
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(se, service.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(se, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(se, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(se, service.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	return Error(c, status, se.Code, se.Message)
}
