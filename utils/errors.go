package utils

import (
	"fmt"
	"net/http"
)

// ServiceError is an expected failure that carries its HTTP status and
// envelope code, e.g. 404 / 40401.
type ServiceError struct {
	Status  int
	Code    int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewServiceError creates a ServiceError.
func NewServiceError(status, code int, message string) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message}
}

func BadRequest(code int, message string) *ServiceError {
	return NewServiceError(http.StatusBadRequest, code, message)
}

func Unauthorized(code int, message string) *ServiceError {
	return NewServiceError(http.StatusUnauthorized, code, message)
}

func Forbidden(code int, message string) *ServiceError {
	return NewServiceError(http.StatusForbidden, code, message)
}

func NotFound(code int, message string) *ServiceError {
	return NewServiceError(http.StatusNotFound, code, message)
}

func Conflict(code int, message string) *ServiceError {
	return NewServiceError(http.StatusConflict, code, message)
}
