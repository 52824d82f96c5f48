package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	RegistryErrorBadInput         = "REGISTRY_BAD_INPUT"
	RegistryErrorNotFound         = "REGISTRY_NOT_FOUND"
	RegistryErrorPermissionDenied = "REGISTRY_PERMISSION_DENIED"
	RegistryErrorRateLimited      = "REGISTRY_RATE_LIMITED"
	RegistryErrorInternal         = "REGISTRY_INTERNAL_ERROR"
)

func registryErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureRegistryErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newRegistryError(err.Error(), goerrors.CategoryNotFound, RegistryErrorNotFound)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"):
		return newRegistryError(err.Error(), goerrors.CategoryRateLimit, RegistryErrorRateLimited)
	case strings.Contains(msg, "admin"), strings.Contains(msg, "permission"), strings.Contains(msg, "not bound"):
		return newRegistryError(err.Error(), goerrors.CategoryAuthz, RegistryErrorPermissionDenied)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newRegistryError(err.Error(), goerrors.CategoryBadInput, RegistryErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureRegistryErrorEnvelope(mapped)
}

func newRegistryError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureRegistryErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureRegistryErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = registryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultRegistryTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultRegistryTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return RegistryErrorBadInput
	case goerrors.CategoryNotFound:
		return RegistryErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return RegistryErrorPermissionDenied
	case goerrors.CategoryRateLimit:
		return RegistryErrorRateLimited
	default:
		return RegistryErrorInternal
	}
}

func registryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
