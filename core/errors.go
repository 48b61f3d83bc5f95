package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput        = "CALLPASS_BAD_INPUT"
	ServiceErrorTokenNotFound   = "CALLPASS_TOKEN_NOT_FOUND"
	ServiceErrorTokenConsumed   = "CALLPASS_TOKEN_CONSUMED"
	ServiceErrorTokenExpired    = "CALLPASS_TOKEN_EXPIRED"
	ServiceErrorPassNotFound    = "CALLPASS_PASS_NOT_FOUND"
	ServiceErrorRateLimited     = "CALLPASS_RATE_LIMITED"
	ServiceErrorDeliveryFailed  = "CALLPASS_DELIVERY_FAILED"
	ServiceErrorSweepInProgress = "CALLPASS_SWEEP_IN_PROGRESS"
	ServiceErrorInternal        = "CALLPASS_INTERNAL_ERROR"
)

var (
	// ErrTokenNotFound is returned for an unknown verification token.
	ErrTokenNotFound = errors.New("core: verification token not found")
	// ErrTokenConsumed is returned when a token already left pending.
	ErrTokenConsumed = errors.New("core: verification token already consumed")
	// ErrTokenExpired is returned when the token TTL has lapsed.
	ErrTokenExpired = errors.New("core: verification token expired")
	// ErrPassNotFound is returned for an unknown pass id.
	ErrPassNotFound = errors.New("core: pass not found")
	// ErrInvalidMaxUses is returned when max_uses is set but not positive.
	ErrInvalidMaxUses = errors.New("core: max_uses must be positive when set")
)

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrTokenNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorTokenNotFound)
	case errors.Is(err, ErrTokenConsumed):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorTokenConsumed)
	case errors.Is(err, ErrTokenExpired):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorTokenExpired).
			WithCode(http.StatusGone)
	case errors.Is(err, ErrPassNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorPassNotFound)
	case errors.Is(err, ErrInvalidPassScope), errors.Is(err, ErrInvalidExpectingWindow), errors.Is(err, ErrInvalidMaxUses):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	case errors.Is(err, ErrSweepInProgress):
		// Wrap rather than rebuild so errors.Is on the sentinel keeps
		// working for callers that coordinate overlapping sweeps.
		return ensureServiceErrorEnvelope(
			goerrors.Wrap(err, goerrors.CategoryConflict, "sweep already running").
				WithTextCode(ServiceErrorSweepInProgress),
		)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "delivery"), strings.Contains(msg, "send sms"), strings.Contains(msg, "send message"):
		return newServiceError(err.Error(), goerrors.CategoryExternal, ServiceErrorDeliveryFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorTokenNotFound
	case goerrors.CategoryConflict:
		return ServiceErrorTokenConsumed
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryExternal:
		return ServiceErrorDeliveryFailed
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
