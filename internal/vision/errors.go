package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ErrTimeout is returned when a request exceeds its deadline.
var ErrTimeout = errors.New("vision request timed out")

// ErrEmptyResponse is returned when the service answers without any text.
var ErrEmptyResponse = errors.New("vision service returned an empty response")

// ErrorKind categorizes service failures.
type ErrorKind int

const (
	// KindUnknown is any failure that matched no other category.
	KindUnknown ErrorKind = iota
	// KindAuth indicates an invalid, revoked, or under-privileged API key.
	KindAuth
	// KindQuota indicates quota exhaustion or rate limiting.
	KindQuota
	// KindNetwork indicates a connectivity problem or a 5xx from the service.
	KindNetwork
	// KindInvalidRequest indicates the service rejected the request itself.
	KindInvalidRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindNetwork:
		return "network"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// ServiceError is a classified failure from the vision service.
type ServiceError struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Classify maps a raw client error onto ErrTimeout or a *ServiceError.
// A nil error stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr.Code, apiErr.Message, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key not valid") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "api_key_invalid") ||
		strings.Contains(msg, "permission denied"):
		return &ServiceError{Kind: KindAuth, Message: "API key is invalid or has been revoked", Err: err}

	case strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "rate limit"):
		return &ServiceError{Kind: KindQuota, Message: "API quota exceeded or rate limited", Err: err}

	case strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %w", ErrTimeout, err)

	case strings.Contains(msg, "connection") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "dial") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "unreachable"):
		return &ServiceError{Kind: KindNetwork, Message: "network error reaching the vision service", Err: err}

	default:
		return &ServiceError{Kind: KindUnknown, Message: "vision request failed", Err: err}
	}
}

func classifyAPIError(code int, message string, err error) *ServiceError {
	switch code {
	case 400:
		return &ServiceError{Kind: KindInvalidRequest, Code: code, Message: "bad request", Err: err}
	case 401, 403:
		return &ServiceError{Kind: KindAuth, Code: code, Message: "API key is invalid, expired, or lacks permissions", Err: err}
	case 429:
		return &ServiceError{Kind: KindQuota, Code: code, Message: "API rate limit exceeded", Err: err}
	case 500, 502, 503, 504:
		return &ServiceError{Kind: KindNetwork, Code: code, Message: "vision service server error", Err: err}
	default:
		return &ServiceError{Kind: KindUnknown, Code: code, Message: message, Err: err}
	}
}

// kindOf returns a metric label for a classified error.
func kindOf(err error) string {
	if errors.Is(err, ErrTimeout) {
		return "timeout"
	}
	if errors.Is(err, ErrEmptyResponse) {
		return "empty_response"
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Kind.String()
	}
	return "unknown"
}
