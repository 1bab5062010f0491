package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// Error code constants for standardized error handling across providers.
// Providers map their native errors to one of these codes.
const (
	ErrCodeAuthentication = "authentication_error"
	ErrCodeRateLimit      = "rate_limit_exceeded"
	ErrCodeModelNotFound  = "model_not_found"
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeContextLength  = "context_length_exceeded"
	ErrCodeServerError    = "server_error"
	ErrCodeTimeout        = "timeout"
	ErrCodeMalformed      = "malformed_response"
	ErrCodeCanceled       = "canceled"
)

// ErrIncompleteStream is returned by a provider whose stream closed before
// the terminal marker (Ollama done, OpenAI [DONE], Anthropic message_stop).
var ErrIncompleteStream = errors.New("stream ended before completion")

// ProviderError represents a typed error from an LLM provider.
// Use the IsXxx helpers below to classify errors without inspecting fields.
type ProviderError struct {
	Code    string // One of the ErrCode* constants.
	Message string // Human-readable description.
	Err     error  // Underlying error (may be nil).
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a typed provider error.
func NewProviderError(code, message string, err error) *ProviderError {
	return &ProviderError{Code: code, Message: message, Err: err}
}

// IsAuthenticationError reports whether err is an authentication failure.
func IsAuthenticationError(err error) bool {
	return hasCode(err, ErrCodeAuthentication)
}

// IsRateLimitError reports whether err is a rate-limit error.
func IsRateLimitError(err error) bool {
	return hasCode(err, ErrCodeRateLimit)
}

// IsModelNotFoundError reports whether err is a model-not-found error.
func IsModelNotFoundError(err error) bool {
	return hasCode(err, ErrCodeModelNotFound)
}

// IsContextLengthError reports whether err is a context-length-exceeded error.
func IsContextLengthError(err error) bool {
	return hasCode(err, ErrCodeContextLength)
}

// IsServerError reports whether err is a provider-side server error.
func IsServerError(err error) bool {
	return hasCode(err, ErrCodeServerError)
}

// IsTimeoutError reports whether err is a timeout.
func IsTimeoutError(err error) bool {
	return hasCode(err, ErrCodeTimeout)
}

// IsMalformedError reports whether the provider returned data that could not be decoded.
func IsMalformedError(err error) bool {
	return hasCode(err, ErrCodeMalformed)
}

// IsCanceled reports whether the caller abandoned the call. A canceled call
// is not a provider failure.
func IsCanceled(err error) bool {
	return hasCode(err, ErrCodeCanceled)
}

// TransportError classifies failures that carry no provider status: caller
// cancellation, deadlines, truncated streams and unreachable servers.
// Providers fall back to it after mapping their own status errors.
func TransportError(provider string, err error) *ProviderError {
	var ne net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return NewProviderError(ErrCodeCanceled, provider+" request canceled", err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return NewProviderError(ErrCodeTimeout, provider+" request timed out", err)
	case errors.Is(err, ErrIncompleteStream), errors.Is(err, io.ErrUnexpectedEOF):
		return NewProviderError(ErrCodeMalformed, provider+" stream ended before completion", err)
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "dial tcp") {
		return NewProviderError(ErrCodeServerError, provider+" server unreachable", err)
	}
	return NewProviderError(ErrCodeServerError, provider+" error", err)
}

// Code returns the ErrCode* value carried by err, or ErrCodeServerError
// when err is not a ProviderError.
func Code(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeServerError
}

// IsRetryable reports whether the error is transient and the call may succeed on retry.
func IsRetryable(err error) bool {
	return IsRateLimitError(err) || IsServerError(err) || IsTimeoutError(err)
}

func hasCode(err error, code string) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == code
}
