package anthropic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/HerbHall/parley/pkg/llm"
)

// anthropicStatusError represents an HTTP error response from the Anthropic API.
type anthropicStatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *anthropicStatusError) Error() string {
	return fmt.Sprintf("anthropic: %d %s: %s", e.StatusCode, e.Type, e.Message)
}

// mapError classifies err into a typed llm.ProviderError. HTTP status
// responses are mapped here; everything else goes through
// llm.TransportError, so a caller cancel stays distinct from a timeout.
func mapError(err error) error {
	var pe *llm.ProviderError
	if err == nil || errors.As(err, &pe) {
		return err
	}

	var se *anthropicStatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 401 || se.Type == "permission_error":
			return llm.NewProviderError(llm.ErrCodeAuthentication, se.Message, err)
		case se.Type == "request_too_large":
			return llm.NewProviderError(llm.ErrCodeContextLength, se.Message, err)
		case se.StatusCode == 429:
			return llm.NewProviderError(llm.ErrCodeRateLimit, se.Message, err)
		case se.Type == "not_found_error":
			return llm.NewProviderError(llm.ErrCodeModelNotFound, se.Message, err)
		case se.Type == "invalid_request_error" &&
			(strings.Contains(strings.ToLower(se.Message), "token") ||
				strings.Contains(strings.ToLower(se.Message), "context")):
			return llm.NewProviderError(llm.ErrCodeContextLength, se.Message, err)
		case se.StatusCode >= 500:
			return llm.NewProviderError(llm.ErrCodeServerError, se.Message, err)
		case se.StatusCode >= 400:
			return llm.NewProviderError(llm.ErrCodeInvalidRequest, se.Message, err)
		}
	}

	return llm.TransportError("anthropic", err)
}
