package service

import (
	"errors"
	"fmt"
	"net/http"
)

// ProviderError describes a failed platform call and whether repeating it can help.
type ProviderError struct {
	Platform   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Platform, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Platform, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) IsRetryable() bool { return e.Retryable }

func (e *ProviderError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// classifyStatus reports whether a response status is worth retrying:
// 408, 429 and 5xx are, every other 4xx is not.
func classifyStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

func statusError(platform string, code int, msg string) *ProviderError {
	return &ProviderError{
		Platform:   platform,
		StatusCode: code,
		Retryable:  classifyStatus(code),
		Err:        errors.New(msg),
	}
}

func transientError(platform string, err error) *ProviderError {
	return &ProviderError{Platform: platform, Retryable: true, Err: err}
}

func permanentError(platform string, err error) *ProviderError {
	return &ProviderError{Platform: platform, Err: err}
}
