package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"dory/internal/util"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

// statusError is returned by the plain HTTP backends for non-2xx answers.
type statusError struct {
	Backend    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300]
	}
	return fmt.Sprintf("%s status %d: %s", e.Backend, e.StatusCode, body)
}

func statusCode(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var oe *openai.Error
	if errors.As(err, &oe) {
		return oe.StatusCode
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTransient
	}
	switch code := statusCode(err); {
	case code == http.StatusTooManyRequests:
		return ErrorRate
	case code == http.StatusRequestTimeout, code >= 500:
		return ErrorTransient
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "context length"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"),
		strings.Contains(e, "connection refused"), strings.Contains(e, "connection reset"), strings.Contains(e, "eof"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

func Retryable(err error) bool {
	if util.IsFatal(err) || errors.Is(err, context.Canceled) {
		return false
	}
	switch ClassifyError(err) {
	case ErrorRate, ErrorTransient:
		return true
	}
	return false
}

// wrapFailure maps a backend error onto the shared error taxonomy. Errors that
// already carry a taxonomy class pass through.
func wrapFailure(backend string, err error) error {
	if err == nil {
		return nil
	}
	for _, cls := range []error{util.ErrConfig, util.ErrMalformedResult, util.ErrIntegrity, util.ErrTransient} {
		if errors.Is(err, cls) {
			return err
		}
	}
	switch ClassifyError(err) {
	case ErrorRate, ErrorTransient, ErrorQuota:
		return fmt.Errorf("%w: %s: %v", util.ErrTransient, backend, err)
	}
	if code := statusCode(err); code == http.StatusUnauthorized || code == http.StatusForbidden {
		return fmt.Errorf("%w: %s rejected credentials: %v", util.ErrConfig, backend, err)
	}
	return fmt.Errorf("%s: %w", backend, err)
}
