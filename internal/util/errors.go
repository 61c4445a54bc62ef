package util

import "errors"

var (
	// ErrConfig is fatal at startup: unknown provider, missing endpoint, invalid settings.
	ErrConfig = errors.New("configuration error")
	// ErrResourceMissing marks an absent input file; callers degrade instead of failing.
	ErrResourceMissing = errors.New("resource missing")
	// ErrIntegrity marks persisted artifacts that disagree with each other.
	ErrIntegrity = errors.New("integrity error")
	// ErrTransient is returned once bounded retries against a backend are exhausted.
	ErrTransient = errors.New("transient backend error")
	// ErrMalformedResult means a backend answered with the wrong shape. Never retried.
	ErrMalformedResult = errors.New("malformed backend result")

	ErrNoExtractableText = errors.New("no extractable text found")
	ErrNotFound          = errors.New("not found")
)

// IsFatal reports whether err belongs to a class that retrying cannot fix.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrIntegrity) || errors.Is(err, ErrMalformedResult)
}
