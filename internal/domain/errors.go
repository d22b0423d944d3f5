package domain

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidCategory = errors.New("invalid category code")
	ErrUnknownPayload  = errors.New("unrecognized message payload")
)

// ErrorKind selects the retry policy for a failed outbound request. Policy is
// chosen by explicit tag, never by inspecting concrete error types.
type ErrorKind string

const (
	// KindNavigation: target unreachable or non-2xx page load.
	KindNavigation ErrorKind = "navigation"
	// KindExtraction: page loaded but the expected structure is absent.
	KindExtraction ErrorKind = "extraction"
	// KindRateLimit: the target signalled throttling.
	KindRateLimit ErrorKind = "rate_limit"
	// KindNonRetryable: malformed input or programming error; never retried.
	KindNonRetryable ErrorKind = "non_retryable"
	// KindOther: anything unclassified; retryable by default.
	KindOther ErrorKind = "other"
)

// ScrapeError tags an underlying failure with its retry classification.
type ScrapeError struct {
	Kind ErrorKind
	Err  error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

func NavigationError(err error) error   { return &ScrapeError{Kind: KindNavigation, Err: err} }
func ExtractionError(err error) error   { return &ScrapeError{Kind: KindExtraction, Err: err} }
func RateLimitError(err error) error    { return &ScrapeError{Kind: KindRateLimit, Err: err} }
func NonRetryableError(err error) error { return &ScrapeError{Kind: KindNonRetryable, Err: err} }

// Classify returns the error's retry tag. Untagged errors are KindOther.
func Classify(err error) ErrorKind {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindOther
}
