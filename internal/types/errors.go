package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrBlocked            = errors.New("blocked by anti-bot page")
	ErrProductUnavailable = errors.New("product data not available")
	ErrBrowserUnavailable = errors.New("browser unavailable")
	ErrWaitTimeout        = errors.New("timed out waiting for element")
	ErrElementNotFound    = errors.New("element not found")
	ErrStaleElement       = errors.New("element is stale")
	ErrLLMTimeout         = errors.New("llm request timed out")
	ErrEmptyURL           = errors.New("empty URL")
	ErrInvalidURL         = errors.New("invalid URL")
	ErrEmptyResponse      = errors.New("empty response body")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur during parsing.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// BlockedError reports a product page replaced by a robot check or CAPTCHA.
// It matches ErrBlocked with errors.Is.
type BlockedError struct {
	URL    string
	Marker string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked while loading %s (%s): CAPTCHA or robot check page", e.URL, e.Marker)
}

func (e *BlockedError) Is(target error) bool { return target == ErrBlocked }

// StorageError wraps errors that occur while archiving reports.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// LLMError wraps a failed completion call.
type LLMError struct {
	Provider string
	Err      error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm error (%s): %v", e.Provider, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the analysis pipeline.
type PipelineError struct {
	Stage RunState
	RunID string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q (run %s): %v", e.Stage, e.RunID, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
