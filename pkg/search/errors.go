package search

import "errors"

var (
	ErrNotFound           = errors.New("document not found in search index")
	ErrInvalidQuery       = errors.New("invalid search query")
	ErrBackendUnavailable = errors.New("search backend unavailable")
	ErrIndexingFailed     = errors.New("failed to index document")
)

// Error records a failed search operation.
type Error struct {
	Op  string
	Err error
	Msg string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Op + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
