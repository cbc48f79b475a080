package indexer

import (
	"context"
	"errors"
	"fmt"
)

// ErrSkipped marks a document the pipeline deliberately left alone, such as
// one without a text-bearing file. Skips are reported, not counted as
// failures.
var ErrSkipped = errors.New("skipped")

// Skip returns an ErrSkipped with a reason.
func Skip(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSkipped, fmt.Sprintf(format, args...))
}

// Command is one step of the reindex pipeline.
type Command interface {
	Name() string
	Execute(ctx context.Context, doc *DocumentContext) error
}
