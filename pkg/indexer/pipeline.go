package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Pipeline runs its commands in order on one document.
type Pipeline struct {
	Name     string
	Commands []Command
	Logger   hclog.Logger
}

// Process stops at the first failing command. A skip is returned as is;
// any other error is prefixed with the command name.
func (p *Pipeline) Process(ctx context.Context, doc *DocumentContext) error {
	logger := p.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	for _, cmd := range p.Commands {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()
		err := cmd.Execute(ctx, doc)
		switch {
		case errors.Is(err, ErrSkipped):
			logger.Debug("document skipped",
				"command", cmd.Name(),
				"control_number", doc.ControlNumber(),
				"reason", err,
			)
			return err
		case err != nil:
			return fmt.Errorf("%s: %w", cmd.Name(), err)
		}

		logger.Trace("step done",
			"command", cmd.Name(),
			"control_number", doc.ControlNumber(),
			"duration", time.Since(started),
		)
	}
	return nil
}
