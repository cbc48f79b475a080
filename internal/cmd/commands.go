package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/doccontrol/internal/cmd/base"
	"github.com/hashicorp-forge/doccontrol/internal/cmd/commands/evidence"
	"github.com/hashicorp-forge/doccontrol/internal/cmd/commands/notifyworker"
	"github.com/hashicorp-forge/doccontrol/internal/cmd/commands/operator"
	"github.com/hashicorp-forge/doccontrol/internal/cmd/commands/reindex"
	"github.com/hashicorp-forge/doccontrol/internal/cmd/commands/reviews"
	"github.com/hashicorp-forge/doccontrol/internal/cmd/commands/sweep"
	"github.com/hashicorp-forge/doccontrol/internal/cmd/commands/version"
)

// Commands is the mapping of all available doccontrol commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"evidence-report": func() (cli.Command, error) {
			return &evidence.Command{Command: b}, nil
		},
		"notify-worker": func() (cli.Command, error) {
			return &notifyworker.Command{Command: b}, nil
		},
		"operator": func() (cli.Command, error) {
			return &operator.Command{Command: b}, nil
		},
		"operator seed-types": func() (cli.Command, error) {
			return &operator.SeedTypesCommand{Command: b}, nil
		},
		"reindex": func() (cli.Command, error) {
			return &reindex.Command{Command: b}, nil
		},
		"reviews-due": func() (cli.Command, error) {
			return &reviews.Command{Command: b}, nil
		},
		"sweep": func() (cli.Command, error) {
			return &sweep.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
