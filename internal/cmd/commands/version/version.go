package version

import (
	"github.com/hashicorp-forge/doccontrol/internal/cmd/base"
	"github.com/hashicorp-forge/doccontrol/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the doccontrol version"
}

func (c *Command) Help() string {
	return "Usage: doccontrol version"
}

func (c *Command) Run(args []string) int {
	c.UI.Output("doccontrol " + version.Full())
	return 0
}
