// Package basetest builds commands for tests over an in-memory database.
package basetest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/internal/cmd/base"
	"github.com/hashicorp-forge/doccontrol/internal/config"
)

// New returns a command whose server uses db, a mock UI and the path of a
// config file holding hcl (plus a log level).
func New(t *testing.T, db *gorm.DB, hcl string) (*base.Command, *cli.MockUi, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "doccontrol.hcl")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"error\"\n"+hcl), 0o600))

	ui := cli.NewMockUi()
	c := base.NewCommand(hclog.NewNullLogger(), ui)
	c.OpenDB = func(*config.Config, hclog.Logger) (*gorm.DB, error) {
		return db, nil
	}
	return c, ui, path
}
