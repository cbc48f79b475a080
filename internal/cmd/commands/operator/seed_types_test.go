package operator

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/doccontrol/internal/cmd/base/basetest"
	"github.com/hashicorp-forge/doccontrol/pkg/database/dbtest"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

const typesYAML = `
- code: pol
  name: Policy
  requiresApproval: true
  approverRoles: [supervisor, manager]
- code: WI
  name: Work Instruction
  reviewFrequencyMonths: 24
  controlPrefix: QMS
  fileTypes: [pdf]
`

func TestDecodeTypes(t *testing.T) {
	types, err := DecodeTypes(strings.NewReader(typesYAML))
	require.NoError(t, err)
	require.Len(t, types, 2)

	assert.Equal(t, "POL", types[0].Code)
	assert.True(t, types[0].RequiresApproval)
	assert.Equal(t, models.StringArray{"supervisor", "manager"}, types[0].ApproverRoles)
	assert.Equal(t, 24, types[1].ReviewFrequencyMonths)
	assert.Equal(t, "QMS", types[1].ControlPrefix)
	assert.Equal(t, models.StringArray{"pdf"}, types[1].FileTypes)

	_, err = DecodeTypes(strings.NewReader("- code: X\n  name: Y\n  colour: red\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = DecodeTypes(strings.NewReader("- name: No code\n"))
	assert.ErrorContains(t, err, "code and name are required")
}

func TestSeedTypesCommand(t *testing.T) {
	db := dbtest.New(t)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/types.yaml", []byte(typesYAML), 0o644))

	b, ui, path := basetest.New(t, db, "")
	cmd := &SeedTypesCommand{Command: b, FS: fs}
	code := cmd.Run([]string{"-config", path, "-types-file", "/types.yaml", "-companies", "acme, globex"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	out := ui.OutputWriter.String()
	assert.Contains(t, out, "Document types inserted: 2 of 2")
	assert.Contains(t, out, "System folders created for acme: 2")
	assert.Contains(t, out, "System folders created for globex: 2")

	var folders []models.DocumentFolder
	require.NoError(t, db.Order("name").Find(&folders, "company_id = ?", "acme").Error)
	require.Len(t, folders, 2)
	assert.Equal(t, "Policy", folders[0].Name)
	assert.True(t, folders[0].IsSystem)

	// Seeding again changes nothing.
	b, ui, path = basetest.New(t, db, "")
	cmd = &SeedTypesCommand{Command: b, FS: fs}
	require.Equal(t, 0, cmd.Run([]string{"-config", path, "-types-file", "/types.yaml", "-companies", "acme"}))
	assert.Contains(t, ui.OutputWriter.String(), "Document types inserted: 0 of 2")
	assert.Contains(t, ui.OutputWriter.String(), "System folders created for acme: 0")
}

func TestSeedTypesCommand_DryRun(t *testing.T) {
	b, ui, _ := basetest.New(t, dbtest.New(t), "")
	cmd := &SeedTypesCommand{Command: b}
	require.Equal(t, 0, cmd.Run([]string{"-dry-run"}))
	assert.Contains(t, ui.OutputWriter.String(), "POL")
	assert.Contains(t, ui.ErrorWriter.String(), "DRY RUN")
}
