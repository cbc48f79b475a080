package evidence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/doccontrol/internal/cmd/base/basetest"
	"github.com/hashicorp-forge/doccontrol/pkg/database/dbtest"
	ev "github.com/hashicorp-forge/doccontrol/pkg/evidence"
	"github.com/hashicorp-forge/doccontrol/pkg/registry"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	dbtest.SeedTypes(t, db)

	_, err := registry.New(db).CreateDocument(ctx, registry.CreateInput{
		CompanyID: "acme", TypeCode: "MNT", Title: "Compressor maintenance", Actor: "alice",
	})
	require.NoError(t, err)

	t.Run("element json", func(t *testing.T) {
		b, ui, path := basetest.New(t, db, "")
		cmd := &Command{Command: b}
		require.Equal(t, 0, cmd.Run([]string{"-config", path, "-company", "acme", "-element", "7", "-json"}), ui.ErrorWriter.String())

		var report ev.ElementReport
		require.NoError(t, json.Unmarshal([]byte(ui.OutputWriter.String()), &report))
		assert.Equal(t, "7", report.Element)
		require.Len(t, report.Documents, 1)
		assert.Equal(t, "DOC-MNT-0001", report.Documents[0].ControlNumber)
	})

	t.Run("coverage text", func(t *testing.T) {
		b, ui, path := basetest.New(t, db, "")
		cmd := &Command{Command: b}
		require.Equal(t, 0, cmd.Run([]string{"-config", path, "-company", "acme"}), ui.ErrorWriter.String())
		out := ui.OutputWriter.String()
		assert.Contains(t, out, "Preventative Maintenance")
		assert.Contains(t, out, "DOC-MNT-0001")
		assert.Contains(t, out, "average coverage")
	})

	t.Run("company required", func(t *testing.T) {
		b, ui, path := basetest.New(t, db, "")
		cmd := &Command{Command: b}
		assert.Equal(t, 1, cmd.Run([]string{"-config", path}))
		assert.Contains(t, ui.ErrorWriter.String(), "company flag is required")
	})
}
