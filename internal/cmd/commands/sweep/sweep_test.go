package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/doccontrol/internal/cmd/base/basetest"
	"github.com/hashicorp-forge/doccontrol/pkg/database/dbtest"
	"github.com/hashicorp-forge/doccontrol/pkg/distribution"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/registry"
	"github.com/hashicorp-forge/doccontrol/pkg/review"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	dbtest.SeedTypes(t, db)

	past := func() time.Time { return time.Date(2020, 1, 6, 9, 0, 0, 0, time.UTC) }
	doc, err := registry.New(db, registry.WithClock(past)).CreateDocument(ctx, registry.CreateInput{
		CompanyID: "acme", TypeCode: "TRN", Title: "Orientation", Actor: "alice",
	})
	require.NoError(t, err)

	_, err = distribution.New(db, distribution.WithClock(past)).CreateAcknowledgmentRequirements(ctx,
		distribution.RequirementInput{DocumentID: doc.ID, WorkerIDs: []string{"w1", "w2"}})
	require.NoError(t, err)
	_, err = review.New(db, review.WithClock(past)).CreateReview(ctx, review.CreateInput{
		DocumentID: doc.ID, DueDate: past(), AssignedTo: "bob",
	})
	require.NoError(t, err)

	b, ui, path := basetest.New(t, db, "")
	cmd := &Command{Command: b}
	require.Equal(t, 0, cmd.Run([]string{"-config", path, "-remind"}), ui.ErrorWriter.String())

	out := ui.OutputWriter.String()
	assert.Contains(t, out, "Reviews marked overdue: 1")
	assert.Contains(t, out, "Acknowledgments marked overdue: 2")
	assert.Contains(t, out, "Workers reminded: 2")

	var acks []models.DocumentAcknowledgment
	require.NoError(t, db.Find(&acks, "document_id = ?", doc.ID).Error)
	require.Len(t, acks, 2)
	for _, a := range acks {
		assert.Equal(t, models.AcknowledgmentStatusOverdue, a.Status)
		assert.Equal(t, 1, a.ReminderCount)
	}

	// A second sweep finds nothing new; without -remind nobody is reminded.
	b, ui, path = basetest.New(t, db, "")
	cmd = &Command{Command: b}
	require.Equal(t, 0, cmd.Run([]string{"-config", path}))
	assert.Contains(t, ui.OutputWriter.String(), "Reviews marked overdue: 0")
	assert.NotContains(t, ui.OutputWriter.String(), "Workers reminded")
}
