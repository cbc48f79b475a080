package folder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/database/dbtest"
	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

func strPtr(s string) *string { return &s }

func setup(t *testing.T) (*gorm.DB, *Organizer) {
	t.Helper()
	db := dbtest.New(t)
	return db, New(db)
}

func mustCreate(t *testing.T, o *Organizer, in CreateInput) *models.DocumentFolder {
	t.Helper()
	if in.CompanyID == "" {
		in.CompanyID = "acme"
	}
	f, err := o.Create(context.Background(), in)
	require.NoError(t, err)
	return f
}

func TestCreate_PathsAndDepth(t *testing.T) {
	_, o := setup(t)

	root := mustCreate(t, o, CreateInput{Name: "Policies"})
	assert.Equal(t, "/Policies", root.Path)
	assert.Equal(t, 0, root.Depth)
	assert.Nil(t, root.ParentID)
	assert.True(t, root.IsActive)
	assert.True(t, root.IsVisible)

	child := mustCreate(t, o, CreateInput{ParentID: &root.ID, Name: "Corporate", DocumentTypes: []string{"POL", "POL"}})
	assert.Equal(t, "/Policies/Corporate", child.Path)
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, models.StringArray{"POL"}, child.DocumentTypes)

	grand := mustCreate(t, o, CreateInput{ParentID: &child.ID, Name: "Board"})
	assert.Equal(t, "/Policies/Corporate/Board", grand.Path)
	assert.Equal(t, 2, grand.Depth)
}

func TestCreate_Validation(t *testing.T) {
	_, o := setup(t)
	ctx := context.Background()
	root := mustCreate(t, o, CreateInput{Name: "Forms"})

	tests := []struct {
		name  string
		input CreateInput
		check func(error) bool
	}{
		{"empty name", CreateInput{CompanyID: "acme", Name: "  "}, docerr.IsInvalid},
		{"separator in name", CreateInput{CompanyID: "acme", Name: "a/b"}, docerr.IsInvalid},
		{"missing company", CreateInput{Name: "x"}, docerr.IsInvalid},
		{"missing parent", CreateInput{CompanyID: "acme", Name: "x", ParentID: strPtr("nope")}, docerr.IsNotFound},
		{"duplicate sibling", CreateInput{CompanyID: "acme", Name: "Forms"}, docerr.IsConflict},
		{"parent of other company", CreateInput{CompanyID: "other", Name: "x", ParentID: &root.ID}, docerr.IsPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Create(ctx, tt.input)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	// Same name under another company or another parent is fine.
	mustCreate(t, o, CreateInput{CompanyID: "other", Name: "Forms"})
	mustCreate(t, o, CreateInput{ParentID: &root.ID, Name: "Forms"})
}

func TestUpdate_RenameRewritesSubtree(t *testing.T) {
	_, o := setup(t)
	ctx := context.Background()

	a := mustCreate(t, o, CreateInput{Name: "Safe_Work"})
	b := mustCreate(t, o, CreateInput{ParentID: &a.ID, Name: "Electrical"})
	c := mustCreate(t, o, CreateInput{ParentID: &b.ID, Name: "Lockout"})
	// Matches "/Safe_Work/%" as a LIKE pattern but is not a descendant.
	other := mustCreate(t, o, CreateInput{Name: "SafeXWork"})
	mustCreate(t, o, CreateInput{ParentID: &other.ID, Name: "Keep"})

	updated, err := o.Update(ctx, a.ID, UpdateInput{Name: strPtr("Procedures"), Description: strPtr("SWPs")})
	require.NoError(t, err)
	assert.Equal(t, "/Procedures", updated.Path)
	assert.Equal(t, "SWPs", updated.Description)

	got, err := o.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "/Procedures/Electrical/Lockout", got.Path)
	assert.Equal(t, 2, got.Depth)

	folders, err := o.List(ctx, "acme")
	require.NoError(t, err)
	var paths []string
	for _, f := range folders {
		paths = append(paths, f.Path)
	}
	assert.Contains(t, paths, "/SafeXWork/Keep")

	hidden := false
	updated, err = o.Update(ctx, b.ID, UpdateInput{IsVisible: &hidden})
	require.NoError(t, err)
	assert.False(t, updated.IsVisible)
	assert.Equal(t, "/Procedures/Electrical", updated.Path)

	_, err = o.Update(ctx, b.ID, UpdateInput{Name: strPtr("bad/name")})
	assert.True(t, docerr.IsInvalid(err))
}

func TestMove(t *testing.T) {
	_, o := setup(t)
	ctx := context.Background()

	a := mustCreate(t, o, CreateInput{Name: "A"})
	b := mustCreate(t, o, CreateInput{ParentID: &a.ID, Name: "B"})
	c := mustCreate(t, o, CreateInput{ParentID: &b.ID, Name: "C"})
	x := mustCreate(t, o, CreateInput{Name: "X"})

	t.Run("into own descendant is rejected", func(t *testing.T) {
		_, err := o.Move(ctx, a.ID, &c.ID)
		assert.True(t, docerr.IsPrecondition(err))
		_, err = o.Move(ctx, a.ID, &a.ID)
		assert.True(t, docerr.IsPrecondition(err))
	})

	t.Run("subtree moves with paths and depths", func(t *testing.T) {
		moved, err := o.Move(ctx, b.ID, &x.ID)
		require.NoError(t, err)
		assert.Equal(t, "/X/B", moved.Path)
		assert.Equal(t, 1, moved.Depth)
		require.NotNil(t, moved.ParentID)
		assert.Equal(t, x.ID, *moved.ParentID)

		got, err := o.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "/X/B/C", got.Path)
		assert.Equal(t, 2, got.Depth)
	})

	t.Run("to root", func(t *testing.T) {
		moved, err := o.Move(ctx, c.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, "/C", moved.Path)
		assert.Equal(t, 0, moved.Depth)
		assert.Nil(t, moved.ParentID)
	})

	t.Run("name clash at destination", func(t *testing.T) {
		mustCreate(t, o, CreateInput{ParentID: &a.ID, Name: "C"})
		_, err := o.Move(ctx, c.ID, &a.ID)
		assert.True(t, docerr.IsConflict(err))
	})
}

func TestDelete(t *testing.T) {
	db, o := setup(t)
	ctx := context.Background()

	sys := mustCreate(t, o, CreateInput{Name: "Policies", IsSystem: true})
	parent := mustCreate(t, o, CreateInput{Name: "Site"})
	child := mustCreate(t, o, CreateInput{ParentID: &parent.ID, Name: "Yard"})

	assert.True(t, docerr.IsPrecondition(o.Delete(ctx, sys.ID)))
	assert.True(t, docerr.IsPrecondition(o.Delete(ctx, parent.ID)))
	assert.True(t, docerr.IsNotFound(o.Delete(ctx, "missing")))

	doc := &models.Document{CompanyID: "acme", ControlNumber: "DOC-FRM-0001", TypeCode: "FRM", Title: "Yard checklist", FolderID: &child.ID}
	require.NoError(t, db.Create(doc).Error)

	require.NoError(t, o.Delete(ctx, child.ID))

	live, err := models.GetDocument(db, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, live.FolderID)
	assert.Equal(t, parent.ID, *live.FolderID)

	_, err = o.Get(ctx, child.ID)
	assert.True(t, docerr.IsNotFound(err))

	// Now empty, the parent can go too; its document becomes unfiled.
	require.NoError(t, o.Delete(ctx, parent.ID))
	live, err = models.GetDocument(db, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, live.FolderID)
}

func TestAssignDocumentAndTree(t *testing.T) {
	db, o := setup(t)
	ctx := context.Background()

	pol := mustCreate(t, o, CreateInput{Name: "Policies", DocumentTypes: []string{"POL"}, SortOrder: 1})
	corp := mustCreate(t, o, CreateInput{ParentID: &pol.ID, Name: "Corporate", DocumentTypes: []string{"POL"}})
	forms := mustCreate(t, o, CreateInput{Name: "Forms", SortOrder: 0})
	mustCreate(t, o, CreateInput{Name: "Drafts", Hidden: true})

	doc := &models.Document{CompanyID: "acme", ControlNumber: "DOC-POL-0001", TypeCode: "POL", Title: "H&S Policy"}
	require.NoError(t, db.Create(doc).Error)

	got, err := o.AssignDocument(ctx, doc.ID, &corp.ID, "admin")
	require.NoError(t, err)
	require.NotNil(t, got.FolderID)
	assert.Equal(t, corp.ID, *got.FolderID)
	assert.Equal(t, int64(1), got.LockVersion)
	last := got.AuditTrail[len(got.AuditTrail)-1]
	assert.Equal(t, "filed in /Policies/Corporate", last.Note)

	otherCo := mustCreate(t, o, CreateInput{CompanyID: "other", Name: "Elsewhere"})
	_, err = o.AssignDocument(ctx, doc.ID, &otherCo.ID, "admin")
	assert.True(t, docerr.IsPrecondition(err))

	match, err := o.ForDocumentType(ctx, nil, "acme", "pol")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, corp.ID, match.ID)

	none, err := o.ForDocumentType(ctx, nil, "acme", "HAZ")
	require.NoError(t, err)
	assert.Nil(t, none)

	tree, err := o.Tree(ctx, "acme", false)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, forms.ID, tree[0].Folder.ID)
	assert.Equal(t, pol.ID, tree[1].Folder.ID)
	require.Len(t, tree[1].Children, 1)
	assert.Equal(t, int64(1), tree[1].Children[0].DocumentCount)
	assert.Zero(t, tree[1].DocumentCount)

	all, err := o.Tree(ctx, "acme", true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err = o.AssignDocument(ctx, doc.ID, nil, "admin")
	require.NoError(t, err)
	assert.Nil(t, got.FolderID)
}

func TestSeedSystemFolders(t *testing.T) {
	_, o := setup(t)
	ctx := context.Background()
	types := []models.DocumentType{
		{Code: "POL", Name: "Policies"},
		{Code: "SWP", Name: "Safe Work Procedures"},
	}

	created, err := o.SeedSystemFolders(ctx, "acme", types)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.True(t, created[0].IsSystem)
	assert.Equal(t, models.StringArray{"POL"}, created[0].DocumentTypes)

	again, err := o.SeedSystemFolders(ctx, "acme", types)
	require.NoError(t, err)
	assert.Empty(t, again)

	_, err = o.Update(ctx, created[1].ID, UpdateInput{Name: strPtr("SWPs")})
	assert.True(t, docerr.IsPrecondition(err))
}
