// Package folder maintains each company's folder tree. Folders classify
// documents and are independent of the document lifecycle.
package folder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/lifecycle"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

// Separator joins folder names in a path.
const Separator = "/"

// CreateInput describes a new folder.
type CreateInput struct {
	CompanyID     string
	ParentID      *string
	Name          string
	Description   string
	DocumentTypes []string
	AuditElements []string
	IsSystem      bool
	Hidden        bool
	SortOrder     int
}

// Validate checks the input fields.
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.CompanyID, validation.Required, validation.Length(1, 64)),
		validation.Field(&in.Name, nameRules...),
	)
}

// UpdateInput changes folder attributes. Nil fields are left unchanged.
type UpdateInput struct {
	Name          *string
	Description   *string
	DocumentTypes []string
	AuditElements []string
	SortOrder     *int
	IsVisible     *bool
	IsActive      *bool
}

// Validate checks the input fields.
func (in UpdateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.When(in.Name != nil, nameRules...)),
	)
}

var nameRules = []validation.Rule{
	validation.Required,
	validation.Length(1, 255),
	validation.By(noSeparator),
}

func noSeparator(v any) error {
	var s string
	switch n := v.(type) {
	case string:
		s = n
	case *string:
		if n != nil {
			s = *n
		}
	}
	if strings.Contains(s, Separator) {
		return fmt.Errorf("must not contain %q", Separator)
	}
	return nil
}

// Node is a folder with its children and the number of documents filed
// directly in it.
type Node struct {
	Folder        models.DocumentFolder `json:"folder"`
	DocumentCount int64                 `json:"documentCount"`
	Children      []*Node               `json:"children"`
}

// Organizer manages folders.
type Organizer struct {
	db     *gorm.DB
	logger hclog.Logger
	now    func() time.Time
}

// Option is a functional option for creating an Organizer.
type Option func(*Organizer)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(o *Organizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Organizer.
func New(db *gorm.DB, opts ...Option) *Organizer {
	o := &Organizer{
		db:     db,
		logger: hclog.NewNullLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("folder")
	return o
}

func childPath(parent *models.DocumentFolder, name string) (string, int) {
	if parent == nil {
		return Separator + name, 0
	}
	return parent.Path + Separator + name, parent.Depth + 1
}

func siblings(tx *gorm.DB, companyID string, parentID *string) *gorm.DB {
	q := tx.Model(&models.DocumentFolder{}).Where("company_id = ?", companyID)
	if parentID == nil {
		return q.Where("parent_id IS NULL")
	}
	return q.Where("parent_id = ?", *parentID)
}

func checkUniqueName(tx *gorm.DB, op, companyID string, parentID *string, name, excludeID string) error {
	q := siblings(tx, companyID, parentID).Where("name = ?", name)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return docerr.FromDB(op, "document_folder", name, err)
	}
	if n > 0 {
		return docerr.Conflict(op, "document_folder", name,
			fmt.Errorf("a folder named %q already exists here", name))
	}
	return nil
}

func load(tx *gorm.DB, op, id string) (*models.DocumentFolder, error) {
	f, err := models.GetFolder(tx, id)
	if err != nil {
		return nil, docerr.FromDB(op, "document_folder", id, err)
	}
	return f, nil
}

// Create adds a folder under ParentID, or as a root when ParentID is nil.
func (o *Organizer) Create(ctx context.Context, in CreateInput) (*models.DocumentFolder, error) {
	const op = "folder.Create"

	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, docerr.Invalid(op, err)
	}

	var f *models.DocumentFolder
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent *models.DocumentFolder
		if in.ParentID != nil {
			var err error
			if parent, err = load(tx, op, *in.ParentID); err != nil {
				return err
			}
			if parent.CompanyID != in.CompanyID {
				return docerr.Precondition(op, "document_folder", parent.ID, "parent belongs to another company")
			}
			if !parent.IsActive {
				return docerr.Precondition(op, "document_folder", parent.ID, "parent folder is inactive")
			}
		}
		if err := checkUniqueName(tx, op, in.CompanyID, in.ParentID, in.Name, ""); err != nil {
			return err
		}

		path, depth := childPath(parent, in.Name)
		f = &models.DocumentFolder{
			CompanyID:     in.CompanyID,
			ParentID:      in.ParentID,
			Name:          in.Name,
			Description:   in.Description,
			Path:          path,
			Depth:         depth,
			DocumentTypes: models.StringArray{}.Union(in.DocumentTypes...),
			AuditElements: models.StringArray{}.Union(in.AuditElements...),
			IsSystem:      in.IsSystem,
			IsVisible:     !in.Hidden,
			IsActive:      true,
			SortOrder:     in.SortOrder,
		}
		return docerr.FromDB(op, "document_folder", in.Name, tx.Create(f).Error)
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("created folder", "folder_id", f.ID, "company_id", f.CompanyID, "path", f.Path)
	return f, nil
}

// Get loads a folder.
func (o *Organizer) Get(ctx context.Context, id string) (*models.DocumentFolder, error) {
	return load(o.db.WithContext(ctx), "folder.Get", id)
}

// List returns a company's folders ordered by path.
func (o *Organizer) List(ctx context.Context, companyID string) ([]models.DocumentFolder, error) {
	var folders []models.DocumentFolder
	err := o.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("path ASC").
		Find(&folders).Error
	if err != nil {
		return nil, docerr.FromDB("folder.List", "document_folder", companyID, err)
	}
	return folders, nil
}

// descendants returns every folder below f.
func descendants(tx *gorm.DB, f *models.DocumentFolder) ([]models.DocumentFolder, error) {
	var candidates []models.DocumentFolder
	err := tx.Where("company_id = ? AND path LIKE ?", f.CompanyID, f.Path+Separator+"%").
		Order("depth ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	// LIKE treats _ and % in names as wildcards.
	out := candidates[:0]
	for _, c := range candidates {
		if strings.HasPrefix(c.Path, f.Path+Separator) {
			out = append(out, c)
		}
	}
	return out, nil
}

// rebase rewrites the path and depth of f and its subtree after f moves to
// newPath at newDepth.
func (o *Organizer) rebase(tx *gorm.DB, f *models.DocumentFolder, newPath string, newDepth int, extra map[string]any) error {
	subtree, err := descendants(tx, f)
	if err != nil {
		return err
	}

	now := o.now().UTC()
	updates := map[string]any{
		"path":       newPath,
		"depth":      newDepth,
		"updated_at": now,
	}
	for k, v := range extra {
		updates[k] = v
	}
	if err := tx.Model(&models.DocumentFolder{}).Where("id = ?", f.ID).Updates(updates).Error; err != nil {
		return err
	}

	delta := newDepth - f.Depth
	for _, d := range subtree {
		err := tx.Model(&models.DocumentFolder{}).Where("id = ?", d.ID).Updates(map[string]any{
			"path":       newPath + strings.TrimPrefix(d.Path, f.Path),
			"depth":      d.Depth + delta,
			"updated_at": now,
		}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// Update changes folder attributes. Renaming rewrites the paths of the
// whole subtree. System folders cannot be renamed.
func (o *Organizer) Update(ctx context.Context, id string, in UpdateInput) (*models.DocumentFolder, error) {
	const op = "folder.Update"

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
	if err := in.Validate(); err != nil {
		return nil, docerr.Invalid(op, err)
	}

	var f *models.DocumentFolder
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if f, err = load(tx, op, id); err != nil {
			return err
		}

		updates := map[string]any{"updated_at": o.now().UTC()}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.DocumentTypes != nil {
			updates["document_types"] = models.StringArray{}.Union(in.DocumentTypes...)
		}
		if in.AuditElements != nil {
			updates["audit_elements"] = models.StringArray{}.Union(in.AuditElements...)
		}
		if in.SortOrder != nil {
			updates["sort_order"] = *in.SortOrder
		}
		if in.IsVisible != nil {
			updates["is_visible"] = *in.IsVisible
		}
		if in.IsActive != nil {
			updates["is_active"] = *in.IsActive
		}

		if in.Name != nil && *in.Name != f.Name {
			if f.IsSystem {
				return docerr.Precondition(op, "document_folder", f.ID, "system folders cannot be renamed")
			}
			if err := checkUniqueName(tx, op, f.CompanyID, f.ParentID, *in.Name, f.ID); err != nil {
				return err
			}
			var parent *models.DocumentFolder
			if f.ParentID != nil {
				if parent, err = load(tx, op, *f.ParentID); err != nil {
					return err
				}
			}
			updates["name"] = *in.Name
			path, depth := childPath(parent, *in.Name)
			if err := o.rebase(tx, f, path, depth, updates); err != nil {
				return docerr.FromDB(op, "document_folder", f.ID, err)
			}
		} else if err := tx.Model(&models.DocumentFolder{}).Where("id = ?", f.ID).Updates(updates).Error; err != nil {
			return docerr.FromDB(op, "document_folder", f.ID, err)
		}

		f, err = load(tx, op, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Move reparents a folder. A nil parent makes it a root. Moving a folder
// below itself or one of its descendants is rejected.
func (o *Organizer) Move(ctx context.Context, id string, newParentID *string) (*models.DocumentFolder, error) {
	const op = "folder.Move"

	var f *models.DocumentFolder
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if f, err = load(tx, op, id); err != nil {
			return err
		}
		if f.IsSystem {
			return docerr.Precondition(op, "document_folder", f.ID, "system folders cannot be moved")
		}

		var parent *models.DocumentFolder
		if newParentID != nil {
			if *newParentID == f.ID {
				return docerr.Precondition(op, "document_folder", f.ID, "a folder cannot be its own parent")
			}
			if parent, err = load(tx, op, *newParentID); err != nil {
				return err
			}
			if parent.CompanyID != f.CompanyID {
				return docerr.Precondition(op, "document_folder", parent.ID, "parent belongs to another company")
			}
			if err := checkAcyclic(tx, op, f, parent); err != nil {
				return err
			}
		}
		if err := checkUniqueName(tx, op, f.CompanyID, newParentID, f.Name, f.ID); err != nil {
			return err
		}

		path, depth := childPath(parent, f.Name)
		if err := o.rebase(tx, f, path, depth, map[string]any{"parent_id": newParentID}); err != nil {
			return docerr.FromDB(op, "document_folder", f.ID, err)
		}
		f, err = load(tx, op, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("moved folder", "folder_id", f.ID, "path", f.Path)
	return f, nil
}

// checkAcyclic walks up from parent and fails if it reaches f.
func checkAcyclic(tx *gorm.DB, op string, f, parent *models.DocumentFolder) error {
	seen := map[string]bool{}
	for cur := parent; cur != nil; {
		if cur.ID == f.ID {
			return docerr.Precondition(op, "document_folder", f.ID,
				"moving under %s would create a cycle", parent.Path)
		}
		if seen[cur.ID] {
			return docerr.Precondition(op, "document_folder", cur.ID, "folder tree already contains a cycle")
		}
		seen[cur.ID] = true
		if cur.ParentID == nil {
			return nil
		}
		next, err := load(tx, op, *cur.ParentID)
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// Delete removes an empty folder. Documents filed in it move to its parent.
// System folders and folders with subfolders cannot be deleted.
func (o *Organizer) Delete(ctx context.Context, id string) error {
	const op = "folder.Delete"

	var moved int64
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := load(tx, op, id)
		if err != nil {
			return err
		}
		if f.IsSystem {
			return docerr.Precondition(op, "document_folder", f.ID, "system folders cannot be deleted")
		}
		var children int64
		if err := tx.Model(&models.DocumentFolder{}).Where("parent_id = ?", f.ID).Count(&children).Error; err != nil {
			return docerr.FromDB(op, "document_folder", f.ID, err)
		}
		if children > 0 {
			return docerr.Precondition(op, "document_folder", f.ID, "folder has %d subfolders", children)
		}

		res := tx.Model(&models.Document{}).
			Where("folder_id = ?", f.ID).
			Updates(map[string]any{
				"folder_id":    f.ParentID,
				"lock_version": gorm.Expr("lock_version + 1"),
				"updated_at":   o.now().UTC(),
			})
		if res.Error != nil {
			return docerr.FromDB(op, "document", f.ID, res.Error)
		}
		moved = res.RowsAffected

		return docerr.FromDB(op, "document_folder", f.ID, tx.Delete(f).Error)
	})
	if err != nil {
		return err
	}

	o.logger.Info("deleted folder", "folder_id", id, "documents_moved", moved)
	return nil
}

// AssignDocument files a document in a folder, or unfiles it when folderID
// is nil. The change is recorded in the document's audit trail.
func (o *Organizer) AssignDocument(ctx context.Context, documentID string, folderID *string, actor string) (*models.Document, error) {
	const op = "folder.AssignDocument"

	var doc *models.Document
	err := lifecycle.RetryConflicts(ctx, func() error {
		return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			if doc, err = lifecycle.Load(ctx, tx, op, documentID); err != nil {
				return err
			}
			note := "removed from folder"
			if folderID != nil {
				f, err := load(tx, op, *folderID)
				if err != nil {
					return err
				}
				if f.CompanyID != doc.CompanyID {
					return docerr.Precondition(op, "document_folder", f.ID, "folder belongs to another company")
				}
				if !f.IsActive {
					return docerr.Precondition(op, "document_folder", f.ID, "folder is inactive")
				}
				note = "filed in " + f.Path
			}
			return lifecycle.Apply(ctx, tx, doc, lifecycle.Change{
				Actor:  actor,
				Action: lifecycle.ActionUpdated,
				Note:   note,
				Fields: map[string]any{"folder_id": folderID},
				At:     o.now().UTC(),
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ForDocumentType returns the deepest active folder linked to typeCode, or
// nil when none is.
func (o *Organizer) ForDocumentType(ctx context.Context, tx *gorm.DB, companyID, typeCode string) (*models.DocumentFolder, error) {
	if tx == nil {
		tx = o.db
	}
	var f models.DocumentFolder
	err := tx.WithContext(ctx).
		Where("company_id = ? AND is_active = ? AND document_types LIKE ?",
			companyID, true, models.JSONContainsPattern(strings.ToUpper(typeCode))).
		Order("depth DESC, sort_order ASC, path ASC").
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, docerr.FromDB("folder.ForDocumentType", "document_folder", typeCode, err)
	}
	return &f, nil
}

// Tree returns a company's folders as a forest ordered by sort order and
// name. Hidden folders and their subtrees are left out unless includeHidden
// is set.
func (o *Organizer) Tree(ctx context.Context, companyID string, includeHidden bool) ([]*Node, error) {
	const op = "folder.Tree"

	folders, err := o.List(ctx, companyID)
	if err != nil {
		return nil, err
	}

	var counts []struct {
		FolderID string
		N        int64
	}
	err = o.db.WithContext(ctx).
		Model(&models.Document{}).
		Select("folder_id, COUNT(*) AS n").
		Where("company_id = ? AND folder_id IS NOT NULL", companyID).
		Group("folder_id").
		Scan(&counts).Error
	if err != nil {
		return nil, docerr.FromDB(op, "document", companyID, err)
	}
	byFolder := make(map[string]int64, len(counts))
	for _, c := range counts {
		byFolder[c.FolderID] = c.N
	}

	// Folders are ordered by path, so parents come before children.
	nodes := make(map[string]*Node, len(folders))
	var roots []*Node
	for _, f := range folders {
		if !f.IsVisible && !includeHidden {
			continue
		}
		n := &Node{Folder: f, DocumentCount: byFolder[f.ID]}
		nodes[f.ID] = n
		if f.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		if parent, ok := nodes[*f.ParentID]; ok {
			parent.Children = append(parent.Children, n)
		}
	}
	sortNodes(roots)
	return roots, nil
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Folder.SortOrder != nodes[j].Folder.SortOrder {
			return nodes[i].Folder.SortOrder < nodes[j].Folder.SortOrder
		}
		return nodes[i].Folder.Name < nodes[j].Folder.Name
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// SeedSystemFolders creates one root system folder per document type,
// linked to that type. Existing folders are left untouched. It returns the
// folders that were created.
func (o *Organizer) SeedSystemFolders(ctx context.Context, companyID string, types []models.DocumentType) ([]models.DocumentFolder, error) {
	var created []models.DocumentFolder
	for i, dt := range types {
		var n int64
		err := siblings(o.db.WithContext(ctx), companyID, nil).Where("name = ?", dt.Name).Count(&n).Error
		if err != nil {
			return created, docerr.FromDB("folder.SeedSystemFolders", "document_folder", dt.Name, err)
		}
		if n > 0 {
			continue
		}
		f, err := o.Create(ctx, CreateInput{
			CompanyID:     companyID,
			Name:          dt.Name,
			Description:   dt.Description,
			DocumentTypes: []string{dt.Code},
			IsSystem:      true,
			SortOrder:     i,
		})
		if err != nil {
			return created, err
		}
		created = append(created, *f)
	}
	return created, nil
}
