package registry

import (
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/storage"
)

// CreateInput describes a new document.
type CreateInput struct {
	CompanyID   string
	TypeCode    string
	Title       string
	Description string

	FileRef  string
	FileType string

	Tags          []string
	AuditElements []string
	Applicability []string

	// FolderID files the document explicitly. When nil the deepest folder
	// linked to the document type is used.
	FolderID *string

	IsCritical             bool
	RequiresAcknowledgment bool
	EffectiveDate          *time.Time
	ExpiryDate             *time.Time

	// SupersedesID names the document this one replaces on activation.
	SupersedesID *string

	Actor string
}

// Validate checks the input fields.
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.CompanyID, validation.Required, validation.Length(1, 64)),
		validation.Field(&in.TypeCode, validation.Required, validation.Length(2, 16)),
		validation.Field(&in.Title, validation.Required, validation.Length(1, 500)),
		validation.Field(&in.FileRef, validation.Length(0, 1000)),
		validation.Field(&in.ExpiryDate, validation.By(after(in.EffectiveDate))),
	)
}

// UpdateInput changes document metadata. Nil fields are left unchanged.
type UpdateInput struct {
	Title       *string
	Description *string

	// FileRef replaces the document file; the file type follows the
	// extension and the text is marked stale for reindexing.
	FileRef *string

	Tags          []string
	Applicability []string

	// FolderID moves the document; a pointer to "" removes it from its
	// folder.
	FolderID *string

	IsCritical             *bool
	RequiresAcknowledgment *bool
	EffectiveDate          *time.Time
	ExpiryDate             *time.Time
	NextReviewDate         *time.Time

	Actor string
}

// Validate checks the input fields.
func (in UpdateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.When(in.Title != nil, validation.Required, validation.Length(1, 500))),
		validation.Field(&in.FileRef, validation.When(in.FileRef != nil, validation.Length(0, 1000))),
		validation.Field(&in.ExpiryDate, validation.By(after(in.EffectiveDate))),
	)
}

func after(start *time.Time) validation.RuleFunc {
	return func(v any) error {
		end, _ := v.(*time.Time)
		if start == nil || end == nil {
			return nil
		}
		if end.Before(*start) {
			return validation.NewError("validation_date_order", "must not be before the effective date")
		}
		return nil
	}
}

func (in UpdateInput) fields(now time.Time) map[string]any {
	f := map[string]any{}
	if in.Title != nil {
		f["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		f["description"] = *in.Description
	}
	if in.FileRef != nil {
		f["file_ref"] = *in.FileRef
		f["file_type"] = storage.Ext(*in.FileRef)
		f["file_updated_at"] = now
	}
	if in.Tags != nil {
		f["tags"] = models.StringArray{}.Union(in.Tags...)
	}
	if in.Applicability != nil {
		f["applicability"] = models.StringArray{}.Union(in.Applicability...)
	}
	if in.FolderID != nil {
		if *in.FolderID == "" {
			f["folder_id"] = nil
		} else {
			f["folder_id"] = *in.FolderID
		}
	}
	if in.IsCritical != nil {
		f["is_critical"] = *in.IsCritical
	}
	if in.RequiresAcknowledgment != nil {
		f["requires_acknowledgment"] = *in.RequiresAcknowledgment
	}
	if in.EffectiveDate != nil {
		f["effective_date"] = models.DateOnly(*in.EffectiveDate)
	}
	if in.ExpiryDate != nil {
		f["expiry_date"] = models.DateOnly(*in.ExpiryDate)
	}
	if in.NextReviewDate != nil {
		f["next_review_date"] = models.DateOnly(*in.NextReviewDate)
	}
	return f
}

// fieldNames lists the user-facing columns in fields, sorted.
func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		if k == "file_type" || k == "file_updated_at" {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
