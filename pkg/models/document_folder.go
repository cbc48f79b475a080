package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentFolder is a node in a company's folder tree. Path is the
// materialized path ("/Policies/Corporate") and Depth is 0 for roots.
type DocumentFolder struct {
	ID            string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CompanyID     string      `gorm:"type:varchar(64);not null;index" json:"companyId"`
	ParentID      *string     `gorm:"type:varchar(36);index" json:"parentId,omitempty"`
	Name          string      `gorm:"type:varchar(255);not null" json:"name"`
	Description   string      `gorm:"type:text" json:"description,omitempty"`
	Path          string      `gorm:"type:varchar(2000);not null;index" json:"path"`
	Depth         int         `gorm:"not null;default:0" json:"depth"`
	DocumentTypes StringArray `gorm:"type:text" json:"documentTypes"`
	AuditElements StringArray `gorm:"type:text" json:"auditElements"`
	IsSystem      bool        `gorm:"not null;default:false" json:"isSystem"`
	IsVisible     bool        `gorm:"not null" json:"isVisible"`
	IsActive      bool        `gorm:"not null" json:"isActive"`
	SortOrder     int         `gorm:"not null;default:0" json:"sortOrder"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// TableName specifies the table name.
func (DocumentFolder) TableName() string {
	return "document_folders"
}

// BeforeCreate assigns an identifier.
func (f *DocumentFolder) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// GetFolder loads a folder by ID.
func GetFolder(db *gorm.DB, id string) (*DocumentFolder, error) {
	var f DocumentFolder
	if err := db.Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}
