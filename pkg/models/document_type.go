package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultControlPrefix is the control-number prefix for types that do not
// set one.
const DefaultControlPrefix = "DOC"

// OptionalRolePrefix marks an approver role whose approval is not required.
const OptionalRolePrefix = "optional:"

// DocumentType is reference data describing how documents of a type are
// controlled.
type DocumentType struct {
	Code                  string      `gorm:"primaryKey;type:varchar(16)" json:"code"`
	Name                  string      `gorm:"type:varchar(200);not null" json:"name"`
	Description           string      `gorm:"type:text" json:"description,omitempty"`
	RequiresApproval      bool        `gorm:"not null;default:false" json:"requiresApproval"`
	ApproverRoles         StringArray `gorm:"type:text" json:"approverRoles"`
	ReviewFrequencyMonths int         `gorm:"not null;default:12" json:"reviewFrequencyMonths"`
	ControlPrefix         string      `gorm:"type:varchar(16);not null;default:'DOC'" json:"controlPrefix"`
	FileTypes             StringArray `gorm:"type:text" json:"fileTypes,omitempty"`
	CreatedAt             time.Time   `json:"createdAt"`
}

// TableName specifies the table name.
func (DocumentType) TableName() string {
	return "document_types"
}

// BeforeCreate normalizes the code and applies defaults.
func (dt *DocumentType) BeforeCreate(tx *gorm.DB) error {
	dt.Code = strings.ToUpper(strings.TrimSpace(dt.Code))
	if dt.ControlPrefix == "" {
		dt.ControlPrefix = DefaultControlPrefix
	}
	if dt.ReviewFrequencyMonths <= 0 {
		dt.ReviewFrequencyMonths = DefaultReviewFrequencyMonths
	}
	return nil
}

// FrequencyMonths returns the review frequency, falling back to the default.
func (dt *DocumentType) FrequencyMonths() int {
	if dt == nil || dt.ReviewFrequencyMonths <= 0 {
		return DefaultReviewFrequencyMonths
	}
	return dt.ReviewFrequencyMonths
}

// Prefix returns the control-number prefix, falling back to the default.
func (dt *DocumentType) Prefix() string {
	if dt == nil || dt.ControlPrefix == "" {
		return DefaultControlPrefix
	}
	return dt.ControlPrefix
}

// GetDocumentType loads a document type by code.
func GetDocumentType(db *gorm.DB, code string) (*DocumentType, error) {
	var dt DocumentType
	if err := db.Where("code = ?", strings.ToUpper(code)).First(&dt).Error; err != nil {
		return nil, err
	}
	return &dt, nil
}

// SeedDocumentTypes inserts the given types, leaving existing codes untouched.
// It returns the number of rows inserted.
func SeedDocumentTypes(db *gorm.DB, types []DocumentType) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}
	rows := make([]DocumentType, len(types))
	copy(rows, types)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	return res.RowsAffected, res.Error
}

// DefaultDocumentTypes returns the built-in document types for a health and
// safety management system.
func DefaultDocumentTypes() []DocumentType {
	return []DocumentType{
		{Code: "POL", Name: "Policy", RequiresApproval: true, ApproverRoles: StringArray{"supervisor", "manager"}, ReviewFrequencyMonths: 12},
		{Code: "HAZ", Name: "Hazard Assessment", RequiresApproval: true, ApproverRoles: StringArray{"supervisor"}, ReviewFrequencyMonths: 12},
		{Code: "SWP", Name: "Safe Work Practice", RequiresApproval: true, ApproverRoles: StringArray{"supervisor", "safety_coordinator"}, ReviewFrequencyMonths: 12},
		{Code: "SJP", Name: "Safe Job Procedure", RequiresApproval: true, ApproverRoles: StringArray{"supervisor", "safety_coordinator"}, ReviewFrequencyMonths: 12},
		{Code: "RUL", Name: "Company Safety Rules", RequiresApproval: true, ApproverRoles: StringArray{"manager"}, ReviewFrequencyMonths: 12},
		{Code: "PPE", Name: "Personal Protective Equipment Program", RequiresApproval: true, ApproverRoles: StringArray{"safety_coordinator"}, ReviewFrequencyMonths: 12},
		{Code: "MNT", Name: "Preventative Maintenance Program", ReviewFrequencyMonths: 12},
		{Code: "TRN", Name: "Training Record", ReviewFrequencyMonths: 24},
		{Code: "INS", Name: "Inspection Form", ReviewFrequencyMonths: 12},
		{Code: "INC", Name: "Incident Investigation", RequiresApproval: true, ApproverRoles: StringArray{"supervisor", "manager"}, ReviewFrequencyMonths: 12},
		{Code: "ERP", Name: "Emergency Response Plan", RequiresApproval: true, ApproverRoles: StringArray{"manager", "optional:safety_committee"}, ReviewFrequencyMonths: 12},
		{Code: "FRM", Name: "Form or Template", ReviewFrequencyMonths: 24},
		{Code: "MRV", Name: "Management Review", RequiresApproval: true, ApproverRoles: StringArray{"manager"}, ReviewFrequencyMonths: 12},
	}
}
