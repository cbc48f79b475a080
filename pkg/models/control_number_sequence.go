package models

import "time"

// ControlNumberSequence is the per-company, per-type counter backing control
// number allocation.
type ControlNumberSequence struct {
	CompanyID string    `gorm:"primaryKey;type:varchar(64)" json:"companyId"`
	TypeCode  string    `gorm:"primaryKey;type:varchar(16)" json:"typeCode"`
	LastValue int64     `gorm:"not null;default:0" json:"lastValue"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (ControlNumberSequence) TableName() string {
	return "control_number_sequences"
}
