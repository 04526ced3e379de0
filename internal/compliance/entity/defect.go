package entity

import "time"

// Defect severities.
const (
	DefectSeverityCritical = "critical"
	DefectSeverityHigh     = "high"
	DefectSeverityMedium   = "medium"
	DefectSeverityLow      = "low"
)

// Defect statuses. Closure is monotone: open goes to closed exactly once.
const (
	DefectStatusOpen   = "open"
	DefectStatusClosed = "closed"
)

// Defect is an issue raised automatically by response validation or
// manually by a user. The checklist item reference is weak: the reporter
// and item links are SET NULL on delete so the audit record survives.
type Defect struct {
	ID              string  `json:"id" gorm:"primaryKey;size:36"`
	OrganizationID  string  `json:"organization_id" gorm:"size:36;not null;index"`
	SiteID          string  `json:"site_id" gorm:"size:36;not null;index"`
	ChecklistItemID *string `json:"checklist_item_id" gorm:"size:36;index"`
	ReportedByID    *string `json:"reported_by_id" gorm:"size:36"`

	Title       string `json:"title" gorm:"size:300;not null"`
	Description string `json:"description" gorm:"type:text"`
	// FieldLabel keys duplicate suppression for auto-raised defects: one
	// open defect per (checklist_item_id, field_label).
	FieldLabel string `json:"field_label" gorm:"size:200;index"`
	Severity   string `json:"severity" gorm:"size:16;not null;default:'medium'"`
	Status     string `json:"status" gorm:"size:16;not null;default:'open';index"`
	PhotoURL   string `json:"photo_url" gorm:"size:512"`

	ClosedAt   *time.Time `json:"closed_at"`
	ClosedBy   string     `json:"closed_by" gorm:"size:36"`
	CloseNotes string     `json:"close_notes" gorm:"type:text"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	ChecklistItem *ChecklistItem `json:"checklist_item,omitempty" gorm:"foreignKey:ChecklistItemID;constraint:OnDelete:SET NULL"`
}

func (Defect) TableName() string {
	return "defects"
}
