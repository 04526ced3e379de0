package entity

import (
	"encoding/json"
	"strconv"
	"time"
)

// Checklist statuses.
const (
	ChecklistStatusPending    = "pending"
	ChecklistStatusInProgress = "in_progress"
	ChecklistStatusCompleted  = "completed"
	ChecklistStatusOverdue    = "overdue"
)

// Checklist is one dated execution of a category at a site. The
// (category_id, site_id, checklist_date) key is unique and doubles as the
// contention primitive for concurrent materialization.
type Checklist struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	OrganizationID string    `json:"organization_id" gorm:"size:36;not null;index"`
	CategoryID     string    `json:"category_id" gorm:"size:36;not null;uniqueIndex:idx_checklist_instance"`
	SiteID         string    `json:"site_id" gorm:"size:36;not null;uniqueIndex:idx_checklist_instance"`
	ChecklistDate  time.Time `json:"checklist_date" gorm:"type:date;not null;uniqueIndex:idx_checklist_instance"`

	Status               string `json:"status" gorm:"size:16;not null;default:'pending';index"`
	TotalItems           int    `json:"total_items" gorm:"not null;default:0"`
	CompletedItems       int    `json:"completed_items" gorm:"not null;default:0"`
	CompletionPercentage int    `json:"completion_percentage" gorm:"not null;default:0"`

	CompletedAt *time.Time `json:"completed_at"`
	CompletedBy string     `json:"completed_by" gorm:"size:36"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Category *Category       `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Site     *Site           `json:"site,omitempty" gorm:"foreignKey:SiteID"`
	Items    []ChecklistItem `json:"items,omitempty" gorm:"foreignKey:ChecklistID;constraint:OnDelete:CASCADE"`
}

func (Checklist) TableName() string {
	return "checklists"
}

// Terminal reports whether the checklist no longer accepts the overdue
// transition. Overdue itself is not terminal: late completion still wins.
func (c *Checklist) Terminal() bool {
	return c.Status == ChecklistStatusCompleted
}

// Percentage computes floor(100*completed/total), 0 when the checklist is
// empty.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return 100 * completed / total
}

// ChecklistItem is one task inside a checklist instance. ItemName is
// snapshotted from the task at materialization so the item survives
// template renames.
type ChecklistItem struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	ChecklistID string `json:"checklist_id" gorm:"size:36;not null;index"`
	TaskID      string `json:"task_id" gorm:"size:36;not null;index"`
	ItemName    string `json:"item_name" gorm:"size:200;not null"`
	OrderIndex  int    `json:"order_index" gorm:"default:0"`

	IsCompleted bool            `json:"is_completed" gorm:"default:false"`
	Notes       string          `json:"notes" gorm:"type:text"`
	ItemData    JSONB           `json:"item_data" gorm:"type:jsonb"`
	PhotoURL    string          `json:"photo_url" gorm:"size:512"`
	CompletedAt *time.Time      `json:"completed_at"`
	CompletedBy string          `json:"completed_by" gorm:"size:36"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Task      *Task               `json:"task,omitempty" gorm:"foreignKey:TaskID"`
	Responses []TaskFieldResponse `json:"responses,omitempty" gorm:"foreignKey:ChecklistItemID;constraint:OnDelete:CASCADE"`
}

func (ChecklistItem) TableName() string {
	return "checklist_items"
}

// TaskFieldResponse is one submitted answer for a task field within a
// checklist item. Value holds the coerced answer as a JSON payload; one row
// per (item, field).
type TaskFieldResponse struct {
	ID              string          `json:"id" gorm:"primaryKey;size:36"`
	ChecklistItemID string          `json:"checklist_item_id" gorm:"size:36;not null;uniqueIndex:idx_item_field"`
	TaskFieldID     string          `json:"task_field_id" gorm:"size:36;not null;uniqueIndex:idx_item_field"`
	Value           json.RawMessage `json:"value" gorm:"type:jsonb;not null"`
	SubmittedBy     string          `json:"submitted_by" gorm:"size:36"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (TaskFieldResponse) TableName() string {
	return "task_field_responses"
}

// StringValue renders the stored answer as a plain string, the form used by
// show_if comparison and defect titles.
func (r *TaskFieldResponse) StringValue() string {
	return RawValueString(r.Value)
}

// RawValueString normalizes a JSON scalar to its string form: strings are
// unquoted, numbers and booleans rendered as written.
func RawValueString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return string(raw)
}
