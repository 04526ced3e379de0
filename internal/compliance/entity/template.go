package entity

import (
	"encoding/json"
	"time"
)

// Category frequencies. The first group auto-materializes on a calendar
// schedule; the second group is event-driven and only ever materialized on
// demand.
const (
	FrequencyDaily       = "daily"
	FrequencyWeekly      = "weekly"
	FrequencyMonthly     = "monthly"
	FrequencyQuarterly   = "quarterly"
	FrequencySixMonthly  = "six_monthly"
	FrequencyYearly      = "yearly"
	FrequencyEvery2Hours = "every_2_hours"

	FrequencyPerBatch    = "per_batch"
	FrequencyPerDelivery = "per_delivery"
	FrequencyContinuous  = "continuous"
	FrequencyAsNeeded    = "as_needed"
)

// TaskField types.
const (
	FieldTypeNumber         = "number"
	FieldTypeText           = "text"
	FieldTypeTemperature    = "temperature"
	FieldTypeYesNo          = "yes_no"
	FieldTypeDropdown       = "dropdown"
	FieldTypePhoto          = "photo"
	FieldTypeRepeatingGroup = "repeating_group"
)

// Defect promotion predicates for ValidationRules.CreateDefectIf.
const (
	DefectIfOutOfRange = "out_of_range"
	DefectIfEquals     = "equals"
)

// Category is a recurrence-bearing checklist template. A global category
// (IsGlobal, nil OrganizationID) is visible to every tenant; tenants opt in
// per site through SiteTask assignments. The recurrence anchors (weekday,
// day-of-month, month) default to the creation timestamp.
type Category struct {
	ID             string  `json:"id" gorm:"primaryKey;size:36"`
	OrganizationID *string `json:"organization_id" gorm:"size:36;index"`
	Name           string  `json:"name" gorm:"size:200;not null"`
	Description    string  `json:"description" gorm:"type:text"`
	Frequency      string  `json:"frequency" gorm:"size:20;not null;default:'daily'"`
	// OpensAt/ClosesAt are site-local HH:MM strings; ClosesAt is the
	// cutoff after which an incomplete instance goes overdue.
	OpensAt  *string `json:"opens_at" gorm:"size:5"`
	ClosesAt *string `json:"closes_at" gorm:"size:5"`
	IsGlobal bool    `json:"is_global" gorm:"default:false"`
	IsActive bool    `json:"is_active" gorm:"default:true;index"`

	CreatedBy string    `json:"created_by" gorm:"size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Tasks []Task `json:"tasks,omitempty" gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE"`
}

func (Category) TableName() string {
	return "categories"
}

// EventDriven reports whether the category is only ever materialized on
// demand rather than by the daily trigger.
func (c *Category) EventDriven() bool {
	switch c.Frequency {
	case FrequencyPerBatch, FrequencyPerDelivery, FrequencyContinuous, FrequencyAsNeeded:
		return true
	}
	return false
}

// Task is one unit of work inside a category. Simple forms live in the
// legacy FormConfig blob; HasDynamicForm tasks carry normalized TaskFields.
type Task struct {
	ID             string          `json:"id" gorm:"primaryKey;size:36"`
	CategoryID     string          `json:"category_id" gorm:"size:36;not null;index"`
	Name           string          `json:"name" gorm:"size:200;not null"`
	Description    string          `json:"description" gorm:"type:text"`
	OrderIndex     int             `json:"order_index" gorm:"default:0"`
	FormConfig     json.RawMessage `json:"form_config" gorm:"type:jsonb"`
	HasDynamicForm bool            `json:"has_dynamic_form" gorm:"default:false"`
	IsActive       bool            `json:"is_active" gorm:"default:true"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	Fields []TaskField `json:"fields,omitempty" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

func (Task) TableName() string {
	return "tasks"
}

// ValidationRules is the decoded shape of TaskField.ValidationRules.
type ValidationRules struct {
	Min            *float64 `json:"min,omitempty"`
	Max            *float64 `json:"max,omitempty"`
	Equals         *string  `json:"equals,omitempty"`
	CreateDefectIf string   `json:"create_defect_if,omitempty"`
	Severity       string   `json:"severity,omitempty"`
}

// ShowIf is the single-predicate visibility guard on a TaskField: the field
// is visible only when the referenced field's recorded answer equals Value.
type ShowIf struct {
	FieldID string `json:"field_id"`
	Value   string `json:"value"`
}

// TaskField is one input element of a task's dynamic form. Rules, options
// and the visibility guard are stored as jsonb.
type TaskField struct {
	ID              string          `json:"id" gorm:"primaryKey;size:36"`
	TaskID          string          `json:"task_id" gorm:"size:36;not null;index"`
	Label           string          `json:"label" gorm:"size:200;not null"`
	FieldType       string          `json:"field_type" gorm:"size:20;not null"`
	FieldOrder      int             `json:"field_order" gorm:"default:0"`
	IsRequired      bool            `json:"is_required" gorm:"default:false"`
	ValidationRules json.RawMessage `json:"validation_rules" gorm:"type:jsonb"`
	Options         json.RawMessage `json:"options" gorm:"type:jsonb"`
	ShowIf          json.RawMessage `json:"show_if" gorm:"type:jsonb"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (TaskField) TableName() string {
	return "task_fields"
}

// Rules decodes the validation rules; nil when the field has none.
func (f *TaskField) Rules() (*ValidationRules, error) {
	if len(f.ValidationRules) == 0 || string(f.ValidationRules) == "null" {
		return nil, nil
	}
	var r ValidationRules
	if err := json.Unmarshal(f.ValidationRules, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ShowIfCond decodes the visibility guard; nil when the field is
// unconditionally visible.
func (f *TaskField) ShowIfCond() (*ShowIf, error) {
	if len(f.ShowIf) == 0 || string(f.ShowIf) == "null" {
		return nil, nil
	}
	var s ShowIf
	if err := json.Unmarshal(f.ShowIf, &s); err != nil {
		return nil, err
	}
	if s.FieldID == "" {
		return nil, nil
	}
	return &s, nil
}

// OptionList decodes the dropdown enumeration.
func (f *TaskField) OptionList() ([]string, error) {
	if len(f.Options) == 0 || string(f.Options) == "null" {
		return nil, nil
	}
	var opts []string
	if err := json.Unmarshal(f.Options, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// SiteTask assigns a task template to a site. A task runs at a site only
// when this row exists.
type SiteTask struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	SiteID    string    `json:"site_id" gorm:"size:36;not null;uniqueIndex:idx_site_task"`
	TaskID    string    `json:"task_id" gorm:"size:36;not null;uniqueIndex:idx_site_task"`
	CreatedAt time.Time `json:"created_at"`
}

func (SiteTask) TableName() string {
	return "site_tasks"
}
