package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zynthio/zynthio/internal/compliance/entity"
	"github.com/zynthio/zynthio/internal/compliance/repository"
)

// TemplateService is the template store: the catalog of categories, tasks,
// task fields and per-site assignments, plus the due-category resolution
// built on top of it.
type TemplateService struct {
	repos *repository.Repositories
}

func NewTemplateService(repos *repository.Repositories) *TemplateService {
	return &TemplateService{repos: repos}
}

// mapRepoErr lifts repository sentinels into the service taxonomy.
func mapRepoErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrConflict
	}
	return err
}

// ListDueCategories returns the categories that fire for the site on the
// given date: active, scoped to the organization (or global), and due per
// their frequency. Event-driven categories are never in this set.
func (s *TemplateService) ListDueCategories(ctx context.Context, orgID, siteID string, date time.Time) ([]entity.Category, error) {
	site, err := s.repos.Organization.FindSite(ctx, siteID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if site.OrganizationID != orgID {
		return nil, fmt.Errorf("site %s: %w", siteID, ErrPermissionDenied)
	}

	cats, err := s.repos.Template.ListActiveCategories(ctx, orgID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	due := make([]entity.Category, 0, len(cats))
	for _, cat := range cats {
		if DueOn(&cat, date) {
			due = append(due, cat)
		}
	}
	return due, nil
}

// TasksForCategoryAtSite returns the category's tasks assigned to the site,
// in template order.
func (s *TemplateService) TasksForCategoryAtSite(ctx context.Context, categoryID, siteID string) ([]entity.Task, error) {
	if _, err := s.repos.Template.FindCategory(ctx, categoryID); err != nil {
		return nil, mapRepoErr(err)
	}
	tasks, err := s.repos.Template.TasksForCategoryAtSite(ctx, categoryID, siteID)
	return tasks, mapRepoErr(err)
}

// FieldsForTask returns the task's form fields ordered by field_order.
func (s *TemplateService) FieldsForTask(ctx context.Context, taskID string) ([]entity.TaskField, error) {
	if _, err := s.repos.Template.FindTask(ctx, taskID); err != nil {
		return nil, mapRepoErr(err)
	}
	fields, err := s.repos.Template.FieldsForTask(ctx, taskID)
	return fields, mapRepoErr(err)
}

// ----- catalog administration -----

type CreateCategoryRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Frequency   string  `json:"frequency" binding:"required"`
	OpensAt     *string `json:"opens_at"`
	ClosesAt    *string `json:"closes_at"`
}

var validFrequencies = map[string]bool{
	entity.FrequencyDaily:       true,
	entity.FrequencyWeekly:      true,
	entity.FrequencyMonthly:     true,
	entity.FrequencyQuarterly:   true,
	entity.FrequencySixMonthly:  true,
	entity.FrequencyYearly:      true,
	entity.FrequencyEvery2Hours: true,
	entity.FrequencyPerBatch:    true,
	entity.FrequencyPerDelivery: true,
	entity.FrequencyContinuous:  true,
	entity.FrequencyAsNeeded:    true,
}

func (s *TemplateService) CreateCategory(ctx context.Context, orgID, userID string, req *CreateCategoryRequest) (*entity.Category, error) {
	ve := NewValidationError()
	if !validFrequencies[req.Frequency] {
		ve.Add("frequency", "unknown frequency: "+req.Frequency)
	}
	for _, tod := range []struct {
		name  string
		value *string
	}{{"opens_at", req.OpensAt}, {"closes_at", req.ClosesAt}} {
		if tod.value != nil {
			if _, _, ok := parseClockTime(*tod.value); !ok {
				ve.Add(tod.name, "expected HH:MM")
			}
		}
	}
	if !ve.Empty() {
		return nil, ve
	}

	cat := &entity.Category{
		ID:             uuid.New().String(),
		OrganizationID: &orgID,
		Name:           req.Name,
		Description:    req.Description,
		Frequency:      req.Frequency,
		OpensAt:        req.OpensAt,
		ClosesAt:       req.ClosesAt,
		IsActive:       true,
		CreatedBy:      userID,
	}
	if err := s.repos.Template.CreateCategory(ctx, cat); err != nil {
		return nil, fmt.Errorf("create category: %w", mapRepoErr(err))
	}
	return cat, nil
}

type UpdateCategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Frequency   *string `json:"frequency"`
	OpensAt     *string `json:"opens_at"`
	ClosesAt    *string `json:"closes_at"`
	IsActive    *bool   `json:"is_active"`
}

// UpdateCategory edits a tenant-owned category. Existing checklist
// instances keep their snapshotted item names; only future materialization
// sees the change.
func (s *TemplateService) UpdateCategory(ctx context.Context, orgID, categoryID string, req *UpdateCategoryRequest) (*entity.Category, error) {
	cat, err := s.ownedCategory(ctx, orgID, categoryID)
	if err != nil {
		return nil, err
	}

	ve := NewValidationError()
	if req.Frequency != nil && !validFrequencies[*req.Frequency] {
		ve.Add("frequency", "unknown frequency: "+*req.Frequency)
	}
	for _, tod := range []struct {
		name  string
		value *string
	}{{"opens_at", req.OpensAt}, {"closes_at", req.ClosesAt}} {
		if tod.value != nil && *tod.value != "" {
			if _, _, ok := parseClockTime(*tod.value); !ok {
				ve.Add(tod.name, "expected HH:MM")
			}
		}
	}
	if !ve.Empty() {
		return nil, ve
	}

	if req.Name != nil {
		cat.Name = *req.Name
	}
	if req.Description != nil {
		cat.Description = *req.Description
	}
	if req.Frequency != nil {
		cat.Frequency = *req.Frequency
	}
	if req.OpensAt != nil {
		cat.OpensAt = req.OpensAt
	}
	if req.ClosesAt != nil {
		cat.ClosesAt = req.ClosesAt
	}
	if req.IsActive != nil {
		cat.IsActive = *req.IsActive
	}
	if err := s.repos.Template.UpdateCategory(ctx, cat); err != nil {
		return nil, fmt.Errorf("update category: %w", mapRepoErr(err))
	}
	return cat, nil
}

// DeleteCategory removes a tenant-owned category and its tasks. Categories
// with materialized history should be deactivated instead; deletion is for
// templates that never ran.
func (s *TemplateService) DeleteCategory(ctx context.Context, orgID, categoryID string) error {
	if _, err := s.ownedCategory(ctx, orgID, categoryID); err != nil {
		return err
	}
	return mapRepoErr(s.repos.Template.DeleteCategory(ctx, categoryID))
}

// ownedCategory loads a category and checks the tenant owns it. Globals
// are platform-curated and never editable through the tenant surface.
func (s *TemplateService) ownedCategory(ctx context.Context, orgID, categoryID string) (*entity.Category, error) {
	cat, err := s.repos.Template.FindCategory(ctx, categoryID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if cat.OrganizationID == nil {
		return nil, fmt.Errorf("global category %s: %w", categoryID, ErrPermissionDenied)
	}
	if *cat.OrganizationID != orgID {
		return nil, fmt.Errorf("category %s: %w", categoryID, ErrPermissionDenied)
	}
	return cat, nil
}

type CreateTaskRequest struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	OrderIndex     int    `json:"order_index"`
	HasDynamicForm bool   `json:"has_dynamic_form"`
}

func (s *TemplateService) CreateTask(ctx context.Context, orgID, categoryID string, req *CreateTaskRequest) (*entity.Task, error) {
	cat, err := s.repos.Template.FindCategory(ctx, categoryID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if cat.OrganizationID != nil && *cat.OrganizationID != orgID {
		return nil, fmt.Errorf("category %s: %w", categoryID, ErrPermissionDenied)
	}
	if cat.IsGlobal && cat.OrganizationID == nil {
		// Global templates are platform-curated; tenants only opt in via
		// site assignments.
		return nil, fmt.Errorf("global category %s: %w", categoryID, ErrPermissionDenied)
	}

	task := &entity.Task{
		ID:             uuid.New().String(),
		CategoryID:     categoryID,
		Name:           req.Name,
		Description:    req.Description,
		OrderIndex:     req.OrderIndex,
		HasDynamicForm: req.HasDynamicForm,
		IsActive:       true,
	}
	if err := s.repos.Template.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", mapRepoErr(err))
	}
	return task, nil
}

type UpdateTaskRequest struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	OrderIndex     *int    `json:"order_index"`
	HasDynamicForm *bool   `json:"has_dynamic_form"`
	IsActive       *bool   `json:"is_active"`
}

func (s *TemplateService) UpdateTask(ctx context.Context, orgID, taskID string, req *UpdateTaskRequest) (*entity.Task, error) {
	task, err := s.ownedTask(ctx, orgID, taskID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		task.Name = *req.Name
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.OrderIndex != nil {
		task.OrderIndex = *req.OrderIndex
	}
	if req.HasDynamicForm != nil {
		task.HasDynamicForm = *req.HasDynamicForm
	}
	if req.IsActive != nil {
		task.IsActive = *req.IsActive
	}
	if err := s.repos.Template.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", mapRepoErr(err))
	}
	return task, nil
}

// ownedTask loads a task and checks its category belongs to the tenant.
func (s *TemplateService) ownedTask(ctx context.Context, orgID, taskID string) (*entity.Task, error) {
	task, err := s.repos.Template.FindTask(ctx, taskID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if _, err := s.ownedCategory(ctx, orgID, task.CategoryID); err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrPermissionDenied)
	}
	return task, nil
}

type CreateFieldRequest struct {
	Label           string          `json:"label" binding:"required"`
	FieldType       string          `json:"field_type" binding:"required"`
	FieldOrder      int             `json:"field_order"`
	IsRequired      bool            `json:"is_required"`
	ValidationRules json.RawMessage `json:"validation_rules"`
	Options         json.RawMessage `json:"options"`
	ShowIf          json.RawMessage `json:"show_if"`
}

var validFieldTypes = map[string]bool{
	entity.FieldTypeNumber:         true,
	entity.FieldTypeText:           true,
	entity.FieldTypeTemperature:    true,
	entity.FieldTypeYesNo:          true,
	entity.FieldTypeDropdown:       true,
	entity.FieldTypePhoto:          true,
	entity.FieldTypeRepeatingGroup: true,
}

func (s *TemplateService) CreateField(ctx context.Context, taskID string, req *CreateFieldRequest) (*entity.TaskField, error) {
	if _, err := s.repos.Template.FindTask(ctx, taskID); err != nil {
		return nil, mapRepoErr(err)
	}

	field := &entity.TaskField{
		ID:              uuid.New().String(),
		TaskID:          taskID,
		Label:           req.Label,
		FieldType:       req.FieldType,
		FieldOrder:      req.FieldOrder,
		IsRequired:      req.IsRequired,
		ValidationRules: req.ValidationRules,
		Options:         req.Options,
		ShowIf:          req.ShowIf,
	}

	ve := NewValidationError()
	if !validFieldTypes[req.FieldType] {
		ve.Add("field_type", "unknown field type: "+req.FieldType)
	}
	if req.FieldType == entity.FieldTypeDropdown {
		opts, err := field.OptionList()
		if err != nil {
			ve.Add("options", "malformed options payload")
		} else if len(opts) == 0 {
			ve.Add("options", "dropdown fields need at least one option")
		}
	}
	if _, err := field.Rules(); err != nil {
		ve.Add("validation_rules", "malformed validation rules payload")
	}
	if _, err := field.ShowIfCond(); err != nil {
		ve.Add("show_if", "malformed show_if payload")
	}
	if !ve.Empty() {
		return nil, ve
	}

	if err := s.repos.Template.CreateField(ctx, field); err != nil {
		return nil, fmt.Errorf("create field: %w", mapRepoErr(err))
	}
	return field, nil
}

type UpdateFieldRequest struct {
	Label           *string         `json:"label"`
	FieldType       *string         `json:"field_type"`
	FieldOrder      *int            `json:"field_order"`
	IsRequired      *bool           `json:"is_required"`
	ValidationRules json.RawMessage `json:"validation_rules"`
	Options         json.RawMessage `json:"options"`
	ShowIf          json.RawMessage `json:"show_if"`
}

func (s *TemplateService) UpdateField(ctx context.Context, orgID, taskID, fieldID string, req *UpdateFieldRequest) (*entity.TaskField, error) {
	field, err := s.ownedField(ctx, orgID, taskID, fieldID)
	if err != nil {
		return nil, err
	}

	if req.Label != nil {
		field.Label = *req.Label
	}
	if req.FieldType != nil {
		field.FieldType = *req.FieldType
	}
	if req.FieldOrder != nil {
		field.FieldOrder = *req.FieldOrder
	}
	if req.IsRequired != nil {
		field.IsRequired = *req.IsRequired
	}
	if req.ValidationRules != nil {
		field.ValidationRules = req.ValidationRules
	}
	if req.Options != nil {
		field.Options = req.Options
	}
	if req.ShowIf != nil {
		field.ShowIf = req.ShowIf
	}

	ve := NewValidationError()
	if !validFieldTypes[field.FieldType] {
		ve.Add("field_type", "unknown field type: "+field.FieldType)
	}
	if field.FieldType == entity.FieldTypeDropdown {
		opts, err := field.OptionList()
		if err != nil {
			ve.Add("options", "malformed options payload")
		} else if len(opts) == 0 {
			ve.Add("options", "dropdown fields need at least one option")
		}
	}
	if _, err := field.Rules(); err != nil {
		ve.Add("validation_rules", "malformed validation rules payload")
	}
	if _, err := field.ShowIfCond(); err != nil {
		ve.Add("show_if", "malformed show_if payload")
	}
	if !ve.Empty() {
		return nil, ve
	}

	if err := s.repos.Template.UpdateField(ctx, field); err != nil {
		return nil, fmt.Errorf("update field: %w", mapRepoErr(err))
	}
	return field, nil
}

// DeleteField removes a field from a task template. Responses already
// recorded against the field keep their snapshotted label.
func (s *TemplateService) DeleteField(ctx context.Context, orgID, taskID, fieldID string) error {
	if _, err := s.ownedField(ctx, orgID, taskID, fieldID); err != nil {
		return err
	}
	return mapRepoErr(s.repos.Template.DeleteField(ctx, fieldID))
}

// ownedField resolves a field through its owning task so the tenant guard
// and the task/field pairing are both checked.
func (s *TemplateService) ownedField(ctx context.Context, orgID, taskID, fieldID string) (*entity.TaskField, error) {
	if _, err := s.ownedTask(ctx, orgID, taskID); err != nil {
		return nil, err
	}
	fields, err := s.repos.Template.FieldsForTask(ctx, taskID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	for i := range fields {
		if fields[i].ID == fieldID {
			return &fields[i], nil
		}
	}
	return nil, fmt.Errorf("field %s: %w", fieldID, ErrNotFound)
}

// AssignTaskToSite binds a task template to a site. The site must belong to
// the same organization as the task's category, unless the category is
// global.
func (s *TemplateService) AssignTaskToSite(ctx context.Context, orgID, siteID, taskID string) (*entity.SiteTask, error) {
	site, err := s.repos.Organization.FindSite(ctx, siteID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if site.OrganizationID != orgID {
		return nil, fmt.Errorf("site %s: %w", siteID, ErrPermissionDenied)
	}
	task, err := s.repos.Template.FindTask(ctx, taskID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	cat, err := s.repos.Template.FindCategory(ctx, task.CategoryID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if cat.OrganizationID != nil && *cat.OrganizationID != orgID {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrPermissionDenied)
	}

	st := &entity.SiteTask{
		ID:     uuid.New().String(),
		SiteID: siteID,
		TaskID: taskID,
	}
	if err := s.repos.Template.AssignTaskToSite(ctx, st); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return st, nil // already assigned
		}
		return nil, fmt.Errorf("assign task: %w", mapRepoErr(err))
	}
	return st, nil
}

func (s *TemplateService) UnassignTaskFromSite(ctx context.Context, siteID, taskID string) error {
	return mapRepoErr(s.repos.Template.UnassignTaskFromSite(ctx, siteID, taskID))
}
