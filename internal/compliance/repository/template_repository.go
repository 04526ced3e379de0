package repository

import (
	"context"

	"github.com/zynthio/zynthio/internal/compliance/entity"
	"gorm.io/gorm"
)

// TemplateRepository is the authoritative catalog of categories, tasks,
// task fields and per-site task assignments.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// ----- categories -----

func (r *TemplateRepository) CreateCategory(ctx context.Context, cat *entity.Category) error {
	return translate(r.db.WithContext(ctx).Create(cat).Error)
}

func (r *TemplateRepository) UpdateCategory(ctx context.Context, cat *entity.Category) error {
	return translate(r.db.WithContext(ctx).Save(cat).Error)
}

func (r *TemplateRepository) DeleteCategory(ctx context.Context, id string) error {
	// Cascades to tasks and task fields.
	return translate(r.db.WithContext(ctx).Select("Tasks").Delete(&entity.Category{ID: id}).Error)
}

func (r *TemplateRepository) FindCategory(ctx context.Context, id string) (*entity.Category, error) {
	var cat entity.Category
	if err := r.db.WithContext(ctx).First(&cat, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &cat, nil
}

// ListActiveCategories returns the organization's own active categories
// plus the platform-wide globals visible to every tenant.
func (r *TemplateRepository) ListActiveCategories(ctx context.Context, orgID string) ([]entity.Category, error) {
	var cats []entity.Category
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND (organization_id = ? OR (is_global = ? AND organization_id IS NULL))",
			true, orgID, true).
		Order("name").
		Find(&cats).Error
	return cats, translate(err)
}

// ----- tasks -----

func (r *TemplateRepository) CreateTask(ctx context.Context, task *entity.Task) error {
	return translate(r.db.WithContext(ctx).Create(task).Error)
}

func (r *TemplateRepository) UpdateTask(ctx context.Context, task *entity.Task) error {
	return translate(r.db.WithContext(ctx).Save(task).Error)
}

func (r *TemplateRepository) FindTask(ctx context.Context, id string) (*entity.Task, error) {
	var task entity.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

func (r *TemplateRepository) ListTasks(ctx context.Context, categoryID string) ([]entity.Task, error) {
	var tasks []entity.Task
	err := r.db.WithContext(ctx).
		Where("category_id = ? AND is_active = ?", categoryID, true).
		Order("order_index").
		Find(&tasks).Error
	return tasks, translate(err)
}

// TasksForCategoryAtSite returns the category's active tasks that have a
// site_tasks assignment for the given site, in template order.
func (r *TemplateRepository) TasksForCategoryAtSite(ctx context.Context, categoryID, siteID string) ([]entity.Task, error) {
	var tasks []entity.Task
	err := r.db.WithContext(ctx).
		Joins("JOIN site_tasks ON site_tasks.task_id = tasks.id").
		Where("tasks.category_id = ? AND tasks.is_active = ? AND site_tasks.site_id = ?",
			categoryID, true, siteID).
		Order("tasks.order_index").
		Find(&tasks).Error
	return tasks, translate(err)
}

// ----- task fields -----

func (r *TemplateRepository) CreateField(ctx context.Context, field *entity.TaskField) error {
	return translate(r.db.WithContext(ctx).Create(field).Error)
}

func (r *TemplateRepository) UpdateField(ctx context.Context, field *entity.TaskField) error {
	return translate(r.db.WithContext(ctx).Save(field).Error)
}

func (r *TemplateRepository) DeleteField(ctx context.Context, id string) error {
	return translate(r.db.WithContext(ctx).Delete(&entity.TaskField{}, "id = ?", id).Error)
}

func (r *TemplateRepository) FieldsForTask(ctx context.Context, taskID string) ([]entity.TaskField, error) {
	var fields []entity.TaskField
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("field_order").
		Find(&fields).Error
	return fields, translate(err)
}

// ----- site assignments -----

func (r *TemplateRepository) AssignTaskToSite(ctx context.Context, st *entity.SiteTask) error {
	return translate(r.db.WithContext(ctx).Create(st).Error)
}

func (r *TemplateRepository) UnassignTaskFromSite(ctx context.Context, siteID, taskID string) error {
	return translate(r.db.WithContext(ctx).
		Where("site_id = ? AND task_id = ?", siteID, taskID).
		Delete(&entity.SiteTask{}).Error)
}
