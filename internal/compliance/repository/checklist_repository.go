package repository

import (
	"context"
	"time"

	"github.com/zynthio/zynthio/internal/compliance/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChecklistRepository covers checklist instances, their items and field
// responses.
type ChecklistRepository struct {
	db *gorm.DB
}

func NewChecklistRepository(db *gorm.DB) *ChecklistRepository {
	return &ChecklistRepository{db: db}
}

// CreateWithItems inserts the checklist and its items in one transaction.
// A unique violation on (category_id, site_id, checklist_date) comes back
// as ErrDuplicate; the caller lost a benign race.
func (r *ChecklistRepository) CreateWithItems(ctx context.Context, checklist *entity.Checklist, items []entity.ChecklistItem) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(checklist).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
	return translate(err)
}

func (r *ChecklistRepository) FindByKey(ctx context.Context, categoryID, siteID string, date time.Time) (*entity.Checklist, error) {
	var c entity.Checklist
	err := r.db.WithContext(ctx).
		Where("category_id = ? AND site_id = ? AND checklist_date = ?",
			categoryID, siteID, date.Format("2006-01-02")).
		First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *ChecklistRepository) FindByID(ctx context.Context, id string) (*entity.Checklist, error) {
	var c entity.Checklist
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// FindByIDWithItems loads the checklist with its items in template order
// and each item's responses.
func (r *ChecklistRepository) FindByIDWithItems(ctx context.Context, id string) (*entity.Checklist, error) {
	var c entity.Checklist
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("checklist_items.order_index")
		}).
		Preload("Items.Responses").
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// FindForUpdate loads the checklist under a row lock. Counter maintenance
// serializes on this lock.
func (r *ChecklistRepository) FindForUpdate(ctx context.Context, id string) (*entity.Checklist, error) {
	var c entity.Checklist
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *ChecklistRepository) UpdateChecklist(ctx context.Context, c *entity.Checklist) error {
	return translate(r.db.WithContext(ctx).Save(c).Error)
}

// ----- items -----

func (r *ChecklistRepository) FindItem(ctx context.Context, id string) (*entity.ChecklistItem, error) {
	var item entity.ChecklistItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

// FindItemForUpdate locks the item row so field responses on one item are
// serialized.
func (r *ChecklistRepository) FindItemForUpdate(ctx context.Context, id string) (*entity.ChecklistItem, error) {
	var item entity.ChecklistItem
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (r *ChecklistRepository) UpdateItem(ctx context.Context, item *entity.ChecklistItem) error {
	return translate(r.db.WithContext(ctx).Save(item).Error)
}

func (r *ChecklistRepository) CountCompletedItems(ctx context.Context, checklistID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&entity.ChecklistItem{}).
		Where("checklist_id = ? AND is_completed = ?", checklistID, true).
		Count(&n).Error
	return n, translate(err)
}

// ----- responses -----

func (r *ChecklistRepository) ListResponses(ctx context.Context, itemID string) ([]entity.TaskFieldResponse, error) {
	var responses []entity.TaskFieldResponse
	err := r.db.WithContext(ctx).
		Where("checklist_item_id = ?", itemID).
		Find(&responses).Error
	return responses, translate(err)
}

// UpsertResponse writes the one response per (item, field), refreshing the
// value and updated_at on resubmission.
func (r *ChecklistRepository) UpsertResponse(ctx context.Context, resp *entity.TaskFieldResponse) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "checklist_item_id"}, {Name: "task_field_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "submitted_by", "updated_at"}),
		}).
		Create(resp).Error
	return translate(err)
}

// ----- sweeper support -----

// OverdueCandidate pairs an open checklist with its category cutoff for the
// sweep.
type OverdueCandidate struct {
	ChecklistID   string
	ChecklistDate time.Time
	ClosesAt      *string
}

// ListOpenForSiteUpTo returns non-terminal checklists at a site dated on or
// before the given site-local date, oldest first.
func (r *ChecklistRepository) ListOpenForSiteUpTo(ctx context.Context, siteID string, date time.Time, limit int) ([]OverdueCandidate, error) {
	var rows []OverdueCandidate
	err := r.db.WithContext(ctx).
		Model(&entity.Checklist{}).
		Select("checklists.id AS checklist_id, checklists.checklist_date, categories.closes_at").
		Joins("JOIN categories ON categories.id = checklists.category_id").
		Where("checklists.site_id = ? AND checklists.status IN ? AND checklists.checklist_date <= ?",
			siteID,
			[]string{entity.ChecklistStatusPending, entity.ChecklistStatusInProgress},
			date.Format("2006-01-02")).
		Order("checklists.checklist_date").
		Limit(limit).
		Scan(&rows).Error
	return rows, translate(err)
}

// MarkOverdue flips a still-open checklist to overdue. The status guard
// keeps the sweep idempotent under concurrent invocations.
func (r *ChecklistRepository) MarkOverdue(ctx context.Context, checklistID string) error {
	return translate(r.db.WithContext(ctx).
		Model(&entity.Checklist{}).
		Where("id = ? AND status IN ?", checklistID,
			[]string{entity.ChecklistStatusPending, entity.ChecklistStatusInProgress}).
		Updates(map[string]interface{}{
			"status":     entity.ChecklistStatusOverdue,
			"updated_at": time.Now(),
		}).Error)
}

// ----- report support -----

// ListForSiteOnDate returns a site's checklists for one date with category
// names preloaded, for report generation.
func (r *ChecklistRepository) ListForSiteOnDate(ctx context.Context, siteID string, date time.Time) ([]entity.Checklist, error) {
	var lists []entity.Checklist
	err := r.db.WithContext(ctx).
		Preload("Category").
		Where("site_id = ? AND checklist_date = ?", siteID, date.Format("2006-01-02")).
		Order("created_at").
		Find(&lists).Error
	return lists, translate(err)
}
