package repository

import (
	"context"
	"time"

	"github.com/zynthio/zynthio/internal/compliance/entity"
	"gorm.io/gorm"
)

// DefectRepository covers defect audit records.
type DefectRepository struct {
	db *gorm.DB
}

func NewDefectRepository(db *gorm.DB) *DefectRepository {
	return &DefectRepository{db: db}
}

func (r *DefectRepository) Create(ctx context.Context, d *entity.Defect) error {
	return translate(r.db.WithContext(ctx).Create(d).Error)
}

func (r *DefectRepository) Update(ctx context.Context, d *entity.Defect) error {
	return translate(r.db.WithContext(ctx).Save(d).Error)
}

func (r *DefectRepository) FindByID(ctx context.Context, id string) (*entity.Defect, error) {
	var d entity.Defect
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

// CloseOpen transitions a defect to closed only while it is still open,
// the same guarded-update shape as ChecklistRepository.MarkOverdue. Returns
// the number of rows moved: zero means another writer closed it first.
func (r *DefectRepository) CloseOpen(ctx context.Context, id, userID, notes string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.Defect{}).
		Where("id = ? AND status = ?", id, entity.DefectStatusOpen).
		Updates(map[string]interface{}{
			"status":      entity.DefectStatusClosed,
			"closed_at":   now,
			"closed_by":   userID,
			"close_notes": notes,
			"updated_at":  now,
		})
	return res.RowsAffected, translate(res.Error)
}

// FindOpenByItemAndLabel looks up the open auto-raised defect for one
// (checklist item, field label) pair, the duplicate-suppression key.
func (r *DefectRepository) FindOpenByItemAndLabel(ctx context.Context, itemID, fieldLabel string) (*entity.Defect, error) {
	var d entity.Defect
	err := r.db.WithContext(ctx).
		Where("checklist_item_id = ? AND field_label = ? AND status = ?",
			itemID, fieldLabel, entity.DefectStatusOpen).
		First(&d).Error
	if err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *DefectRepository) List(ctx context.Context, orgID, siteID, status string, page, pageSize int) ([]entity.Defect, int64, error) {
	q := r.db.WithContext(ctx).Model(&entity.Defect{}).Where("organization_id = ?", orgID)
	if siteID != "" {
		q = q.Where("site_id = ?", siteID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var defects []entity.Defect
	err := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&defects).Error
	return defects, total, translate(err)
}

// ListOpenForSiteSince returns a site's defects raised on or after the
// given time, for the daily report.
func (r *DefectRepository) ListOpenForSiteSince(ctx context.Context, siteID string, since time.Time) ([]entity.Defect, error) {
	var defects []entity.Defect
	err := r.db.WithContext(ctx).
		Where("site_id = ? AND created_at >= ?", siteID, since).
		Order("created_at").
		Find(&defects).Error
	return defects, translate(err)
}
