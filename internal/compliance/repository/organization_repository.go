package repository

import (
	"context"

	"github.com/zynthio/zynthio/internal/compliance/entity"
	"gorm.io/gorm"
)

// OrganizationRepository covers organizations and their sites.
type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) CreateOrganization(ctx context.Context, org *entity.Organization) error {
	return translate(r.db.WithContext(ctx).Create(org).Error)
}

func (r *OrganizationRepository) FindOrganization(ctx context.Context, id string) (*entity.Organization, error) {
	var org entity.Organization
	if err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &org, nil
}

func (r *OrganizationRepository) ListOrganizations(ctx context.Context) ([]entity.Organization, error) {
	var orgs []entity.Organization
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("name").Find(&orgs).Error
	return orgs, translate(err)
}

func (r *OrganizationRepository) CreateSite(ctx context.Context, site *entity.Site) error {
	return translate(r.db.WithContext(ctx).Create(site).Error)
}

func (r *OrganizationRepository) UpdateSite(ctx context.Context, site *entity.Site) error {
	return translate(r.db.WithContext(ctx).Save(site).Error)
}

func (r *OrganizationRepository) FindSite(ctx context.Context, id string) (*entity.Site, error) {
	var site entity.Site
	if err := r.db.WithContext(ctx).First(&site, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &site, nil
}

func (r *OrganizationRepository) ListSites(ctx context.Context, orgID string) ([]entity.Site, error) {
	var sites []entity.Site
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = ?", orgID, true).
		Order("name").
		Find(&sites).Error
	return sites, translate(err)
}

// ListActiveSitesPage pages across all active sites of active organizations.
// The background jobs (materializer, sweeper, reports) walk sites through
// this so one invocation stays bounded.
func (r *OrganizationRepository) ListActiveSitesPage(ctx context.Context, offset, limit int) ([]entity.Site, error) {
	var sites []entity.Site
	err := r.db.WithContext(ctx).
		Joins("JOIN organizations ON organizations.id = sites.organization_id").
		Where("sites.is_active = ? AND organizations.is_active = ?", true, true).
		Order("sites.id").
		Offset(offset).
		Limit(limit).
		Find(&sites).Error
	return sites, translate(err)
}
