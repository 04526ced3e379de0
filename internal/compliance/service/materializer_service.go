package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zynthio/zynthio/internal/compliance/entity"
	"github.com/zynthio/zynthio/internal/compliance/repository"
	"go.uber.org/zap"
)

// sitePageSize bounds how many sites one background invocation walks.
const sitePageSize = 200

// MaterializerService turns due categories into concrete dated checklist
// instances. Creation is idempotent: the (category, site, date) unique key
// absorbs duplicate triggers and concurrent workers.
type MaterializerService struct {
	repos    *repository.Repositories
	template *TemplateService
	log      *zap.Logger
}

func NewMaterializerService(repos *repository.Repositories, template *TemplateService, log *zap.Logger) *MaterializerService {
	return &MaterializerService{repos: repos, template: template, log: log}
}

// Materialize ensures a checklist exists for every category due at the site
// on the given date. Already-existing instances are left untouched.
func (s *MaterializerService) Materialize(ctx context.Context, orgID, siteID string, date time.Time) ([]entity.Checklist, error) {
	due, err := s.template.ListDueCategories(ctx, orgID, siteID, date)
	if err != nil {
		return nil, err
	}

	created := make([]entity.Checklist, 0, len(due))
	for _, cat := range due {
		checklist, err := s.ensureInstance(ctx, &cat, orgID, siteID, date)
		if err != nil {
			return created, fmt.Errorf("materialize category %s: %w", cat.ID, err)
		}
		created = append(created, *checklist)
	}
	return created, nil
}

// MaterializeEvent creates an instance for an event-driven category (or any
// category, on demand). The uniqueness key still limits it to one instance
// per calendar date.
func (s *MaterializerService) MaterializeEvent(ctx context.Context, orgID, categoryID, siteID string, date time.Time) (*entity.Checklist, error) {
	cat, err := s.repos.Template.FindCategory(ctx, categoryID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if cat.OrganizationID != nil && *cat.OrganizationID != orgID {
		return nil, fmt.Errorf("category %s: %w", categoryID, ErrPermissionDenied)
	}
	site, err := s.repos.Organization.FindSite(ctx, siteID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if site.OrganizationID != orgID {
		return nil, fmt.Errorf("site %s: %w", siteID, ErrPermissionDenied)
	}
	return s.ensureInstance(ctx, cat, orgID, siteID, date)
}

// MaterializeAllDue walks every active site and materializes its due set
// for the site-local date at the given instant. Safe to call repeatedly.
func (s *MaterializerService) MaterializeAllDue(ctx context.Context, now time.Time) error {
	for offset := 0; ; offset += sitePageSize {
		sites, err := s.repos.Organization.ListActiveSitesPage(ctx, offset, sitePageSize)
		if err != nil {
			return fmt.Errorf("list sites: %w", err)
		}
		if len(sites) == 0 {
			return nil
		}
		for _, site := range sites {
			localDate := now.In(site.Location())
			if _, err := s.Materialize(ctx, site.OrganizationID, site.ID, localDate); err != nil {
				// One broken site must not stall the rest; the next
				// trigger retries it.
				s.log.Error("materialization failed for site",
					zap.String("site_id", site.ID),
					zap.Error(err))
			}
		}
		if len(sites) < sitePageSize {
			return nil
		}
	}
}

// ensureInstance creates the checklist and its items for one (category,
// site, date) triple, or returns the existing instance. Losing the unique
// constraint race counts as success.
func (s *MaterializerService) ensureInstance(ctx context.Context, cat *entity.Category, orgID, siteID string, date time.Time) (*entity.Checklist, error) {
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	if existing, err := s.repos.Checklist.FindByKey(ctx, cat.ID, siteID, date); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	tasks, err := s.repos.Template.TasksForCategoryAtSite(ctx, cat.ID, siteID)
	if err != nil {
		return nil, err
	}

	checklist := &entity.Checklist{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		CategoryID:     cat.ID,
		SiteID:         siteID,
		ChecklistDate:  date,
		Status:         entity.ChecklistStatusPending,
		TotalItems:     len(tasks),
	}
	items := make([]entity.ChecklistItem, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, entity.ChecklistItem{
			ID:          uuid.New().String(),
			ChecklistID: checklist.ID,
			TaskID:      task.ID,
			// Snapshot the name so the item survives template renames.
			ItemName:   task.Name,
			OrderIndex: task.OrderIndex,
		})
	}

	if err := s.repos.Checklist.CreateWithItems(ctx, checklist, items); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Another worker won the race; its instance is the answer.
			return s.repos.Checklist.FindByKey(ctx, cat.ID, siteID, date)
		}
		return nil, err
	}

	s.log.Info("materialized checklist",
		zap.String("checklist_id", checklist.ID),
		zap.String("category_id", cat.ID),
		zap.String("site_id", siteID),
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("items", len(items)))
	return checklist, nil
}
