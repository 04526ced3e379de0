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

// DefectService raises defects from out-of-rule field answers and manages
// their lifecycle. Automatic promotion runs inside the ingest transaction
// but never aborts it: a failed promotion is logged and the responses still
// commit.
type DefectService struct {
	repos *repository.Repositories
	log   *zap.Logger
}

func NewDefectService(repos *repository.Repositories, log *zap.Logger) *DefectService {
	return &DefectService{repos: repos, log: log}
}

// PromoteInput carries one validated answer into promotion.
type PromoteInput struct {
	Checklist *entity.Checklist
	Item      *entity.ChecklistItem
	Field     *entity.TaskField
	Rules     *entity.ValidationRules
	Observed  string
	Numeric   *float64
	UserID    string
	PhotoURL  string
}

// shouldPromote evaluates the create_defect_if predicate against the
// observed answer.
func shouldPromote(rules *entity.ValidationRules, observed string, numeric *float64) bool {
	if rules == nil {
		return false
	}
	switch rules.CreateDefectIf {
	case entity.DefectIfOutOfRange:
		if numeric == nil {
			return false
		}
		if rules.Min != nil && *numeric < *rules.Min {
			return true
		}
		if rules.Max != nil && *numeric > *rules.Max {
			return true
		}
		return false
	case entity.DefectIfEquals:
		return rules.Equals != nil && observed == *rules.Equals
	}
	return false
}

// maxTitleLen matches the defects.title column width.
const maxTitleLen = 300

// truncate bounds s to n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Promote raises a defect for the answer when its rule trips, using the
// transaction-bound repositories of the surrounding ingest. An open defect
// for the same (item, field label) is refreshed instead of duplicated.
// The writes run under their own savepoint: a failed promotion rolls back
// only itself, never the responses staged around it.
func (s *DefectService) Promote(ctx context.Context, tx *repository.Repositories, in PromoteInput) {
	if !shouldPromote(in.Rules, in.Observed, in.Numeric) {
		return
	}

	severity := entity.DefectSeverityMedium
	if in.Rules.Severity != "" {
		severity = in.Rules.Severity
	}
	title := truncate(fmt.Sprintf("%s=%s out of rule on %s", in.Field.Label, in.Observed, in.Item.ItemName), maxTitleLen)
	description := fmt.Sprintf("Recorded value %q for %q violates the configured rule.", in.Observed, in.Field.Label)

	err := tx.Transaction(ctx, func(ptx *repository.Repositories) error {
		existing, err := ptx.Defect.FindOpenByItemAndLabel(ctx, in.Item.ID, in.Field.Label)
		switch {
		case err == nil:
			existing.Description = description
			if in.PhotoURL != "" {
				existing.PhotoURL = in.PhotoURL
			}
			return ptx.Defect.Update(ctx, existing)
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		itemID := in.Item.ID
		defect := &entity.Defect{
			ID:              uuid.New().String(),
			OrganizationID:  in.Checklist.OrganizationID,
			SiteID:          in.Checklist.SiteID,
			ChecklistItemID: &itemID,
			Title:           title,
			Description:     description,
			FieldLabel:      in.Field.Label,
			Severity:        severity,
			Status:          entity.DefectStatusOpen,
			PhotoURL:        in.PhotoURL,
		}
		if in.UserID != "" {
			uid := in.UserID
			defect.ReportedByID = &uid
		}
		return ptx.Defect.Create(ctx, defect)
	})
	if err != nil {
		s.log.Error("defect promotion failed",
			zap.String("item_id", in.Item.ID),
			zap.String("field", in.Field.Label),
			zap.Error(err))
		return
	}
	s.log.Info("defect raised",
		zap.String("item_id", in.Item.ID),
		zap.String("field", in.Field.Label),
		zap.String("observed", in.Observed),
		zap.String("severity", severity))
}

// ----- manual lifecycle -----

type CreateDefectRequest struct {
	SiteID      string `json:"site_id" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	PhotoURL    string `json:"photo_url"`
}

func (s *DefectService) Create(ctx context.Context, orgID, userID string, req *CreateDefectRequest) (*entity.Defect, error) {
	site, err := s.repos.Organization.FindSite(ctx, req.SiteID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if site.OrganizationID != orgID {
		return nil, fmt.Errorf("site %s: %w", req.SiteID, ErrPermissionDenied)
	}

	severity := req.Severity
	if severity == "" {
		severity = entity.DefectSeverityMedium
	}
	switch severity {
	case entity.DefectSeverityCritical, entity.DefectSeverityHigh,
		entity.DefectSeverityMedium, entity.DefectSeverityLow:
	default:
		ve := NewValidationError()
		ve.Add("severity", "unknown severity: "+severity)
		return nil, ve
	}

	uid := userID
	defect := &entity.Defect{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		SiteID:         req.SiteID,
		ReportedByID:   &uid,
		Title:          req.Title,
		Description:    req.Description,
		Severity:       severity,
		Status:         entity.DefectStatusOpen,
		PhotoURL:       req.PhotoURL,
	}
	if err := s.repos.Defect.Create(ctx, defect); err != nil {
		return nil, fmt.Errorf("create defect: %w", mapRepoErr(err))
	}
	return defect, nil
}

// Close transitions an open defect to closed. Closure is monotone: the
// guarded update moves exactly one writer's close through, any other gets
// a Conflict and never overwrites the winner's audit fields.
func (s *DefectService) Close(ctx context.Context, orgID, defectID, userID, notes string) (*entity.Defect, error) {
	defect, err := s.repos.Defect.FindByID(ctx, defectID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if defect.OrganizationID != orgID {
		return nil, fmt.Errorf("defect %s: %w", defectID, ErrPermissionDenied)
	}

	now := time.Now()
	moved, err := s.repos.Defect.CloseOpen(ctx, defectID, userID, notes, now)
	if err != nil {
		return nil, fmt.Errorf("close defect: %w", mapRepoErr(err))
	}
	if moved == 0 {
		return nil, fmt.Errorf("defect %s already closed: %w", defectID, ErrConflict)
	}

	defect.Status = entity.DefectStatusClosed
	defect.ClosedAt = &now
	defect.ClosedBy = userID
	defect.CloseNotes = notes
	return defect, nil
}

func (s *DefectService) List(ctx context.Context, orgID, siteID, status string, page, pageSize int) ([]entity.Defect, int64, error) {
	defects, total, err := s.repos.Defect.List(ctx, orgID, siteID, status, page, pageSize)
	return defects, total, mapRepoErr(err)
}
