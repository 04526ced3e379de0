package service

import (
	"context"
	"fmt"
	"time"

	"github.com/zynthio/zynthio/internal/compliance/repository"
	"go.uber.org/zap"
)

// sweepBatchSize bounds how many checklists one site contributes per sweep;
// leftovers roll to the next trigger.
const sweepBatchSize = 500

// SweeperService rolls non-terminal checklists to overdue once their
// category cutoff has passed in site-local time. Repeated invocation is
// safe; the status guard in MarkOverdue makes each transition happen once.
type SweeperService struct {
	repos *repository.Repositories
	log   *zap.Logger
}

func NewSweeperService(repos *repository.Repositories, log *zap.Logger) *SweeperService {
	return &SweeperService{repos: repos, log: log}
}

// SweepOverdue walks active sites and marks past-cutoff checklists overdue.
// Returns the number of checklists transitioned.
func (s *SweeperService) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	swept := 0
	for offset := 0; ; offset += sitePageSize {
		sites, err := s.repos.Organization.ListActiveSitesPage(ctx, offset, sitePageSize)
		if err != nil {
			return swept, fmt.Errorf("list sites: %w", err)
		}
		if len(sites) == 0 {
			return swept, nil
		}
		for _, site := range sites {
			n, err := s.sweepSite(ctx, site.ID, site.Location(), now)
			if err != nil {
				s.log.Error("sweep failed for site",
					zap.String("site_id", site.ID), zap.Error(err))
				continue
			}
			swept += n
		}
		if len(sites) < sitePageSize {
			return swept, nil
		}
	}
}

func (s *SweeperService) sweepSite(ctx context.Context, siteID string, loc *time.Location, now time.Time) (int, error) {
	localNow := now.In(loc)
	candidates, err := s.repos.Checklist.ListOpenForSiteUpTo(ctx, siteID, localNow, sweepBatchSize)
	if err != nil {
		return 0, mapRepoErr(err)
	}

	swept := 0
	for _, cand := range candidates {
		cutoff := cutoffFor(cand.ChecklistDate, cand.ClosesAt, loc)
		if !localNow.After(cutoff) {
			continue
		}
		if err := s.repos.Checklist.MarkOverdue(ctx, cand.ChecklistID); err != nil {
			return swept, mapRepoErr(err)
		}
		swept++
		s.log.Info("checklist overdue",
			zap.String("checklist_id", cand.ChecklistID),
			zap.String("site_id", siteID),
			zap.String("date", cand.ChecklistDate.Format("2006-01-02")))
	}
	return swept, nil
}
