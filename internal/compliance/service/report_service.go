package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/zynthio/zynthio/internal/compliance/entity"
	"github.com/zynthio/zynthio/internal/compliance/repository"
	"github.com/zynthio/zynthio/internal/shared/notify"
	"go.uber.org/zap"
)

// ReportService builds the per-site compliance workbook and dispatches it
// to the site's configured recipients at the site's local report time.
type ReportService struct {
	repos    *repository.Repositories
	notifier *notify.Notifier
	log      *zap.Logger
}

func NewReportService(repos *repository.Repositories, notifier *notify.Notifier, log *zap.Logger) *ReportService {
	return &ReportService{repos: repos, notifier: notifier, log: log}
}

// DispatchDueReports fires the daily (and Monday weekly) report for every
// site whose local clock matches its configured report time at the given
// instant. Minute granularity; the scheduler calls this once per minute.
func (s *ReportService) DispatchDueReports(ctx context.Context, now time.Time) error {
	for offset := 0; ; offset += sitePageSize {
		sites, err := s.repos.Organization.ListActiveSitesPage(ctx, offset, sitePageSize)
		if err != nil {
			return fmt.Errorf("list sites: %w", err)
		}
		if len(sites) == 0 {
			return nil
		}
		for i := range sites {
			site := &sites[i]
			if !reportDue(site, now) {
				continue
			}
			if err := s.dispatchSiteReport(ctx, site, now); err != nil {
				s.log.Error("report dispatch failed",
					zap.String("site_id", site.ID), zap.Error(err))
			}
		}
		if len(sites) < sitePageSize {
			return nil
		}
	}
}

// reportDue matches the site's local wall clock against its report time.
// Weekly reports fire on Mondays.
func reportDue(site *entity.Site, now time.Time) bool {
	if !site.ReportDailyEnabled && !site.ReportWeeklyEnabled {
		return false
	}
	h, m, ok := parseClockTime(site.ReportTime)
	if !ok {
		return false
	}
	local := now.In(site.Location())
	if local.Hour() != h || local.Minute() != m {
		return false
	}
	if site.ReportDailyEnabled {
		return true
	}
	return local.Weekday() == time.Monday
}

func (s *ReportService) dispatchSiteReport(ctx context.Context, site *entity.Site, now time.Time) error {
	recipients := site.RecipientList()
	if len(recipients) == 0 {
		return nil
	}

	localDate := now.In(site.Location())
	payload, err := s.BuildSiteReport(ctx, site, localDate)
	if err != nil {
		return err
	}

	date := localDate.Format("2006-01-02")
	filename := fmt.Sprintf("compliance-%s-%s.xlsx", site.ID, date)
	for _, recipient := range recipients {
		if err := s.notifier.SendReport(ctx, recipient, site.Name, date, filename, payload); err != nil {
			s.log.Error("report delivery failed",
				zap.String("site_id", site.ID),
				zap.String("recipient", recipient),
				zap.Error(err))
		}
	}
	return nil
}

// BuildSiteReport renders the site's checklists and defects for one date
// into an XLSX workbook.
func (s *ReportService) BuildSiteReport(ctx context.Context, site *entity.Site, date time.Time) ([]byte, error) {
	checklists, err := s.repos.Checklist.ListForSiteOnDate(ctx, site.ID, date)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, site.Location())
	defects, err := s.repos.Defect.ListOpenForSiteSince(ctx, site.ID, dayStart)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const checklistSheet = "Checklists"
	f.SetSheetName("Sheet1", checklistSheet)
	headers := []interface{}{"Category", "Status", "Completed", "Total", "Completion %", "Completed At"}
	_ = f.SetSheetRow(checklistSheet, "A1", &headers)
	for i, c := range checklists {
		name := c.CategoryID
		if c.Category != nil {
			name = c.Category.Name
		}
		completedAt := ""
		if c.CompletedAt != nil {
			completedAt = c.CompletedAt.In(site.Location()).Format("15:04")
		}
		row := []interface{}{name, c.Status, c.CompletedItems, c.TotalItems, c.CompletionPercentage, completedAt}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetSheetRow(checklistSheet, cell, &row)
	}

	const defectSheet = "Defects"
	if _, err := f.NewSheet(defectSheet); err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	defectHeaders := []interface{}{"Title", "Severity", "Status", "Raised At"}
	_ = f.SetSheetRow(defectSheet, "A1", &defectHeaders)
	for i, d := range defects {
		row := []interface{}{d.Title, d.Severity, d.Status, d.CreatedAt.In(site.Location()).Format("2006-01-02 15:04")}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetSheetRow(defectSheet, cell, &row)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
