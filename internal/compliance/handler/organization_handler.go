package handler

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zynthio/zynthio/internal/compliance/entity"
	"github.com/zynthio/zynthio/internal/compliance/repository"
	"github.com/zynthio/zynthio/internal/compliance/service"
)

// OrganizationHandler exposes the tenant and site surface the core needs:
// site management and the per-site report schedule. Billing and signup
// live upstream.
type OrganizationHandler struct {
	repo *repository.OrganizationRepository
}

func NewOrganizationHandler(repo *repository.OrganizationRepository) *OrganizationHandler {
	return &OrganizationHandler{repo: repo}
}

type createOrganizationRequest struct {
	Name        string     `json:"name" binding:"required"`
	TrialEndsAt *time.Time `json:"trial_ends_at"`
}

// CreateOrganization provisions a tenant. Platform operators only.
// POST /api/v1/admin/organizations
func (h *OrganizationHandler) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	org := &entity.Organization{
		ID:          uuid.New().String(),
		Name:        req.Name,
		IsActive:    true,
		TrialEndsAt: req.TrialEndsAt,
	}
	if err := h.repo.CreateOrganization(c.Request.Context(), org); err != nil {
		RespondError(c, err)
		return
	}
	Created(c, org)
}

// ListOrganizations returns all active tenants. Platform operators only.
// GET /api/v1/admin/organizations
func (h *OrganizationHandler) ListOrganizations(c *gin.Context) {
	orgs, err := h.repo.ListOrganizations(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": orgs})
}

// GetOrganization returns one tenant. Platform operators only.
// GET /api/v1/admin/organizations/:id
func (h *OrganizationHandler) GetOrganization(c *gin.Context) {
	org, err := h.repo.FindOrganization(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, org)
}

// ListSites returns the tenant's active sites.
// GET /api/v1/sites
func (h *OrganizationHandler) ListSites(c *gin.Context) {
	sites, err := h.repo.ListSites(c.Request.Context(), GetOrgID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": sites})
}

type createSiteRequest struct {
	Name     string `json:"name" binding:"required"`
	Address  string `json:"address"`
	Timezone string `json:"timezone"`
}

// CreateSite registers a new site for the tenant.
// POST /api/v1/sites
func (h *OrganizationHandler) CreateSite(c *gin.Context) {
	var req createSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			BadRequest(c, "unknown timezone: "+req.Timezone)
			return
		}
	}

	site := &entity.Site{
		ID:             uuid.New().String(),
		OrganizationID: GetOrgID(c),
		Name:           req.Name,
		Address:        req.Address,
		Timezone:       req.Timezone,
		IsActive:       true,
	}
	if err := h.repo.CreateSite(c.Request.Context(), site); err != nil {
		RespondError(c, err)
		return
	}
	Created(c, site)
}

type reportScheduleRequest struct {
	DailyEnabled  *bool    `json:"daily_enabled"`
	WeeklyEnabled *bool    `json:"weekly_enabled"`
	ReportTime    *string  `json:"report_time"` // HH:MM site-local
	Recipients    []string `json:"recipients"`  // webhook URLs
}

// UpdateReportSchedule configures a site's report dispatch.
// PUT /api/v1/sites/:id/report-schedule
func (h *OrganizationHandler) UpdateReportSchedule(c *gin.Context) {
	site, err := h.repo.FindSite(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	if site.OrganizationID != GetOrgID(c) {
		RespondError(c, service.ErrPermissionDenied)
		return
	}

	var req reportScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.ReportTime != nil {
		if _, err := time.Parse("15:04", *req.ReportTime); err != nil {
			BadRequest(c, "report_time must be HH:MM")
			return
		}
		site.ReportTime = *req.ReportTime
	}
	if req.DailyEnabled != nil {
		site.ReportDailyEnabled = *req.DailyEnabled
	}
	if req.WeeklyEnabled != nil {
		site.ReportWeeklyEnabled = *req.WeeklyEnabled
	}
	if req.Recipients != nil {
		raw, _ := json.Marshal(req.Recipients)
		site.ReportRecipients = raw
	}

	if err := h.repo.UpdateSite(c.Request.Context(), site); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, site)
}
