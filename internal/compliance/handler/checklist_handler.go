package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zynthio/zynthio/internal/compliance/service"
)

// ChecklistHandler exposes checklist instances: on-demand materialization,
// reads, legacy item patches and dynamic-form submissions.
type ChecklistHandler struct {
	materializer *service.MaterializerService
	responses    *service.ResponseService
}

func NewChecklistHandler(svc *service.Services) *ChecklistHandler {
	return &ChecklistHandler{
		materializer: svc.Materializer,
		responses:    svc.Response,
	}
}

type createInstanceRequest struct {
	CategoryID string `json:"category_id" binding:"required"`
	SiteID     string `json:"site_id" binding:"required"`
	Date       string `json:"date" binding:"required"` // YYYY-MM-DD
}

// CreateInstance materializes a checklist on demand; the entrypoint for
// event-driven categories (per_batch, per_delivery, ...).
// POST /api/v1/checklists
func (h *ChecklistHandler) CreateInstance(c *gin.Context) {
	var req createInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		BadRequest(c, "date must be YYYY-MM-DD")
		return
	}

	checklist, err := h.materializer.MaterializeEvent(
		c.Request.Context(), GetOrgID(c), req.CategoryID, req.SiteID, date)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, checklist)
}

// Get returns a checklist with its items, responses and per-task field
// schema.
// GET /api/v1/checklists/:id
func (h *ChecklistHandler) Get(c *gin.Context) {
	detail, err := h.responses.GetChecklist(c.Request.Context(), GetOrgID(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, detail)
}

// GetItem returns one checklist item with its recorded responses.
// GET /api/v1/checklist-items/:id
func (h *ChecklistHandler) GetItem(c *gin.Context) {
	detail, err := h.responses.GetItem(c.Request.Context(), GetOrgID(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, detail)
}

// PatchItem applies a legacy-mode submission to one item.
// PATCH /api/v1/checklist-items/:id
func (h *ChecklistHandler) PatchItem(c *gin.Context) {
	var req service.PatchItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	item, err := h.responses.PatchItem(
		c.Request.Context(), GetOrgID(c), GetUserID(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, item)
}

type submitResponsesRequest struct {
	Responses []service.FieldSubmission `json:"responses" binding:"required"`
}

// SubmitResponses ingests a dynamic-form submission for one item.
// POST /api/v1/checklist-items/:id/responses
func (h *ChecklistHandler) SubmitResponses(c *gin.Context) {
	var req submitResponsesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	item, err := h.responses.SubmitFieldResponses(
		c.Request.Context(), GetOrgID(c), GetUserID(c), c.Param("id"), req.Responses)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, item)
}
