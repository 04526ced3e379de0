package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/zynthio/zynthio/internal/compliance/service"
)

// DefectHandler exposes defect listing, manual creation and closure.
type DefectHandler struct {
	svc *service.DefectService
}

func NewDefectHandler(svc *service.DefectService) *DefectHandler {
	return &DefectHandler{svc: svc}
}

// List returns the organization's defects, filterable by site and status.
// GET /api/v1/defects
func (h *DefectHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	defects, total, err := h.svc.List(
		c.Request.Context(), GetOrgID(c),
		c.Query("site_id"), c.Query("status"),
		page, pageSize)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": defects, "total": total})
}

// Create raises a defect manually.
// POST /api/v1/defects
func (h *DefectHandler) Create(c *gin.Context) {
	var req service.CreateDefectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	defect, err := h.svc.Create(c.Request.Context(), GetOrgID(c), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, defect)
}

type closeDefectRequest struct {
	Notes string `json:"notes"`
}

// Close transitions an open defect to closed.
// POST /api/v1/defects/:id/close
func (h *DefectHandler) Close(c *gin.Context) {
	var req closeDefectRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	defect, err := h.svc.Close(c.Request.Context(), GetOrgID(c), c.Param("id"), GetUserID(c), req.Notes)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, defect)
}
