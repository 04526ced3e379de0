package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/zynthio/zynthio/internal/compliance/service"
)

// TemplateHandler administers the checklist catalog: categories, tasks,
// fields and site assignments.
type TemplateHandler struct {
	svc *service.TemplateService
}

func NewTemplateHandler(svc *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

// CreateCategory creates an organization-scoped category template.
// POST /api/v1/categories
func (h *TemplateHandler) CreateCategory(c *gin.Context) {
	var req service.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cat, err := h.svc.CreateCategory(c.Request.Context(), GetOrgID(c), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, cat)
}

// UpdateCategory edits an organization-scoped category template.
// PUT /api/v1/categories/:id
func (h *TemplateHandler) UpdateCategory(c *gin.Context) {
	var req service.UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cat, err := h.svc.UpdateCategory(c.Request.Context(), GetOrgID(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, cat)
}

// DeleteCategory removes a category template and its tasks.
// DELETE /api/v1/categories/:id
func (h *TemplateHandler) DeleteCategory(c *gin.Context) {
	if err := h.svc.DeleteCategory(c.Request.Context(), GetOrgID(c), c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"message": "category removed"})
}

// CreateTask adds a task to a category.
// POST /api/v1/categories/:id/tasks
func (h *TemplateHandler) CreateTask(c *gin.Context) {
	var req service.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	task, err := h.svc.CreateTask(c.Request.Context(), GetOrgID(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, task)
}

// UpdateTask edits a task template.
// PUT /api/v1/tasks/:id
func (h *TemplateHandler) UpdateTask(c *gin.Context) {
	var req service.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	task, err := h.svc.UpdateTask(c.Request.Context(), GetOrgID(c), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, task)
}

// CreateField adds a form field to a task.
// POST /api/v1/tasks/:id/fields
func (h *TemplateHandler) CreateField(c *gin.Context) {
	var req service.CreateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	field, err := h.svc.CreateField(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, field)
}

// UpdateField edits a task form field.
// PUT /api/v1/tasks/:id/fields/:fieldId
func (h *TemplateHandler) UpdateField(c *gin.Context) {
	var req service.UpdateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	field, err := h.svc.UpdateField(c.Request.Context(), GetOrgID(c), c.Param("id"), c.Param("fieldId"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, field)
}

// DeleteField removes a form field from a task.
// DELETE /api/v1/tasks/:id/fields/:fieldId
func (h *TemplateHandler) DeleteField(c *gin.Context) {
	if err := h.svc.DeleteField(c.Request.Context(), GetOrgID(c), c.Param("id"), c.Param("fieldId")); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"message": "field removed"})
}

// ListFields returns a task's form fields in order.
// GET /api/v1/tasks/:id/fields
func (h *TemplateHandler) ListFields(c *gin.Context) {
	fields, err := h.svc.FieldsForTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": fields})
}

type assignTaskRequest struct {
	SiteID string `json:"site_id" binding:"required"`
}

// AssignTask binds a task template to a site.
// POST /api/v1/tasks/:id/assignments
func (h *TemplateHandler) AssignTask(c *gin.Context) {
	var req assignTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	st, err := h.svc.AssignTaskToSite(c.Request.Context(), GetOrgID(c), req.SiteID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, st)
}

// UnassignTask removes a task-site binding.
// DELETE /api/v1/tasks/:id/assignments/:siteId
func (h *TemplateHandler) UnassignTask(c *gin.Context) {
	if err := h.svc.UnassignTaskFromSite(c.Request.Context(), c.Param("siteId"), c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"message": "assignment removed"})
}
