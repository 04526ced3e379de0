package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/zynthio/zynthio/internal/compliance/repository"
	"github.com/zynthio/zynthio/internal/compliance/service"
	"github.com/zynthio/zynthio/internal/config"
)

// Handlers is the aggregate registered on the router.
type Handlers struct {
	Organization *OrganizationHandler
	Template     *TemplateHandler
	Checklist    *ChecklistHandler
	Defect       *DefectHandler
	Upload       *UploadHandler
}

// NewHandlers wires the handler aggregate.
func NewHandlers(svc *service.Services, repos *repository.Repositories, minioClient *minio.Client, cfg *config.Config) *Handlers {
	return &Handlers{
		Organization: NewOrganizationHandler(repos.Organization),
		Template:     NewTemplateHandler(svc.Template),
		Checklist:    NewChecklistHandler(svc),
		Defect:       NewDefectHandler(svc.Defect),
		Upload:       NewUploadHandler(minioClient, cfg.MinIO),
	}
}

// Response is the envelope every endpoint returns.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success responds 200.
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created responds 201.
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error responds with an application code whose first three digits are the
// HTTP status.
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// RespondError maps the service error taxonomy onto HTTP. Validation
// errors carry their per-field diagnostics in the payload.
func RespondError(c *gin.Context, err error) {
	if ve, ok := service.AsValidation(err); ok {
		c.JSON(422, Response{
			Code:    42200,
			Message: "validation failed",
			Data:    gin.H{"fields": ve.Fields},
		})
		return
	}
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, service.ErrConflict), errors.Is(err, repository.ErrDuplicate):
		Conflict(c, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		Forbidden(c, err.Error())
	case errors.Is(err, service.ErrFatal):
		Error(c, 50010, err.Error())
	case errors.Is(err, service.ErrTransient):
		Error(c, 50300, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID reads the authenticated user from the request context.
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetOrgID reads the tenant boundary from the request context.
func GetOrgID(c *gin.Context) string {
	orgID, _ := c.Get("organization_id")
	if id, ok := orgID.(string); ok {
		return id
	}
	return ""
}

// GetPagination reads page/page_size query params with sane bounds.
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}
