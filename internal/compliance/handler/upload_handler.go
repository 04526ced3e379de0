package handler

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/zynthio/zynthio/internal/config"
)

// UploadHandler stores checklist photos in object storage and returns the
// URL that photo fields and defect records reference.
type UploadHandler struct {
	client *minio.Client
	cfg    config.MinIOConfig
}

func NewUploadHandler(client *minio.Client, cfg config.MinIOConfig) *UploadHandler {
	return &UploadHandler{client: client, cfg: cfg}
}

// UploadPhoto accepts a multipart photo and writes it under the tenant's
// prefix.
// POST /api/v1/uploads/photos
func (h *UploadHandler) UploadPhoto(c *gin.Context) {
	if h.client == nil {
		Error(c, 50300, "object storage is not configured")
		return
	}

	file, err := c.FormFile("photo")
	if err != nil {
		BadRequest(c, "photo file is required")
		return
	}
	if file.Size > 10<<20 {
		BadRequest(c, "photo exceeds the 10MB limit")
		return
	}

	src, err := file.Open()
	if err != nil {
		InternalError(c, "read upload: "+err.Error())
		return
	}
	defer src.Close()

	objectName := fmt.Sprintf("photos/%s/%s%s",
		GetOrgID(c),
		uuid.New().String(),
		filepath.Ext(file.Filename))

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx := c.Request.Context()
	_, err = h.client.PutObject(ctx, h.cfg.Bucket, objectName, src, file.Size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		InternalError(c, "store photo: "+err.Error())
		return
	}

	url := fmt.Sprintf("%s/%s/%s", h.cfg.PublicURL, h.cfg.Bucket, objectName)
	Created(c, gin.H{
		"photo_url":   url,
		"object_name": objectName,
		"uploaded_at": time.Now().UTC(),
	})
}
