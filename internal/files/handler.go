package files

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"popkat/internal/shared/server/respond"
)

const (
	defaultMaxUploadBytes = 100 << 20
	immutableCacheControl = "public, max-age=31536000, immutable"

	// Context keys read by the request logging middleware.
	ctxFileKey = "fileKey"
	ctxOwnerID = "ownerId"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

// NewHandler constructs a Handler. A non-positive limit selects the default.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches file routes. deleteGuard runs before the delete handler when non-nil.
func (h *Handler) RegisterRoutes(rg gin.IRoutes, deleteGuard gin.HandlerFunc) {
	rg.POST("/upload", h.upload)
	if deleteGuard != nil {
		rg.DELETE("/delete", deleteGuard, h.remove)
	} else {
		rg.DELETE("/delete", h.remove)
	}
	rg.GET("/:key", h.get)
	rg.GET("/:key/meta", h.meta)
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "file exceeds upload limit", gin.H{"limit": h.MaxUploadBytes})
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	ownerID := formOrHeader(c, "userID", "X-User-Id")
	c.Set(ctxOwnerID, ownerID)

	rec, err := h.Svc.Upload(c.Request.Context(), UploadInput{
		FileName:    fileHeader.Filename,
		ContentType: partContentType(fileHeader.Header.Get("Content-Type"), fileHeader.Filename),
		Size:        fileHeader.Size,
		OwnerID:     ownerID,
		Platform:    formOrHeader(c, "platform", "X-Platform"),
		Body:        file,
	})
	if err != nil {
		writeError(c, err, "failed to upload file")
		return
	}

	c.Set(ctxFileKey, rec.Key)
	respond.JSON(c, http.StatusCreated, toUploadResponse(rec))
}

func (h *Handler) get(c *gin.Context) {
	key := c.Param("key")
	c.Set(ctxFileKey, key)

	obj, err := h.Svc.Open(c.Request.Context(), key)
	if err != nil {
		writeError(c, err, "failed to fetch file")
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := obj.Size
	if size < 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, contentType, obj.Body, map[string]string{
		"Cache-Control": immutableCacheControl,
	})
}

func (h *Handler) meta(c *gin.Context) {
	key := c.Param("key")
	c.Set(ctxFileKey, key)

	rec, err := h.Svc.Meta(c.Request.Context(), key)
	if err != nil {
		writeError(c, err, "failed to fetch metadata")
		return
	}
	respond.OK(c, toMetaResponse(rec))
}

func (h *Handler) remove(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader("key"))
	if key == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "key header is required", nil)
		return
	}
	c.Set(ctxFileKey, key)

	if err := h.Svc.Delete(c.Request.Context(), key); err != nil {
		writeError(c, err, "failed to delete file")
		return
	}
	respond.OK(c, gin.H{"deleted": true, "key": key})
}

func writeError(c *gin.Context, err error, message string) {
	var uploadErr *UploadError
	var deleteErr *DeletionError
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.As(err, &uploadErr):
		respond.Error(c, http.StatusInternalServerError, "upload_failed", message, gin.H{
			"stage":    uploadErr.Stage,
			"orphaned": uploadErr.Orphaned,
		})
	case errors.As(err, &deleteErr):
		respond.Error(c, http.StatusInternalServerError, "delete_failed", message, gin.H{
			"stage": deleteErr.Stage,
		})
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", message, nil)
	}
}

// isTooLarge matches the MaxBytesReader error even when the multipart parser flattened it.
func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func formOrHeader(c *gin.Context, field, header string) string {
	if v := strings.TrimSpace(c.PostForm(field)); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader(header))
}

// partContentType trusts the multipart part header unless it is missing or generic.
func partContentType(declared, filename string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return declared
}
