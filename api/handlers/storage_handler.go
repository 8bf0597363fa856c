package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wholesale-market/internal/services"
)

const maxUploadSize = 10 << 20

var (
	uploadBuckets = []string{services.ProductImageBucket, "avatars", "stores"}
	imageTypes    = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

	errUnknownBucket   = errors.New("unknown bucket")
	errUnsupportedType = errors.New("unsupported file type")
	errTooLarge        = errors.New("file too large")
)

type StorageHandler struct {
	sessions services.SessionProvider
	storage  services.ObjectStorage
}

func NewStorageHandler(sessions services.SessionProvider, storage services.ObjectStorage) *StorageHandler {
	return &StorageHandler{sessions: sessions, storage: storage}
}

// POST /api/storage/:bucket
// multipart form, field "file"; images only
func (h *StorageHandler) Upload(c *gin.Context) {
	session, err := h.sessions.RequireActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	bucket := c.Param("bucket")
	if !slices.Contains(uploadBuckets, bucket) {
		badRequest(c, errUnknownBucket)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	if header.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "message": "حجم الملف كبير جداً", "error": errTooLarge.Error()})
		return
	}
	f, err := header.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize+1))
	if err != nil {
		badRequest(c, err)
		return
	}
	if len(data) > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "message": "حجم الملف كبير جداً", "error": errTooLarge.Error()})
		return
	}

	mtype := mimetype.Detect(data)
	if !slices.ContainsFunc(imageTypes, func(t string) bool { return mtype.Is(t) }) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"success": false,
			"message": "نوع الملف غير مدعوم",
			"error":   fmt.Sprintf("%v: %s", errUnsupportedType, mtype.String()),
		})
		return
	}

	name, err := uuid.NewV7()
	if err != nil {
		name = uuid.New()
	}
	objectPath := path.Join(session.UserID.String(), name.String()+mtype.Extension())
	if err := h.storage.Upload(c.Request.Context(), bucket, objectPath, data, mtype.String()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{
		"path":         objectPath,
		"url":          h.storage.PublicURL(bucket, objectPath),
		"content_type": mtype.String(),
	})
}
