package artworks

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gallery-app/internal/api/respond"
	"gallery-app/internal/apperr"
	"gallery-app/internal/app/http/middleware"
	"gallery-app/internal/domain/catalog"
	"gallery-app/internal/inventory"
)

// Accepted upload types, keyed by sniffed content type.
var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type Handler struct {
	store         *inventory.Store
	maxImageBytes int64
}

func NewHandler(store *inventory.Store, maxImageBytes int64) *Handler {
	if maxImageBytes <= 0 {
		maxImageBytes = 10 << 20
	}
	return &Handler{store: store, maxImageBytes: maxImageBytes}
}

func parseFilter(c *gin.Context) (catalog.Filter, error) {
	f := catalog.Filter{Search: strings.TrimSpace(c.Query("search"))}
	if raw := c.Query("category"); raw != "" && !strings.EqualFold(raw, "all") {
		cat, ok := catalog.ParseCategory(raw)
		if !ok {
			return f, apperr.Validation("unknown category %q", raw)
		}
		f.Category = cat
	}
	if raw := c.Query("status"); raw != "" && raw != "all" {
		st := catalog.Status(raw)
		if !st.Valid() {
			return f, apperr.Validation("unknown artwork status %q", raw)
		}
		f.Status = st
	}
	return f, nil
}

// GET /categories
func (h *Handler) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": catalog.Categories})
}

// GET /artworks
func (h *Handler) ListAvailable(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	list, err := h.store.ListAvailable(c.Request.Context(), f)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GET /artworks/:id
func (h *Handler) Get(c *gin.Context) {
	a, err := h.store.Get(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// GET /admin/artworks
func (h *Handler) List(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	list, err := h.store.List(c.Request.Context(), middleware.CallerFrom(c), f)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// POST /admin/artworks
func (h *Handler) Create(c *gin.Context) {
	var in catalog.Fields
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	a, err := h.store.Create(c.Request.Context(), middleware.CallerFrom(c), in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// PUT /admin/artworks/:id
func (h *Handler) Update(c *gin.Context) {
	var p catalog.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		respond.BadRequest(c, err)
		return
	}
	a, err := h.store.Update(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), p)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type statusInput struct {
	Status catalog.Status `json:"status"`
}

// PUT /admin/artworks/:id/status
func (h *Handler) SetStatus(c *gin.Context) {
	var in statusInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	a, err := h.store.SetStatus(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), in.Status)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// DELETE /admin/artworks/:id
func (h *Handler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), middleware.CallerFrom(c), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /admin/artworks/:id/image (multipart, field "image")
func (h *Handler) UploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes+1<<20)

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, apperr.Validation("image exceeds %d bytes", h.maxImageBytes))
			return
		}
		respond.Error(c, apperr.Validation("multipart field \"image\" is required"))
		return
	}
	defer file.Close()

	if header.Size > h.maxImageBytes {
		respond.Error(c, apperr.Validation("image exceeds %d bytes", h.maxImageBytes))
		return
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		respond.BadRequest(c, err)
		return
	}
	head = head[:n]
	ext, ok := imageExt[http.DetectContentType(head)]
	if !ok {
		respond.Error(c, apperr.Validation("unsupported image type"))
		return
	}

	body := io.MultiReader(bytes.NewReader(head), file)
	a, err := h.store.AttachImage(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), ext, body)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
