package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"imagevault/internal/access"
	"imagevault/internal/middleware"
	"imagevault/internal/service"
)

type imageResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	URI           string    `json:"uri"`
	Format        string    `json:"format"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	SizeBytes     int64     `json:"sizeBytes"`
	ExpirySeconds int       `json:"expirySeconds"`
	CreatedAt     time.Time `json:"createdAt"`
}

type uploadResponse struct {
	Image      imageResponse  `json:"image"`
	Tier       string         `json:"tier,omitempty"`
	URL        string         `json:"url,omitempty"`
	TempURL    string         `json:"tempUrl,omitempty"`
	Thumbnails map[int]string `json:"thumbnails"`
}

func (h HandlerSet) UploadImage(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if h.deps.MaxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.deps.MaxUpload)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}

	expiry := access.ExpiryDisabled
	if raw := c.PostForm("expirySeconds"); raw != "" {
		expiry, err = strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_expiry", "message": "expirySeconds must be an integer."})
			return
		}
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	result, err := h.deps.Uploads.Upload(c.Request.Context(), service.UploadInput{
		UserID:        user.ID,
		Filename:      header.Filename,
		Description:   c.PostForm("description"),
		DeclaredType:  header.Header.Get("Content-Type"),
		ExpirySeconds: expiry,
		File:          file,
	})
	if err != nil {
		h.writeUploadError(c, err)
		return
	}

	resp := uploadResponse{
		Image:      toImageResponse(result),
		URL:        result.URL,
		TempURL:    result.TempURL,
		Thumbnails: result.Thumbnails,
	}
	if result.Tier != nil {
		resp.Tier = result.Tier.Name
	}

	c.JSON(http.StatusCreated, resp)
}

func toImageResponse(result service.UploadResult) imageResponse {
	img := result.Image
	return imageResponse{
		ID:            img.ID,
		Name:          img.Name,
		Description:   img.Description,
		URI:           img.URI,
		Format:        img.Format,
		Width:         img.Width,
		Height:        img.Height,
		SizeBytes:     img.SizeBytes,
		ExpirySeconds: img.ExpirySeconds,
		CreatedAt:     img.CreatedAt,
	}
}

func (h HandlerSet) writeUploadError(c *gin.Context, err error) {
	status, code := http.StatusBadRequest, ""
	switch {
	case errors.Is(err, service.ErrInvalidExpiry):
		code = "invalid_expiry"
	case errors.Is(err, service.ErrEmptyFile):
		code = "file_required"
	case errors.Is(err, service.ErrFileTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, service.ErrUnsupportedMedia):
		code = "unsupported_media_type"
	case errors.Is(err, service.ErrContentTypeMismatch):
		code = "content_type_mismatch"
	case errors.Is(err, service.ErrCorruptImage):
		code = "corrupt_image"
	case errors.Is(err, service.ErrTooManyPixels):
		status, code = http.StatusRequestEntityTooLarge, "image_too_large"
	default:
		if _, ok := access.ReasonOf(err); ok {
			h.writeAccessError(c, err)
			return
		}
		h.log.Error().Err(err).Msg("upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		return
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func (h HandlerSet) ListImages(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, offset := pagination(c)
	images, err := h.deps.Images.ListByUser(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
		return
	}

	items := make([]gin.H, 0, len(images))
	for _, img := range images {
		items = append(items, gin.H{
			"id":          img.ID,
			"name":        img.Name,
			"description": img.Description,
			"uri":         img.URI,
			"createdAt":   img.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) GetOriginal(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	asset, err := h.deps.Access.GetOriginal(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		h.writeAccessError(c, err)
		return
	}
	serveAsset(c, asset)
}

func (h HandlerSet) GetThumbnail(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	size, err := strconv.Atoi(c.Param("size"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(access.ReasonInvalidSize),
			"message": "Thumbnail size must be a positive number of pixels.",
		})
		return
	}

	asset, err := h.deps.Access.GetThumbnail(c.Request.Context(), c.Param("id"), size, user.ID)
	if err != nil {
		h.writeAccessError(c, err)
		return
	}
	serveAsset(c, asset)
}

func (h HandlerSet) GetByTempLink(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	asset, err := h.deps.Access.GetByTempLink(c.Request.Context(), c.Param("tempId"), user.ID, h.deps.Clock())
	if err != nil {
		h.writeAccessError(c, err)
		return
	}
	serveAsset(c, asset)
}

// serveAsset streams the asset and always closes its body, including when the
// client goes away mid-transfer.
func serveAsset(c *gin.Context, asset *access.Asset) {
	defer asset.Body.Close()

	contentType := asset.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.DataFromReader(http.StatusOK, asset.Size, contentType, asset.Body, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": asset.Filename}),
		"Cache-Control":       "private",
	})
}

func pagination(c *gin.Context) (int, int) {
	limit := 50
	offset := 0

	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}
	return limit, offset
}
