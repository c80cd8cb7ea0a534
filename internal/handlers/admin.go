package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) AdminListImages(c *gin.Context) {
	limit, offset := pagination(c)

	images, err := h.deps.Images.List(c.Request.Context(), limit, offset)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
		return
	}

	items := make([]map[string]interface{}, 0, len(images))
	for _, img := range images {
		items = append(items, map[string]interface{}{
			"id":            img.ID,
			"userId":        img.UserID,
			"name":          img.Name,
			"format":        img.Format,
			"width":         img.Width,
			"height":        img.Height,
			"sizeBytes":     img.SizeBytes,
			"hasTempLink":   img.TempURI != "",
			"expirySeconds": img.ExpirySeconds,
			"createdAt":     img.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
	})
}

func (h HandlerSet) AdminListTiers(c *gin.Context) {
	tiers, err := h.deps.Tiers.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
		return
	}

	items := make([]gin.H, 0, len(tiers))
	for _, tier := range tiers {
		items = append(items, gin.H{
			"id":                  tier.ID,
			"name":                tier.Name,
			"thumbnailSizes":      tier.ThumbnailSizes,
			"allowsOriginal":      tier.AllowsOriginal,
			"allowsExpiringLinks": tier.AllowsExpiringLinks,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
