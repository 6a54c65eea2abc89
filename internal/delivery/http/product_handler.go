package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelfwatch/backend/internal/domain"
)

// ListProducts returns canonical products filtered by retailer, category and stage
func (h *Handler) ListProducts(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		h.respondError(c, err)
		return
	}

	products, err := h.catalog.ListProducts(c.Request.Context(), domain.CanonicalFilter{
		Retailer: c.Query("retailer"),
		Category: c.Query("category"),
		Stage:    domain.LifecycleStage(c.Query("stage")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

// GetProduct returns one canonical product
func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ArchiveProduct moves a canonical product to archived
func (h *Handler) ArchiveProduct(c *gin.Context) {
	p, err := h.catalog.Archive(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PublishProduct pushes an assessed product to the storefront
func (h *Handler) PublishProduct(c *gin.Context) {
	p, err := h.reviews.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListUpdates returns queued price changes, newest first
func (h *Handler) ListUpdates(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.respondError(c, err)
		return
	}

	updates, err := h.catalog.ListUpdates(c.Request.Context(), c.Query("retailer"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updates": updates, "count": len(updates)})
}

// PatternStats returns the learner counters for a retailer
func (h *Handler) PatternStats(c *gin.Context) {
	stats, err := h.catalog.PatternStats(c.Request.Context(), c.Param("retailer"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if stats == nil {
		stats = []domain.PatternStats{}
	}
	c.JSON(http.StatusOK, gin.H{"retailer": c.Param("retailer"), "stats": stats})
}
