package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelfwatch/backend/internal/domain"
)

// ListReviews returns pending review items, oldest first
func (h *Handler) ListReviews(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.respondError(c, err)
		return
	}

	items, err := h.reviews.ListPending(c.Request.Context(), domain.ReviewKind(c.Query("kind")), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// GetReview returns one review item
func (h *Handler) GetReview(c *gin.Context) {
	item, err := h.reviews.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DecideReview records a reviewer decision. The reviewer comes from the
// auth token, never from the body.
func (h *Handler) DecideReview(c *gin.Context) {
	var decision domain.ReviewDecision
	if err := c.ShouldBindJSON(&decision); err != nil {
		h.respondError(c, errors.Join(domain.ErrInvalidRequest, err))
		return
	}
	decision.Reviewer = reviewerFrom(c)

	item, err := h.reviews.Decide(c.Request.Context(), c.Param("id"), decision)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
