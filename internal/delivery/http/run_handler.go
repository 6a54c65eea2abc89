package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/usecase"
)

// StartRun dispatches a monitor run and answers 202 with its summary
func (h *Handler) StartRun(c *gin.Context) {
	var req usecase.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errors.Join(domain.ErrInvalidRequest, err))
		return
	}

	run, err := h.runs.Dispatch(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Location", "/api/v1/runs/"+run.ID)
	c.JSON(http.StatusAccepted, run)
}

// GetRun returns one run summary
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.catalog.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRuns returns run summaries, newest first
func (h *Handler) ListRuns(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.respondError(c, err)
		return
	}

	runs, err := h.catalog.ListRuns(c.Request.Context(), c.Query("retailer"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}
