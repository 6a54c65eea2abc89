package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/logger"
	"github.com/shelfwatch/backend/internal/usecase"
)

// RunService starts monitor runs in the background
type RunService interface {
	Dispatch(ctx context.Context, req usecase.RunRequest) (*domain.RunSummary, error)
}

// ReviewService applies human decisions
type ReviewService interface {
	ListPending(ctx context.Context, kind domain.ReviewKind, limit int) ([]domain.ReviewItem, error)
	Get(ctx context.Context, id string) (*domain.ReviewItem, error)
	Decide(ctx context.Context, id string, decision domain.ReviewDecision) (*domain.ReviewItem, error)
	Publish(ctx context.Context, canonicalID string) (*domain.CanonicalProduct, error)
}

// CatalogService reads canonical products, runs and queues
type CatalogService interface {
	ListProducts(ctx context.Context, filter domain.CanonicalFilter) ([]domain.CanonicalProduct, error)
	GetProduct(ctx context.Context, id string) (*domain.CanonicalProduct, error)
	Archive(ctx context.Context, id string) (*domain.CanonicalProduct, error)
	ListUpdates(ctx context.Context, retailer string, limit int) ([]domain.UpdateQueueEntry, error)
	GetRun(ctx context.Context, id string) (*domain.RunSummary, error)
	ListRuns(ctx context.Context, retailer string, limit int) ([]domain.RunSummary, error)
	PatternStats(ctx context.Context, retailer string) ([]domain.PatternStats, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	runs    RunService
	reviews ReviewService
	catalog CatalogService
	log     logger.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(runs RunService, reviews ReviewService, catalog CatalogService, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{runs: runs, reviews: reviews, catalog: catalog, log: log}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "shelfwatch-backend",
		"version": "1.0.0",
	})
}

// respondError maps domain errors to HTTP statuses
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidDecision):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrCanonicalNotFound), errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, domain.ErrReviewNotFound), errors.Is(err, domain.ErrUnknownRetailer):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyResolved), errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDuplicateCanonical):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRetailerConfig):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPublishFailed), errors.Is(err, domain.ErrExtractionExhausted):
		status = http.StatusBadGateway
	case errors.Is(err, usecase.ErrDispatcherClosed):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("Request failed",
			logger.String("path", c.Request.URL.Path),
			logger.Error(err),
		)
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// queryInt reads a non-negative integer query parameter
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.Join(domain.ErrInvalidRequest, errors.New(key+" must be a non-negative integer"))
	}
	return n, nil
}
