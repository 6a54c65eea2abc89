package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/logger"
	"github.com/shelfwatch/backend/internal/retailer"
)

const jsonAPIMaxAttempts = 3

// JSONAPI is the cheapest tier: a structured catalog API that returns
// listing rows and product details as JSON
type JSONAPI struct {
	httpClient  *http.Client
	cfg         Config
	registry    *retailer.Registry
	rateLimiter *rate.Limiter
	backoff     func(attempt int) time.Duration
	log         logger.Logger
}

// NewJSONAPI creates a new JSON API provider
func NewJSONAPI(cfg Config, registry *retailer.Registry, log logger.Logger) *JSONAPI {
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	return &JSONAPI{
		httpClient: &http.Client{
			Timeout: cfg.timeout(),
		},
		cfg:         cfg,
		registry:    registry,
		rateLimiter: rate.NewLimiter(limit, burst),
		backoff:     exponentialBackoff,
		log:         log,
	}
}

// Name returns the provider name
func (c *JSONAPI) Name() string { return domain.ProviderJSONAPI }

// Cost returns the per-invocation cost
func (c *JSONAPI) Cost() float64 { return c.cfg.Cost }

// Attempt fetches a catalog page or a product detail
func (c *JSONAPI) Attempt(ctx context.Context, target domain.Target, mode domain.Mode) (*domain.Payload, error) {
	profile, err := c.registry.Get(target.Retailer)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("url", target.URL)
	params.Set("retailer", target.Retailer)

	if mode == domain.ModeSingle {
		var resp apiProduct
		if err := c.get(ctx, "/v1/product", params, &resp); err != nil {
			return nil, err
		}
		return &domain.Payload{Detail: resp.toDetail(profile)}, nil
	}

	page := max(target.Page, 1)
	params.Set("page", strconv.Itoa(page))

	var resp apiCatalog
	if err := c.get(ctx, "/v1/catalog", params, &resp); err != nil {
		return nil, err
	}
	return &domain.Payload{Candidates: resp.toCandidates(profile)}, nil
}

// doRequest executes an HTTP GET request with proper headers and error handling
func (c *JSONAPI) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.userAgent())
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderFailure, err)
	}
	return resp, nil
}

// get retries transient failures up to three times with exponential backoff.
// Quota and client errors are returned immediately.
func (c *JSONAPI) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := fmt.Sprintf("%s%s?%s", c.cfg.BaseURL, path, params.Encode())

	var lastErr error
	for attempt := 1; attempt <= jsonAPIMaxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		resp, err := c.doRequest(ctx, reqURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Debug("JSON API request failed",
				logger.String("path", path),
				logger.Int("attempt", attempt),
				logger.Error(err),
			)
			lastErr = err
			if waitErr := c.wait(ctx, attempt); waitErr != nil {
				return waitErr
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			statusErr := statusError(resp.StatusCode, resp.Body)
			_ = resp.Body.Close()
			if !retryable(resp.StatusCode) {
				return statusErr
			}
			c.log.Debug("JSON API transient status",
				logger.String("path", path),
				logger.Int("status", resp.StatusCode),
				logger.Int("attempt", attempt),
			)
			lastErr = statusErr
			if waitErr := c.wait(ctx, attempt); waitErr != nil {
				return waitErr
			}
			continue
		}

		decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out)
		_ = resp.Body.Close()
		if decodeErr != nil {
			return errors.Join(domain.ErrMalformedResponse, decodeErr)
		}
		return nil
	}

	return lastErr
}

func (c *JSONAPI) wait(ctx context.Context, attempt int) error {
	if attempt >= jsonAPIMaxAttempts {
		return nil
	}
	timer := time.NewTimer(c.backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
