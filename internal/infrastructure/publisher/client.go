// Package publisher pushes assessed products to the downstream storefront.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/logger"
)

const defaultTimeout = 30 * time.Second

// Client is the HTTP publishing collaborator
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        logger.Logger
}

// NewClient creates a new publisher client
func NewClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		log:        log,
	}
}

type publishRequest struct {
	SourceID    string   `json:"source_id"`
	URL         string   `json:"url"`
	Retailer    string   `json:"retailer"`
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Price       float64  `json:"price"`
	ProductCode string   `json:"product_code,omitempty"`
	ImageURLs   []string `json:"image_urls"`
	ExternalID  string   `json:"external_id,omitempty"`
}

// Publish creates or updates the product in the storefront. Images are
// re-hosted by the collaborator and returned in the result.
func (c *Client) Publish(ctx context.Context, p domain.CanonicalProduct) (*domain.PublishResult, error) {
	body, err := json.Marshal(publishRequest{
		SourceID:    p.ID,
		URL:         p.URL,
		Retailer:    p.Retailer,
		Category:    p.Category,
		Title:       p.Title,
		Price:       p.Price,
		ProductCode: p.ProductCode,
		ImageURLs:   p.ImageURLs,
		ExternalID:  p.ExternalID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode publish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/products", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPublishFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d, body: %s", domain.ErrPublishFailed, resp.StatusCode, string(snippet))
	}

	var out domain.PublishResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Join(domain.ErrPublishFailed, domain.ErrMalformedResponse, err)
	}
	if out.ExternalID == "" {
		return nil, fmt.Errorf("%w: response without external id", domain.ErrPublishFailed)
	}
	if out.Status == "" {
		out.Status = domain.ExternalDraft
	}

	c.log.Info("Product published",
		logger.String("canonical_id", p.ID),
		logger.String("external_id", out.ExternalID),
		logger.String("status", string(out.Status)),
	)
	return &out, nil
}
