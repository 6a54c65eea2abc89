package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/logger"
	"github.com/shelfwatch/backend/internal/retailer"
)

// Browser asks a headless rendering service for the final DOM of a page.
// It is the most expensive tier and the only one that defeats anti-automation
// and walks infinite scroll.
type Browser struct {
	httpClient *http.Client
	cfg        Config
	registry   *retailer.Registry
	log        logger.Logger
}

// NewBrowser creates a new browser rendering provider
func NewBrowser(cfg Config, registry *retailer.Registry, log logger.Logger) *Browser {
	return &Browser{
		httpClient: &http.Client{Timeout: cfg.timeout()},
		cfg:        cfg,
		registry:   registry,
		log:        log,
	}
}

// Name returns the provider name
func (b *Browser) Name() string { return domain.ProviderBrowser }

// Cost returns the per-invocation cost
func (b *Browser) Cost() float64 { return b.cfg.Cost }

type renderRequest struct {
	URL         string `json:"url"`
	ScrollSteps int    `json:"scroll_steps,omitempty"`
	WaitFor     string `json:"wait_for,omitempty"`
}

type renderResponse struct {
	HTML     string `json:"html"`
	FinalURL string `json:"final_url"`
}

// Attempt renders the target and parses the resulting DOM
func (b *Browser) Attempt(ctx context.Context, target domain.Target, mode domain.Mode) (*domain.Payload, error) {
	profile, err := b.registry.Get(target.Retailer)
	if err != nil {
		return nil, err
	}

	wait := profile.ListingSelectors.Item
	if mode == domain.ModeSingle {
		wait = profile.DetailSelectors.Title
	}
	rendered, err := b.render(ctx, renderRequest{URL: target.URL, ScrollSteps: target.ScrollSteps, WaitFor: wait})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered.HTML))
	if err != nil {
		return nil, errors.Join(domain.ErrMalformedResponse, err)
	}

	if mode == domain.ModeSingle {
		pageURL := target.URL
		if rendered.FinalURL != "" {
			pageURL = rendered.FinalURL
		}
		return &domain.Payload{Detail: parseDetail(doc.Selection, pageURL, profile)}, nil
	}
	return &domain.Payload{Candidates: parseListing(doc.Selection, profile)}, nil
}

func (b *Browser) render(ctx context.Context, in renderRequest) (*renderResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", b.cfg.userAgent())
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, resp.Body)
	}

	var out renderResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return nil, errors.Join(domain.ErrMalformedResponse, err)
	}
	if strings.TrimSpace(out.HTML) == "" {
		return nil, errors.Join(domain.ErrMalformedResponse, errors.New("empty render"))
	}

	b.log.Debug("Page rendered",
		logger.String("url", in.URL),
		logger.Int("scroll_steps", in.ScrollSteps),
		logger.Int("bytes", len(out.HTML)),
	)
	return &out, nil
}
