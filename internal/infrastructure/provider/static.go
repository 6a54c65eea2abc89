package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/logger"
	"github.com/shelfwatch/backend/internal/retailer"
)

// StaticHTML fetches server-rendered pages with colly and parses them with
// the retailer's selectors
type StaticHTML struct {
	cfg      Config
	registry *retailer.Registry
	log      logger.Logger
}

// NewStaticHTML creates a new static HTML provider
func NewStaticHTML(cfg Config, registry *retailer.Registry, log logger.Logger) *StaticHTML {
	return &StaticHTML{cfg: cfg, registry: registry, log: log}
}

// Name returns the provider name
func (s *StaticHTML) Name() string { return domain.ProviderStaticHTML }

// Cost returns the per-invocation cost
func (s *StaticHTML) Cost() float64 { return s.cfg.Cost }

// Attempt fetches one page and parses it for the requested mode
func (s *StaticHTML) Attempt(ctx context.Context, target domain.Target, mode domain.Mode) (*domain.Payload, error) {
	profile, err := s.registry.Get(target.Retailer)
	if err != nil {
		return nil, err
	}

	root, err := s.fetch(ctx, target.URL)
	if err != nil {
		return nil, err
	}

	if mode == domain.ModeSingle {
		return &domain.Payload{Detail: parseDetail(root, target.URL, profile)}, nil
	}
	return &domain.Payload{Candidates: parseListing(root, profile)}, nil
}

// fetch visits a URL with a fresh synchronous collector and returns the
// parsed document root
func (s *StaticHTML) fetch(ctx context.Context, pageURL string) (*goquery.Selection, error) {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(s.cfg.userAgent()),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.cfg.timeout())

	var (
		root    *goquery.Selection
		status  int
		failure error
	)

	c.OnHTML("html", func(e *colly.HTMLElement) {
		root = e.DOM
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
		failure = err
	})

	visitErr := c.Visit(pageURL)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	switch {
	case status == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", domain.ErrProviderQuota, status)
	case failure != nil:
		return nil, fmt.Errorf("%w: fetch %s: status %d: %w", domain.ErrProviderFailure, pageURL, status, failure)
	case visitErr != nil:
		return nil, fmt.Errorf("%w: fetch %s: %w", domain.ErrProviderFailure, pageURL, visitErr)
	case root == nil:
		return nil, errors.Join(domain.ErrMalformedResponse, fmt.Errorf("no html document at %s", pageURL))
	}

	s.log.Debug("Static page fetched",
		logger.String("url", pageURL),
		logger.Int("status", status),
	)
	return root, nil
}
