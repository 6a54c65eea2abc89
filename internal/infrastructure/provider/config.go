package provider

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shelfwatch/backend/internal/domain"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "ShelfWatch/1.0"
	maxBodyBytes     = 8 << 20
)

// Config describes one provider endpoint
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	Cost              float64
	RequestsPerSecond float64
	UserAgent         string
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func (c Config) userAgent() string {
	if c.UserAgent == "" {
		return defaultUserAgent
	}
	return c.UserAgent
}

// statusError maps an unsuccessful HTTP status to a provider error
func statusError(status int, body io.Reader) error {
	snippet, _ := io.ReadAll(io.LimitReader(body, 512))
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusPaymentRequired:
		return fmt.Errorf("%w: status %d", domain.ErrProviderQuota, status)
	default:
		return fmt.Errorf("%w: status %d, body: %s", domain.ErrProviderFailure, status, string(snippet))
	}
}

// retryable reports whether a status is worth another attempt
func retryable(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusRequestTimeout
}

// exponentialBackoff returns 500ms, 1s, 2s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}
