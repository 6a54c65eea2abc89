package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/retailer"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig
	Logging       LoggingConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Store         StoreConfig
	Cache         CacheConfig
	Patterns      PatternsConfig
	Extraction    ExtractionConfig
	Review        ReviewConfig
	Collaborators CollaboratorsConfig
	Retailers     map[string]RetailerConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// IsProduction reports whether the service runs in production
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// DSN returns the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StoreConfig selects the canonical store backend
type StoreConfig struct {
	Type string `mapstructure:"type"` // "postgres" or "memory"
}

// CacheConfig holds extraction cache configuration. The cache is a
// development aid and is refused in production.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Type    string        `mapstructure:"type"` // "memory" or "redis"
	TTL     time.Duration `mapstructure:"ttl"`
}

// PatternsConfig selects the pattern learner backend
type PatternsConfig struct {
	Type string `mapstructure:"type"` // "memory" or "redis"
}

// ExtractionConfig holds cascade and run settings
type ExtractionConfig struct {
	GlobalConcurrency  int           `mapstructure:"global_concurrency"`
	ExploreEvery       int           `mapstructure:"explore_every"`
	MinValidRatio      float64       `mapstructure:"min_valid_ratio"`
	ResolveConcurrency int           `mapstructure:"resolve_concurrency"`
	DetailConcurrency  int           `mapstructure:"detail_concurrency"`
	AttemptTimeout     time.Duration `mapstructure:"attempt_timeout"`
}

// ReviewConfig holds review API auth settings
type ReviewConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// CollaboratorConfig describes one external HTTP collaborator
type CollaboratorConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Cost              float64       `mapstructure:"cost"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// CollaboratorsConfig groups provider and publisher endpoints
type CollaboratorsConfig struct {
	JSONAPI    CollaboratorConfig `mapstructure:"json_api"`
	StaticHTML CollaboratorConfig `mapstructure:"static_html"`
	Browser    CollaboratorConfig `mapstructure:"browser"`
	Publisher  CollaboratorConfig `mapstructure:"publisher"`
}

// MatchingConfig holds per-retailer resolver thresholds
type MatchingConfig struct {
	AutoAcceptThreshold  float64 `mapstructure:"auto_accept_threshold"`
	TitlePriceSimilarity float64 `mapstructure:"title_price_similarity"`
	TitleOnlySimilarity  float64 `mapstructure:"title_only_similarity"`
	PriceTolerance       float64 `mapstructure:"price_tolerance"`
}

// PaginationConfig holds per-retailer pagination settings
type PaginationConfig struct {
	Strategy      string `mapstructure:"strategy"` // "fixed_pages" or "infinite_scroll"
	PageParam     string `mapstructure:"page_param"`
	URLTemplate   string `mapstructure:"url_template"`
	BaselinePages int    `mapstructure:"baseline_pages"`
	MonitorPages  int    `mapstructure:"monitor_pages"`
}

// SelectorConfig holds goquery selectors for HTML providers
type SelectorConfig struct {
	Item          string `mapstructure:"item"`
	Title         string `mapstructure:"title"`
	Price         string `mapstructure:"price"`
	OriginalPrice string `mapstructure:"original_price"`
	Link          string `mapstructure:"link"`
	Image         string `mapstructure:"image"`
	Code          string `mapstructure:"code"`
	Stock         string `mapstructure:"stock"`
}

// RetailerConfig is one entry of the retailers map. Matching and pagination
// are pointers so that an absent section is distinguishable from zero values.
type RetailerConfig struct {
	Providers          []string          `mapstructure:"providers"`
	AntiAutomation     bool              `mapstructure:"anti_automation"`
	ProductCodePattern string            `mapstructure:"product_code_pattern"`
	PriceFormat        string            `mapstructure:"price_format"`
	PlaceholderTerms   []string          `mapstructure:"placeholder_terms"`
	MonitorInterval    time.Duration     `mapstructure:"monitor_interval"`
	Concurrency        int               `mapstructure:"concurrency"`
	RequestsPerSecond  float64           `mapstructure:"requests_per_second"`
	Matching           *MatchingConfig   `mapstructure:"matching"`
	Pagination         *PaginationConfig `mapstructure:"pagination"`
	ListingSelectors   SelectorConfig    `mapstructure:"listing_selectors"`
	DetailSelectors    SelectorConfig    `mapstructure:"detail_selectors"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return load("")
}

// LoadFile loads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/shelfwatch/")
	}

	v.SetEnvPrefix("SHELFWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; env vars and defaults cover the rest
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("logging.level", "info")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "shelfwatch")
	v.SetDefault("database.name", "shelfwatch")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("review.jwt_secret", "")

	v.SetDefault("store.type", "memory")
	v.SetDefault("patterns.type", "memory")

	// Extraction cache is off unless explicitly enabled for development
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "10m")

	v.SetDefault("extraction.global_concurrency", 16)
	v.SetDefault("extraction.explore_every", 10)
	v.SetDefault("extraction.min_valid_ratio", 0.8)
	v.SetDefault("extraction.resolve_concurrency", 8)
	v.SetDefault("extraction.detail_concurrency", 4)
	v.SetDefault("extraction.attempt_timeout", "60s")

	for _, name := range []string{"json_api", "static_html", "browser", "publisher"} {
		v.SetDefault("collaborators."+name+".base_url", "")
		v.SetDefault("collaborators."+name+".api_key", "")
	}
	v.SetDefault("collaborators.json_api.timeout", "30s")
	v.SetDefault("collaborators.json_api.cost", 0.001)
	v.SetDefault("collaborators.json_api.requests_per_second", 5)
	v.SetDefault("collaborators.static_html.timeout", "30s")
	v.SetDefault("collaborators.static_html.cost", 0.0001)
	v.SetDefault("collaborators.static_html.user_agent", "shelfwatch/1.0")
	v.SetDefault("collaborators.browser.timeout", "120s")
	v.SetDefault("collaborators.browser.cost", 0.02)
	v.SetDefault("collaborators.publisher.timeout", "30s")
}

// validate validates the configuration. Per-retailer problems are not
// reported here; see Config.Registry.
func validate(config *Config) error {
	if config.Store.Type != "memory" && config.Store.Type != "postgres" {
		return fmt.Errorf("store type must be 'memory' or 'postgres', got: %s", config.Store.Type)
	}

	if config.Store.Type == "postgres" && config.Database.Host == "" {
		return fmt.Errorf("database host is required when store type is 'postgres'")
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Patterns.Type != "memory" && config.Patterns.Type != "redis" {
		return fmt.Errorf("patterns type must be 'memory' or 'redis', got: %s", config.Patterns.Type)
	}

	needsRedis := config.Patterns.Type == "redis" || (config.Cache.Enabled && config.Cache.Type == "redis")
	if needsRedis && config.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when a redis backend is selected")
	}

	if config.Cache.Enabled {
		if config.Server.IsProduction() {
			return fmt.Errorf("extraction cache must not be enabled in production")
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("cache ttl must be positive when the cache is enabled")
		}
		if shortest := shortestInterval(config.Retailers); shortest > 0 && config.Cache.TTL >= shortest {
			return fmt.Errorf("cache ttl %s must be shorter than the shortest monitor interval %s", config.Cache.TTL, shortest)
		}
	}

	if config.Server.IsProduction() && config.Review.JWTSecret == "" {
		return fmt.Errorf("review jwt secret is required in production (set SHELFWATCH_REVIEW_JWT_SECRET)")
	}

	if config.Extraction.MinValidRatio <= 0 || config.Extraction.MinValidRatio > 1 {
		return fmt.Errorf("extraction min_valid_ratio must be in (0, 1], got: %v", config.Extraction.MinValidRatio)
	}

	if config.Extraction.GlobalConcurrency <= 0 {
		return fmt.Errorf("extraction global_concurrency must be positive")
	}

	return nil
}

func shortestInterval(retailers map[string]RetailerConfig) time.Duration {
	var shortest time.Duration
	for _, r := range retailers {
		if r.MonitorInterval <= 0 {
			continue
		}
		if shortest == 0 || r.MonitorInterval < shortest {
			shortest = r.MonitorInterval
		}
	}
	return shortest
}

// Profile converts a retailer entry into a strategy-table profile. Missing
// matching or pagination sections are left zero so validation rejects them.
func (r RetailerConfig) Profile(name string) (*retailer.Profile, error) {
	p := &retailer.Profile{
		Name:              name,
		Providers:         r.Providers,
		AntiAutomation:    r.AntiAutomation,
		PriceFormat:       retailer.PriceFormat(r.PriceFormat),
		PlaceholderTerms:  r.PlaceholderTerms,
		Concurrency:       r.Concurrency,
		RequestsPerSecond: r.RequestsPerSecond,
		MonitorInterval:   r.MonitorInterval,
		ListingSelectors:  r.ListingSelectors.selectors(),
		DetailSelectors:   r.DetailSelectors.selectors(),
	}

	switch p.PriceFormat {
	case "", retailer.PriceDot, retailer.PriceComma:
	default:
		return p, fmt.Errorf("%w: %s: unknown price_format %q", domain.ErrInvalidRetailerConfig, name, r.PriceFormat)
	}

	if r.ProductCodePattern != "" {
		re, err := regexp.Compile(r.ProductCodePattern)
		if err != nil {
			return p, fmt.Errorf("%w: %s: product_code_pattern: %w", domain.ErrInvalidRetailerConfig, name, err)
		}
		p.CodePattern = re
	}

	if r.Matching != nil {
		p.Thresholds = retailer.Thresholds{
			AutoAccept:     r.Matching.AutoAcceptThreshold,
			TitlePrice:     r.Matching.TitlePriceSimilarity,
			TitleOnly:      r.Matching.TitleOnlySimilarity,
			PriceTolerance: r.Matching.PriceTolerance,
		}
	}

	if r.Pagination != nil {
		p.Pagination = retailer.Pagination{
			Strategy:      r.Pagination.Strategy,
			PageParam:     r.Pagination.PageParam,
			URLTemplate:   r.Pagination.URLTemplate,
			BaselinePages: r.Pagination.BaselinePages,
			MonitorPages:  r.Pagination.MonitorPages,
		}
	}

	return p, p.Validate()
}

func (s SelectorConfig) selectors() retailer.Selectors {
	return retailer.Selectors{
		Item:          s.Item,
		Title:         s.Title,
		Price:         s.Price,
		OriginalPrice: s.OriginalPrice,
		Link:          s.Link,
		Image:         s.Image,
		Code:          s.Code,
		Stock:         s.Stock,
	}
}

// Registry builds the retailer strategy table. Retailers with invalid
// configuration are kept out of the table and reported in the returned map.
func (c *Config) Registry() (*retailer.Registry, map[string]error) {
	reg := retailer.NewRegistry()
	for name, rc := range c.Retailers {
		p, err := rc.Profile(name)
		if err != nil {
			reg.Reject(name, err)
			continue
		}
		_ = reg.Add(p)
	}
	return reg, reg.Invalid()
}
