// Package config loads the envelope configuration described in spec
// section 6.3: provider settings, tolerance, trust sets, category table,
// worker pool sizing, cache policy, and retry policy.
//
// Grounded on evalaf/eval/config.go's LoadConfig/LoadConfigFromBytes/
// DefaultConfig shape, using the same gopkg.in/yaml.v3 loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RetryConfig controls SearchProvider's retry/backoff behavior.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseMs      int `yaml:"base_ms"`
	MaxMs       int `yaml:"max_ms"`
	JitterMs    int `yaml:"jitter_ms"`
}

// CacheConfig controls the two TTL+LRU caches (section 4.11).
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	Capacity   int `yaml:"capacity"`
}

// PoolConfig controls the scheduler's worker sizing (section 4.10).
type PoolConfig struct {
	// PerProviderConcurrency sets the search provider's rate limit (calls
	// started per second, and the burst size), independent of the
	// overall worker count; it does not cap calls in flight.
	PerProviderConcurrency int `yaml:"per_provider_concurrency"`
}

// Category is one row of the depreciation category table (section 4.9).
type Category struct {
	Name    string  `yaml:"name"`
	DepRate float64 `yaml:"dep_rate"`
}

// EstimatorConfig controls PriceEstimator's fallback behavior.
type EstimatorConfig struct {
	DefaultPrice   float64 `yaml:"default_price"`
	ConfidenceFloor string `yaml:"confidence_floor"`
}

// LLMConfig names the models used for each LLM-backed component; the
// credentials themselves are supplied out of band (env vars / viper
// overlay), never committed to the YAML file.
type LLMConfig struct {
	EnhancerModel  string `yaml:"enhancer_model"`
	EstimatorModel string `yaml:"estimator_model"`
	CategoryModel  string `yaml:"category_model"`
}

// Config is the full pricing-core configuration envelope.
type Config struct {
	TolerancePct       float64     `yaml:"tolerance_pct"`
	ToleranceUpperPct  float64     `yaml:"tolerance_upper_pct"`
	TrustedDomains     []string    `yaml:"trusted_domains"`
	UntrustedPatterns  []string    `yaml:"untrusted_patterns"`
	BlockedURLPatterns []string    `yaml:"blocked_url_patterns"`
	Synonyms           map[string]string `yaml:"synonyms"`
	Categories         []Category  `yaml:"categories"`
	Retry              RetryConfig `yaml:"retry"`
	Cache              CacheConfig `yaml:"cache"`
	Pool               PoolConfig  `yaml:"pool"`
	Estimator          EstimatorConfig `yaml:"estimator"`
	LLM                LLMConfig   `yaml:"llm"`
}

// Default returns a Config with every zero-value fallback named in spec
// section 6.3.
func Default() *Config {
	return &Config{
		TolerancePct:      50,
		ToleranceUpperPct: 80,
		TrustedDomains: []string{
			"walmart.com", "target.com", "amazon.com", "lowes.com",
			"homedepot.com", "bestbuy.com", "wayfair.com", "costco.com",
			"overstock.com", "kohls.com", "containerstore.com",
			"michaels.com", "hobbylobby.com", "acehardware.com",
		},
		UntrustedPatterns: []string{
			"ebay.com", "etsy.com", "craigslist.org", "aliexpress.com",
			"dhgate.com", "temu.com", "wish.com", "trading", "co.ltd",
			"wholesale", "dropship", "seller", "marketplace",
		},
		BlockedURLPatterns: []string{
			"unavailable", "error", "not-found", "out-of-stock", "sorry",
			"/search?", "google.com/search", "bing.com/search",
			"facebook.com", "instagram.com", "pinterest.com",
		},
		Synonyms: map[string]string{
			"iron and ironing board": "full size ironing board with iron rest",
			"bissell bissell vacuum": "Bissell upright bagless vacuum",
		},
		Categories: DefaultCategories(),
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseMs:      500,
			MaxMs:       5000,
			JitterMs:    250,
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
			Capacity:   1000,
		},
		Pool: PoolConfig{
			PerProviderConcurrency: 8,
		},
		Estimator: EstimatorConfig{
			DefaultPrice:    50,
			ConfidenceFloor: "low",
		},
		LLM: LLMConfig{
			EnhancerModel:  "googleai/gemini-2.5-flash",
			EstimatorModel: "googleai/gemini-2.5-flash",
			CategoryModel:  "googleai/gemini-2.5-flash",
		},
	}
}

// DefaultCategories is the compiled fallback depreciation table used
// when no runtime category table is configured or loading one fails.
func DefaultCategories() []Category {
	return []Category{
		{Name: "APPLIANCES", DepRate: 0.10},
		{Name: "ELC - ELECTRONICS B", DepRate: 0.20},
		{Name: "FURNITURE", DepRate: 0.08},
		{Name: "CLOTHING", DepRate: 0.20},
		{Name: "HOUSEWARES", DepRate: 0.10},
		{Name: "TOOLS", DepRate: 0.07},
		{Name: "TOYS & GAMES", DepRate: 0.15},
		{Name: "SPORTING GOODS", DepRate: 0.12},
		{Name: "JEWELRY", DepRate: 0.03},
		{Name: "LINENS", DepRate: 0.15},
		{Name: "DECOR", DepRate: 0.10},
		{Name: "ANTIQUES & COLLECTIBLES", DepRate: 0.02},
	}
}

// TTL returns the cache TTL as a time.Duration.
func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// Load reads and parses a YAML config file, falling back to Default() as
// LoadFromBytes describes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML config data over Default(). Tolerances, the
// pattern lists, synonyms, categories and each LLM model name fall back
// to the default individually when left empty. The retry, cache, pool
// and estimator sections are taken from the file as a whole only when
// their key field is set (retry.max_attempts, cache.ttl_seconds or
// cache.capacity, pool.per_provider_concurrency,
// estimator.default_price); other fields in such a section do not fall
// back to their defaults, and a section without its key field is
// ignored.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	overlay := &Config{}
	if err := yaml.Unmarshal(data, overlay); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	mergeConfig(cfg, overlay)
	return cfg, nil
}

// mergeConfig overlays non-zero fields from src onto dst; the retry,
// cache, pool and estimator sections are overlaid as whole structs.
func mergeConfig(dst, src *Config) {
	if src.TolerancePct != 0 {
		dst.TolerancePct = src.TolerancePct
	}
	if src.ToleranceUpperPct != 0 {
		dst.ToleranceUpperPct = src.ToleranceUpperPct
	}
	if len(src.TrustedDomains) > 0 {
		dst.TrustedDomains = src.TrustedDomains
	}
	if len(src.UntrustedPatterns) > 0 {
		dst.UntrustedPatterns = src.UntrustedPatterns
	}
	if len(src.BlockedURLPatterns) > 0 {
		dst.BlockedURLPatterns = src.BlockedURLPatterns
	}
	if len(src.Synonyms) > 0 {
		dst.Synonyms = src.Synonyms
	}
	if len(src.Categories) > 0 {
		dst.Categories = src.Categories
	}
	if src.Retry.MaxAttempts != 0 {
		dst.Retry = src.Retry
	}
	if src.Cache.TTLSeconds != 0 || src.Cache.Capacity != 0 {
		dst.Cache = src.Cache
	}
	if src.Pool.PerProviderConcurrency != 0 {
		dst.Pool = src.Pool
	}
	if src.Estimator.DefaultPrice != 0 {
		dst.Estimator = src.Estimator
	}
	if src.LLM.EnhancerModel != "" {
		dst.LLM.EnhancerModel = src.LLM.EnhancerModel
	}
	if src.LLM.EstimatorModel != "" {
		dst.LLM.EstimatorModel = src.LLM.EstimatorModel
	}
	if src.LLM.CategoryModel != "" {
		dst.LLM.CategoryModel = src.LLM.CategoryModel
	}
}
