package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	appIDPattern  = regexp.MustCompile(`^[0-9]+$`)
	regionPattern = regexp.MustCompile(`^[a-z]{2}$`)
)

// Config holds collector configuration.
type Config struct {
	BaseURL           string        `yaml:"base_url"`
	AppID             string        `yaml:"app_id"`
	Regions           []string      `yaml:"regions"`
	LanguageFilter    bool          `yaml:"language_filter"`
	TargetLanguage    string        `yaml:"target_language"`
	MaxPages          int           `yaml:"max_pages"`
	CourtesyDelay     time.Duration `yaml:"courtesy_delay"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax   time.Duration `yaml:"retry_backoff_max"`
	UserAgent         string        `yaml:"user_agent"`
	LanguageCacheSize int           `yaml:"language_cache_size"`
	ResultCache       string        `yaml:"result_cache"` // memory, redis, or none
	ResultCacheSize   int           `yaml:"result_cache_size"`
	ResultCacheTTL    time.Duration `yaml:"result_cache_ttl"`
	RedisAddr         string        `yaml:"redis_addr"`
	RedisPassword     string        `yaml:"redis_password"`
	RedisDB           int           `yaml:"redis_db"`
	OutputFile        string        `yaml:"output_file"`
	OutputFormat      string        `yaml:"output_format"` // csv, json, or dual
	CSVBOM            bool          `yaml:"csv_bom"`
	HTTPAddr          string        `yaml:"http_addr"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	Verbose           bool          `yaml:"verbose"`
}

// DefaultConfig returns conservative defaults for the public feed.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://itunes.apple.com",
		Regions:           []string{"ru"},
		LanguageFilter:    true,
		TargetLanguage:    "ru",
		MaxPages:          10,
		CourtesyDelay:     200 * time.Millisecond,
		Timeout:           15 * time.Second,
		RequestsPerSecond: 5,
		MaxRetries:        2,
		RetryBackoff:      200 * time.Millisecond,
		RetryBackoffMax:   2 * time.Second,
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		LanguageCacheSize: 65536,
		ResultCache:       "memory",
		ResultCacheSize:   128,
		ResultCacheTTL:    0,
		RedisAddr:         "localhost:6379",
		OutputFile:        "output/reviews.csv",
		OutputFormat:      "csv",
		CSVBOM:            true,
		HTTPAddr:          ":8080",
		MetricsAddr:       "",
		Verbose:           false,
	}
}

// Load returns the defaults overlaid with the YAML file at path.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.AppID != "" && !ValidAppID(c.AppID) {
		return fmt.Errorf("app id must contain only digits")
	}
	for _, region := range c.Regions {
		if !ValidRegion(region) {
			return fmt.Errorf("invalid region %q", region)
		}
	}
	if c.LanguageFilter && c.TargetLanguage == "" {
		return fmt.Errorf("target language is required when the language filter is enabled")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.CourtesyDelay < 0 {
		return fmt.Errorf("courtesy delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.LanguageCacheSize <= 0 {
		return fmt.Errorf("language cache size must be positive")
	}
	switch c.ResultCache {
	case "none":
	case "memory":
		if c.ResultCacheSize <= 0 {
			return fmt.Errorf("result cache size must be positive")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis result cache")
		}
	default:
		return fmt.Errorf("result cache must be memory, redis, or none")
	}
	if c.ResultCacheTTL < 0 {
		return fmt.Errorf("result cache ttl cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}

	return nil
}

// ValidAppID reports whether id is a non-empty string of decimal digits.
func ValidAppID(id string) bool {
	return appIDPattern.MatchString(id)
}

// ValidRegion reports whether region looks like a two-letter storefront code.
func ValidRegion(region string) bool {
	return regionPattern.MatchString(region)
}

// ParseRegions splits a comma separated list, lower-cases the codes and drops
// blanks and repeats while keeping the first position of each code.
func ParseRegions(list string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(list, ",") {
		region := strings.ToLower(strings.TrimSpace(part))
		if region == "" {
			continue
		}
		if _, ok := seen[region]; ok {
			continue
		}
		seen[region] = struct{}{}
		out = append(out, region)
	}
	return out
}

// EnvString returns the value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvBool parses key as a boolean when it is set.
func EnvBool(key string) (bool, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return b, true, nil
}

// EnvDuration parses key as a Go duration when it is set.
func EnvDuration(key string) (time.Duration, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// ApplyEnv overrides fields from REVIEWS_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := EnvString("REVIEWS_BASE_URL"); ok {
		c.BaseURL = v
	}
	if v, ok := EnvString("REVIEWS_APP_ID"); ok {
		c.AppID = strings.TrimSpace(v)
	}
	if v, ok := EnvString("REVIEWS_REGIONS"); ok {
		c.Regions = ParseRegions(v)
	}
	if v, ok, err := EnvBool("REVIEWS_LANGUAGE_FILTER"); err != nil {
		return err
	} else if ok {
		c.LanguageFilter = v
	}
	if v, ok := EnvString("REVIEWS_TARGET_LANGUAGE"); ok {
		c.TargetLanguage = v
	}
	if v, ok, err := EnvInt("REVIEWS_MAX_PAGES"); err != nil {
		return err
	} else if ok {
		c.MaxPages = v
	}
	if v, ok, err := EnvDuration("REVIEWS_COURTESY_DELAY"); err != nil {
		return err
	} else if ok {
		c.CourtesyDelay = v
	}
	if v, ok, err := EnvInt("REVIEWS_MAX_RETRIES"); err != nil {
		return err
	} else if ok {
		c.MaxRetries = v
	}
	if v, ok := EnvString("REVIEWS_RESULT_CACHE"); ok {
		c.ResultCache = strings.ToLower(v)
	}
	if v, ok := EnvString("REVIEWS_REDIS_ADDR"); ok {
		c.RedisAddr = v
	}
	if v, ok := EnvString("REVIEWS_REDIS_PASSWORD"); ok {
		c.RedisPassword = v
	}
	if v, ok := EnvString("REVIEWS_OUTPUT"); ok {
		c.OutputFile = v
	}
	if v, ok := EnvString("REVIEWS_HTTP_ADDR"); ok {
		c.HTTPAddr = v
	}
	if v, ok := EnvString("REVIEWS_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	return nil
}
