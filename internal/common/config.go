package common

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration: global crawl defaults, the
// HTTP client profile, directories, logging, and the per-site map.
type Config struct {
	Crawl   CrawlConfig           `toml:"crawl" yaml:"crawl"`
	HTTP    HTTPConfig            `toml:"http" yaml:"http"`
	Output  OutputConfig          `toml:"output" yaml:"output"`
	Logging LoggingConfig         `toml:"logging" yaml:"logging"`
	Sites   map[string]SiteConfig `toml:"sites" yaml:"sites"`
}

// CrawlConfig holds global crawl defaults. Duration fields are strings
// accepting ms, s (also unit-less), m, and h suffixes.
type CrawlConfig struct {
	DefaultDelayPerHost     string `toml:"default_delay_per_host" yaml:"default_delay_per_host"`
	NumWorkers              int    `toml:"num_workers" yaml:"num_workers"`
	NumImageWorkers         int    `toml:"num_image_workers" yaml:"num_image_workers"`
	MaxRequests             int    `toml:"max_requests" yaml:"max_requests"`
	MaxRequestsPerHost      int    `toml:"max_requests_per_host" yaml:"max_requests_per_host"`
	MaxRetries              int    `toml:"max_retries" yaml:"max_retries"`
	InitialRetryDelay       string `toml:"initial_retry_delay" yaml:"initial_retry_delay"`
	MaxRetryDelay           string `toml:"max_retry_delay" yaml:"max_retry_delay"`
	SemaphoreAcquireTimeout string `toml:"semaphore_acquire_timeout" yaml:"semaphore_acquire_timeout"`
	GlobalCrawlTimeout      string `toml:"global_crawl_timeout" yaml:"global_crawl_timeout"`
}

// HTTPConfig holds HTTP client settings shared by all fetchers.
type HTTPConfig struct {
	Timeout             string `toml:"timeout" yaml:"timeout"`
	MaxIdleConns        int    `toml:"max_idle_conns" yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int    `toml:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     string `toml:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	UserAgent           string `toml:"user_agent" yaml:"user_agent"`
	FollowRedirects     bool   `toml:"follow_redirects" yaml:"follow_redirects"`
	MaxRedirects        int    `toml:"max_redirects" yaml:"max_redirects"`
}

// OutputConfig holds output and state directories.
type OutputConfig struct {
	BaseDir  string `toml:"base_dir" yaml:"base_dir"`
	StateDir string `toml:"state_dir" yaml:"state_dir"`
}

// LoggingConfig controls log level, format, and destinations.
type LoggingConfig struct {
	Level  string   `toml:"level" yaml:"level"`
	Format string   `toml:"format" yaml:"format"`
	Output []string `toml:"output" yaml:"output"`
}

// SiteConfig describes one crawl target.
type SiteConfig struct {
	StartURLs              []string `toml:"start_urls" yaml:"start_urls" validate:"required,min=1"`
	AllowedDomain          string   `toml:"allowed_domain" yaml:"allowed_domain" validate:"required,hostname_rfc1123"`
	AllowedPathPrefix      string   `toml:"allowed_path_prefix" yaml:"allowed_path_prefix"`
	ContentSelector        string   `toml:"content_selector" yaml:"content_selector"`
	MaxDepth               int      `toml:"max_depth" yaml:"max_depth"`
	DelayPerHost           string   `toml:"delay_per_host" yaml:"delay_per_host"`
	SkipImages             bool     `toml:"skip_images" yaml:"skip_images"`
	MaxImageSizeBytes      int64    `toml:"max_image_size_bytes" yaml:"max_image_size_bytes"`
	AllowedImageDomains    []string `toml:"allowed_image_domains" yaml:"allowed_image_domains"`
	DisallowedPathPatterns []string `toml:"disallowed_path_patterns" yaml:"disallowed_path_patterns"`
	RespectRobotsTxt       bool     `toml:"respect_robots_txt" yaml:"respect_robots_txt"`
	RespectNoFollow        bool     `toml:"respect_nofollow" yaml:"respect_nofollow"`
	WriteVisitedLog        bool     `toml:"write_visited_log" yaml:"write_visited_log"`
}

// ValidationResult collects validation errors and warnings.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			DefaultDelayPerHost: "500ms",
			NumWorkers:          8,
			NumImageWorkers:     2,
			MaxRetries:          3,
			InitialRetryDelay:   "1s",
			MaxRetryDelay:       "30s",
			GlobalCrawlTimeout:  "0", // unlimited
		},
		HTTP: HTTPConfig{
			Timeout:             "30s",
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     "90s",
			UserAgent:           "scrawl/1.0 (+https://github.com/ternarybob/scrawl)",
			FollowRedirects:     true,
			MaxRedirects:        10,
		},
		Output: OutputConfig{
			BaseDir:  "./output",
			StateDir: "./state",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Sites: make(map[string]SiteConfig),
	}
}

// LoadFromFiles loads configuration from one or more files, later files
// overriding earlier ones, then applies environment overrides. The codec
// is chosen by extension: .toml, or .yaml/.yml.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		default:
			if err := toml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(config)

	// Per-site fallbacks that the codec layer cannot express
	for key, site := range config.Sites {
		if site.ContentSelector == "" {
			site.ContentSelector = "auto"
		}
		if site.DelayPerHost == "" {
			site.DelayPerHost = config.Crawl.DefaultDelayPerHost
		}
		config.Sites[key] = site
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if level := os.Getenv("SCRAWL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("SCRAWL_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if dir := os.Getenv("SCRAWL_OUTPUT_DIR"); dir != "" {
		config.Output.BaseDir = dir
	}
	if dir := os.Getenv("SCRAWL_STATE_DIR"); dir != "" {
		config.Output.StateDir = dir
	}
	if ua := os.Getenv("SCRAWL_USER_AGENT"); ua != "" {
		config.HTTP.UserAgent = ua
	}
	if workers := os.Getenv("SCRAWL_NUM_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			config.Crawl.NumWorkers = n
		}
	}
}

// ParseDurationString parses the crawler's duration grammar: a number
// with ms, s, m, or h suffix; a bare number means seconds.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	unit := time.Second
	num := s
	switch {
	case strings.HasSuffix(s, "ms"):
		unit = time.Millisecond
		num = strings.TrimSuffix(s, "ms")
	case strings.HasSuffix(s, "s"):
		num = strings.TrimSuffix(s, "s")
	case strings.HasSuffix(s, "m"):
		unit = time.Minute
		num = strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "h"):
		unit = time.Hour
		num = strings.TrimSuffix(s, "h")
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return time.Duration(value * float64(unit)), nil
}

// DurationOr parses s, falling back to def when s is empty or invalid.
func DurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := ParseDurationString(s)
	if err != nil {
		return def
	}
	return d
}

// SiteKeys returns the configured site keys in sorted order.
func (c *Config) SiteKeys() []string {
	keys := make([]string, 0, len(c.Sites))
	for k := range c.Sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DelayForSite resolves the per-host delay for a site, falling back to
// the global default.
func (c *Config) DelayForSite(site *SiteConfig) time.Duration {
	def := DurationOr(c.Crawl.DefaultDelayPerHost, 500*time.Millisecond)
	if site == nil || site.DelayPerHost == "" {
		return def
	}
	return DurationOr(site.DelayPerHost, def)
}

// IsPathAllowed reports whether a URL path clears the site's disallowed
// path patterns. Invalid patterns are skipped.
func (s *SiteConfig) IsPathAllowed(path string) bool {
	for _, pattern := range s.DisallowedPathPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(path) {
			return false
		}
	}
	return true
}

// IsImageDomainAllowed reports whether an image host clears the site's
// allow list. An empty list allows everything; entries support "*" and
// "*.<suffix>" wildcards.
func (s *SiteConfig) IsImageDomainAllowed(domain string) bool {
	if len(s.AllowedImageDomains) == 0 {
		return true
	}
	domain = strings.ToLower(domain)
	for _, allowed := range s.AllowedImageDomains {
		allowed = strings.ToLower(allowed)
		switch {
		case allowed == "*":
			return true
		case strings.HasPrefix(allowed, "*."):
			suffix := allowed[1:] // ".example.com"
			if strings.HasSuffix(domain, suffix) || domain == allowed[2:] {
				return true
			}
		case domain == allowed:
			return true
		}
	}
	return false
}

// Validate runs structural validation plus the crawl-specific checks
// surfaced by the validate subcommand.
func (c *Config) Validate() ValidationResult {
	result := ValidationResult{Valid: true}

	v := validator.New()
	for key, site := range c.Sites {
		if err := v.Struct(site); err != nil {
			if errs, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range errs {
					result.Errors = append(result.Errors,
						fmt.Sprintf("site %s: %s failed %q validation", key, fe.Field(), fe.Tag()))
				}
			} else {
				result.Errors = append(result.Errors, fmt.Sprintf("site %s: %v", key, err))
			}
		}
	}

	if len(c.Sites) == 0 {
		result.Errors = append(result.Errors, "no sites configured")
	}

	for _, d := range []struct{ name, value string }{
		{"crawl.default_delay_per_host", c.Crawl.DefaultDelayPerHost},
		{"crawl.initial_retry_delay", c.Crawl.InitialRetryDelay},
		{"crawl.max_retry_delay", c.Crawl.MaxRetryDelay},
		{"http.timeout", c.HTTP.Timeout},
	} {
		if d.value == "" {
			continue
		}
		if _, err := ParseDurationString(d.value); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", d.name, err))
		}
	}

	for key, site := range c.Sites {
		for _, seed := range site.StartURLs {
			if !IsValidHTTPURL(seed) {
				result.Errors = append(result.Errors, fmt.Sprintf("site %s: invalid start url %q", key, seed))
				continue
			}
			if site.AllowedDomain != "" && !InScope(seed, site.AllowedDomain, "") {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("site %s: seed %q is outside allowed_domain %q", key, seed, site.AllowedDomain))
			}
		}

		if site.DelayPerHost != "" {
			d, err := ParseDurationString(site.DelayPerHost)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("site %s: delay_per_host: %v", key, err))
			} else if d < 100*time.Millisecond {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("site %s: delay_per_host %s is below 100ms; may overload the host", key, site.DelayPerHost))
			}
		}

		for _, pattern := range site.DisallowedPathPatterns {
			if _, err := regexp.Compile(pattern); err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("site %s: invalid disallowed_path_pattern %q: %v", key, pattern, err))
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}
