package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"500ms", 500 * time.Millisecond},
		{"2s", 2 * time.Second},
		{"2", 2 * time.Second},
		{"1.5s", 1500 * time.Millisecond},
		{"0", 0},
		{"3m", 3 * time.Minute},
		{"1h", time.Hour},
		{" 250ms ", 250 * time.Millisecond},
	}
	for _, tt := range tests {
		got, err := ParseDurationString(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}

	for _, in := range []string{"", "abc", "-5s", "5x"} {
		_, err := ParseDurationString(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestDurationOr(t *testing.T) {
	assert.Equal(t, time.Second, DurationOr("", time.Second))
	assert.Equal(t, time.Second, DurationOr("garbage", time.Second))
	assert.Equal(t, 250*time.Millisecond, DurationOr("250ms", time.Second))
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()
	assert.Equal(t, 8, config.Crawl.NumWorkers)
	assert.Equal(t, 3, config.Crawl.MaxRetries)
	assert.Equal(t, "500ms", config.Crawl.DefaultDelayPerHost)
	assert.True(t, config.HTTP.FollowRedirects)
	assert.NotEmpty(t, config.HTTP.UserAgent)
	assert.NotNil(t, config.Sites)
}

func TestLoadFromFilesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[crawl]
num_workers = 4
default_delay_per_host = "200ms"

[output]
base_dir = "/tmp/out"

[sites.godocs]
start_urls = ["https://go.dev/doc/"]
allowed_domain = "go.dev"
allowed_path_prefix = "/doc"
max_depth = 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 4, config.Crawl.NumWorkers)
	assert.Equal(t, "/tmp/out", config.Output.BaseDir)

	site, ok := config.Sites["godocs"]
	require.True(t, ok)
	assert.Equal(t, "go.dev", site.AllowedDomain)
	assert.Equal(t, 3, site.MaxDepth)
	// fallbacks applied after decode
	assert.Equal(t, "auto", site.ContentSelector)
	assert.Equal(t, "200ms", site.DelayPerHost)
}

func TestLoadFromFilesYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.yaml")

	require.NoError(t, os.WriteFile(base, []byte(`
[crawl]
num_workers = 4

[sites.docs]
start_urls = ["https://ex.com/docs/"]
allowed_domain = "ex.com"
`), 0644))
	require.NoError(t, os.WriteFile(override, []byte(`
crawl:
  num_workers: 2
`), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)
	assert.Equal(t, 2, config.Crawl.NumWorkers)
	assert.Contains(t, config.Sites, "docs")
}

func TestLoadFromFilesMissing(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestSiteKeysSorted(t *testing.T) {
	config := NewDefaultConfig()
	config.Sites["zeta"] = SiteConfig{}
	config.Sites["alpha"] = SiteConfig{}
	config.Sites["mid"] = SiteConfig{}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, config.SiteKeys())
}

func TestDelayForSite(t *testing.T) {
	config := NewDefaultConfig()
	config.Crawl.DefaultDelayPerHost = "400ms"

	assert.Equal(t, 400*time.Millisecond, config.DelayForSite(nil))
	assert.Equal(t, 400*time.Millisecond, config.DelayForSite(&SiteConfig{}))
	assert.Equal(t, time.Second, config.DelayForSite(&SiteConfig{DelayPerHost: "1s"}))
}

func TestIsPathAllowed(t *testing.T) {
	site := SiteConfig{DisallowedPathPatterns: []string{`/api/`, `\.pdf$`, `([bad`}}
	assert.False(t, site.IsPathAllowed("/api/v1/users"))
	assert.False(t, site.IsPathAllowed("/docs/manual.pdf"))
	assert.True(t, site.IsPathAllowed("/docs/guide"))

	empty := SiteConfig{}
	assert.True(t, empty.IsPathAllowed("/anything"))
}

func TestIsImageDomainAllowed(t *testing.T) {
	open := SiteConfig{}
	assert.True(t, open.IsImageDomainAllowed("anywhere.com"))

	site := SiteConfig{AllowedImageDomains: []string{"cdn.ex.com", "*.img.net"}}
	assert.True(t, site.IsImageDomainAllowed("cdn.ex.com"))
	assert.True(t, site.IsImageDomainAllowed("CDN.EX.COM"))
	assert.True(t, site.IsImageDomainAllowed("a.img.net"))
	assert.True(t, site.IsImageDomainAllowed("img.net"))
	assert.False(t, site.IsImageDomainAllowed("evil.com"))

	wildcard := SiteConfig{AllowedImageDomains: []string{"*"}}
	assert.True(t, wildcard.IsImageDomainAllowed("anything.at.all"))
}

func TestValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config := NewDefaultConfig()
		config.Sites["docs"] = SiteConfig{
			StartURLs:     []string{"https://ex.com/docs/"},
			AllowedDomain: "ex.com",
			DelayPerHost:  "500ms",
		}
		result := config.Validate()
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
	})

	t.Run("ip and digit-leading domains validate", func(t *testing.T) {
		// RFC 1123 hostnames may start with a digit; InScope matches these,
		// so validation must accept them too
		config := NewDefaultConfig()
		config.Sites["local"] = SiteConfig{
			StartURLs:     []string{"http://127.0.0.1:8080/docs/"},
			AllowedDomain: "127.0.0.1",
		}
		config.Sites["numeric"] = SiteConfig{
			StartURLs:     []string{"https://9docs.example/"},
			AllowedDomain: "9docs.example",
		}
		result := config.Validate()
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
	})

	t.Run("no sites", func(t *testing.T) {
		result := NewDefaultConfig().Validate()
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors, "no sites configured")
	})

	t.Run("missing required fields", func(t *testing.T) {
		config := NewDefaultConfig()
		config.Sites["bad"] = SiteConfig{}
		result := config.Validate()
		assert.False(t, result.Valid)
		assert.NotEmpty(t, result.Errors)
	})

	t.Run("bad seed and durations", func(t *testing.T) {
		config := NewDefaultConfig()
		config.Crawl.InitialRetryDelay = "abc"
		config.Sites["docs"] = SiteConfig{
			StartURLs:     []string{"not-a-url"},
			AllowedDomain: "ex.com",
		}
		result := config.Validate()
		assert.False(t, result.Valid)
		assert.GreaterOrEqual(t, len(result.Errors), 2)
	})

	t.Run("warnings only keep config valid", func(t *testing.T) {
		config := NewDefaultConfig()
		config.Sites["docs"] = SiteConfig{
			StartURLs:     []string{"https://other.com/"},
			AllowedDomain: "ex.com",
			DelayPerHost:  "50ms",
		}
		result := config.Validate()
		assert.True(t, result.Valid)
		assert.Len(t, result.Warnings, 2)
	})

	t.Run("invalid disallowed pattern", func(t *testing.T) {
		config := NewDefaultConfig()
		config.Sites["docs"] = SiteConfig{
			StartURLs:              []string{"https://ex.com/"},
			AllowedDomain:          "ex.com",
			DisallowedPathPatterns: []string{"([unclosed"},
		}
		result := config.Validate()
		assert.False(t, result.Valid)
	})
}
