package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrawl/internal/common"
)

func newRobotsServer(t *testing.T, robots string, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var robotsFetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsFetches.Add(1)
			w.WriteHeader(status)
			w.Write([]byte(robots))
			return
		}
		w.Write([]byte("page"))
	}))
	t.Cleanup(server.Close)
	return server, &robotsFetches
}

func newTestRobotsManager(t *testing.T) *RobotsManager {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Crawl.MaxRetries = 0
	fetcher := NewHTTPFetcher(cfg, arbor.NewLogger())
	return NewRobotsManager(fetcher, "scrawl", arbor.NewLogger())
}

func TestRobotsDisallowAndLongestMatch(t *testing.T) {
	server, _ := newRobotsServer(t, `User-agent: *
Disallow: /docs
Allow: /docs/public
Sitemap: https://ex.com/sitemap.xml
`, 200)
	rm := newTestRobotsManager(t)
	ctx := context.Background()

	assert.True(t, rm.IsAllowed(ctx, server.URL+"/"))
	assert.False(t, rm.IsAllowed(ctx, server.URL+"/docs/private/x"))
	// longest match wins: the Allow rule overrides the shorter Disallow
	assert.True(t, rm.IsAllowed(ctx, server.URL+"/docs/public/x"))
	assert.Equal(t, []string{"https://ex.com/sitemap.xml"}, rm.Sitemaps())
}

func TestRobotsAgentSpecificGroup(t *testing.T) {
	server, _ := newRobotsServer(t, `User-agent: scrawl
Disallow: /private

User-agent: *
Disallow: /
`, 200)
	rm := newTestRobotsManager(t)
	ctx := context.Background()

	// our agent matches its own group, not the catch-all
	assert.True(t, rm.IsAllowed(ctx, server.URL+"/docs"))
	assert.False(t, rm.IsAllowed(ctx, server.URL+"/private/x"))
}

func TestRobotsMissingAllowsAll(t *testing.T) {
	server, _ := newRobotsServer(t, "not found", 404)
	rm := newTestRobotsManager(t)

	assert.True(t, rm.IsAllowed(context.Background(), server.URL+"/anything"))
	assert.Empty(t, rm.Sitemaps())
}

func TestRobotsFetchedOncePerOrigin(t *testing.T) {
	server, fetches := newRobotsServer(t, "User-agent: *\nDisallow:\n", 200)
	rm := newTestRobotsManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rm.IsAllowed(ctx, server.URL+"/page")
	}
	assert.Equal(t, int32(1), fetches.Load())
}

func TestRobotsInvalidURL(t *testing.T) {
	rm := newTestRobotsManager(t)
	assert.False(t, rm.IsAllowed(context.Background(), "::bad::"))
}
