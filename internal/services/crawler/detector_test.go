package crawler

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestDetectByProbe(t *testing.T) {
	tests := []struct {
		name string
		html string
		want Framework
	}{
		{"docusaurus class", `<html><body><div class="docusaurus"><article>x</article></div></body></html>`, FrameworkDocusaurus},
		{"sphinx document div", `<html><body><div class="document"><div class="body">x</div></div></body></html>`, FrameworkSphinx},
		{"mkdocs content div", `<html><body><div class="md-content">x</div></body></html>`, FrameworkMkDocs},
		{"gitbook wrapper", `<html><body><div class="book"><div class="book-body">x</div></div></body></html>`, FrameworkGitBook},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detection := detectOnce(parseDoc(t, tt.html), tt.html)
			assert.Equal(t, tt.want, detection.Framework)
			assert.False(t, detection.Fallback)
			assert.NotEmpty(t, detection.Selector)
		})
	}
}

func TestDetectByToken(t *testing.T) {
	html := `<html><head><meta name="generator" content="Docusaurus v2"></head><body><main>x</main></body></html>`
	detection := detectOnce(parseDoc(t, html), html)
	assert.Equal(t, FrameworkDocusaurus, detection.Framework)

	html = `<html><body>Built with MkDocs.<main>x</main></body></html>`
	detection = detectOnce(parseDoc(t, html), html)
	assert.Equal(t, FrameworkMkDocs, detection.Framework)
}

func TestDetectFallback(t *testing.T) {
	html := `<html><body><main>plain page</main></body></html>`
	detection := detectOnce(parseDoc(t, html), html)
	assert.Equal(t, FrameworkUnknown, detection.Framework)
	assert.True(t, detection.Fallback)
	assert.Equal(t, fallbackSelector, detection.Selector)
}

func TestDetectorHostCache(t *testing.T) {
	d := NewFrameworkDetector()

	docusaurus := `<html><body><div class="docusaurus"><article>x</article></div></body></html>`
	plain := `<html><body><main>x</main></body></html>`

	first := d.Detect("ex.com", parseDoc(t, docusaurus), docusaurus)
	assert.Equal(t, FrameworkDocusaurus, first.Framework)

	// same host reuses the first detection even when the page differs
	second := d.Detect("ex.com", parseDoc(t, plain), plain)
	assert.Equal(t, FrameworkDocusaurus, second.Framework)

	// a different host gets its own detection
	other := d.Detect("other.com", parseDoc(t, plain), plain)
	assert.Equal(t, FrameworkUnknown, other.Framework)
}
