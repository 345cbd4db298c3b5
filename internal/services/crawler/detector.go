package crawler

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Framework identifies a known documentation generator.
type Framework string

const (
	FrameworkDocusaurus  Framework = "docusaurus"
	FrameworkSphinx      Framework = "sphinx"
	FrameworkMkDocs      Framework = "mkdocs"
	FrameworkGitBook     Framework = "gitbook"
	FrameworkReadTheDocs Framework = "readthedocs"
	FrameworkUnknown     Framework = "unknown"
)

// Detection is the outcome of framework detection: the main-content
// selector to try, and whether it is the generic fallback.
type Detection struct {
	Framework Framework
	Selector  string
	Fallback  bool
}

// fallbackSelector is used when no framework signature matches.
const fallbackSelector = "article, main, body"

// signature pairs a CSS probe with a telltale token; either hit matches.
type signature struct {
	framework Framework
	selector  string
	probe     string
	token     string
}

var signatures = []signature{
	{FrameworkDocusaurus, "article, main.mainContainer, div.docMainContainer", ".docusaurus", "docusaurus"},
	{FrameworkSphinx, "div.body, div[role='main'], div.document, article", ".document", "sphinx"},
	{FrameworkMkDocs, "div.md-content, main, article", ".md-content", "mkdocs"},
	{FrameworkGitBook, "div.book, div.book-body, article", ".book", "gitbook"},
	{FrameworkReadTheDocs, "div.rst-content, div[role='main'], article", ".rst-content", "read the docs"},
}

// FrameworkDetector guesses the documentation generator behind a page.
// The first detection for a host is cached and reused: stable selectors
// beat per-page accuracy at framework boundaries.
type FrameworkDetector struct {
	mu    sync.Mutex
	cache map[string]Detection
}

// NewFrameworkDetector creates a detector with an empty host cache.
func NewFrameworkDetector() *FrameworkDetector {
	return &FrameworkDetector{cache: make(map[string]Detection)}
}

// Detect returns the detection for a page, consulting the host cache
// first.
func (d *FrameworkDetector) Detect(host string, doc *goquery.Document, rawHTML string) Detection {
	d.mu.Lock()
	if cached, ok := d.cache[host]; ok {
		d.mu.Unlock()
		return cached
	}
	d.mu.Unlock()

	detection := detectOnce(doc, rawHTML)

	d.mu.Lock()
	d.cache[host] = detection
	d.mu.Unlock()
	return detection
}

func detectOnce(doc *goquery.Document, rawHTML string) Detection {
	lowerHTML := strings.ToLower(rawHTML)
	for _, sig := range signatures {
		if doc.Find(sig.probe).Length() > 0 || strings.Contains(lowerHTML, sig.token) {
			return Detection{Framework: sig.framework, Selector: sig.selector}
		}
	}
	return Detection{Framework: FrameworkUnknown, Selector: fallbackSelector, Fallback: true}
}
