package common

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// URLComponents is the parsed form of an HTTP(S) URL.
type URLComponents struct {
	Scheme   string
	Host     string
	Port     string
	Path     string
	Query    string
	Fragment string
}

// ParseURL parses an absolute http/https URL. Other schemes fail.
func ParseURL(raw string) (*URLComponents, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("malformed url %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("malformed url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("malformed url %q: missing host", raw)
	}
	return &URLComponents{
		Scheme:   scheme,
		Host:     strings.ToLower(u.Hostname()),
		Port:     u.Port(),
		Path:     u.EscapedPath(),
		Query:    u.RawQuery,
		Fragment: u.Fragment,
	}, nil
}

// IsValidHTTPURL reports whether raw parses as an absolute http(s) URL.
func IsValidHTTPURL(raw string) bool {
	_, err := ParseURL(raw)
	return err == nil
}

// ExtractDomain returns the lowercase hostname (no port), or "" when the
// URL does not parse.
func ExtractDomain(raw string) string {
	c, err := ParseURL(raw)
	if err != nil {
		return ""
	}
	return c.Host
}

// ExtractPath returns the normalized path of the URL, "/" when absent.
func ExtractPath(raw string) string {
	c, err := ParseURL(raw)
	if err != nil {
		return ""
	}
	return normalizePath(c.Path)
}

// NormalizeURL canonicalizes a URL: lowercase scheme and host, default
// port elided, dot-segments and empty segments collapsed (trailing slash
// preserved), query parameters sorted by key, fragment dropped. The
// operation is idempotent.
func NormalizeURL(raw string) (string, error) {
	return normalize(raw, false)
}

// NormalizeURLKeepFragment is NormalizeURL retaining the fragment.
func NormalizeURLKeepFragment(raw string) (string, error) {
	return normalize(raw, true)
}

func normalize(raw string, keepFragment bool) (string, error) {
	c, err := ParseURL(raw)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(c.Scheme)
	b.WriteString("://")
	b.WriteString(c.Host)
	if !isDefaultPort(c.Scheme, c.Port) && c.Port != "" {
		b.WriteString(":")
		b.WriteString(c.Port)
	}
	b.WriteString(normalizePath(c.Path))
	if q := sortQueryParams(c.Query); q != "" {
		b.WriteString("?")
		b.WriteString(q)
	}
	if keepFragment && c.Fragment != "" {
		b.WriteString("#")
		b.WriteString(c.Fragment)
	}
	return b.String(), nil
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// normalizePath removes "." segments, resolves ".." against preceding
// segments, and drops empty segments. Root stays "/"; a trailing slash on
// a non-root path is preserved.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}

	segments := make([]string, 0, 8)
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, seg)
		}
	}

	result := "/" + strings.Join(segments, "/")
	if len(p) > 1 && strings.HasSuffix(p, "/") && !strings.HasSuffix(result, "/") {
		result += "/"
	}
	return result
}

// sortQueryParams rewrites a raw query with keys in lexicographic order.
// Duplicate keys collapse to the last value; parameters without a value
// are kept bare (no trailing "=").
func sortQueryParams(query string) string {
	if query == "" {
		return ""
	}

	params := make(map[string]string)
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		if eq := strings.Index(pair, "="); eq >= 0 {
			params[pair[:eq]] = pair[eq+1:]
		} else {
			params[pair] = ""
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("&")
		}
		b.WriteString(k)
		if v := params[k]; v != "" {
			b.WriteString("=")
			b.WriteString(v)
		}
	}
	return b.String()
}

// ResolveURL resolves a possibly-relative reference against a base URL
// and returns the normalized absolute result. Handles absolute targets,
// protocol-relative, root-relative, query-only, fragment-only, and dotted
// relative references.
func ResolveURL(baseURL, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return NormalizeURL(baseURL)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("malformed base url %q: %w", baseURL, err)
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("malformed reference %q: %w", ref, err)
	}

	return NormalizeURL(base.ResolveReference(rel).String())
}

// InScope reports whether a URL belongs to the crawl scope: http(s)
// scheme, exact or subdomain match of allowedDomain, and (when non-empty)
// allowedPathPrefix as a prefix of the normalized path.
func InScope(raw, allowedDomain, allowedPathPrefix string) bool {
	c, err := ParseURL(raw)
	if err != nil {
		return false
	}

	domain := strings.ToLower(allowedDomain)
	if c.Host != domain && !strings.HasSuffix(c.Host, "."+domain) {
		return false
	}

	if allowedPathPrefix != "" {
		if !strings.HasPrefix(normalizePath(c.Path), allowedPathPrefix) {
			return false
		}
	}
	return true
}

// URLToFilePath maps a URL to its on-disk markdown path under
// baseDir/baseDomain. Path characters outside [A-Za-z0-9-_./] become "_",
// .html/.htm extensions become .md, extensionless paths gain .md, and an
// empty path maps to index.md.
func URLToFilePath(raw, baseDomain, baseDir string) string {
	c, err := ParseURL(raw)
	if err != nil {
		return ""
	}

	p := strings.TrimPrefix(c.Path, "/")

	var b strings.Builder
	for _, r := range p {
		switch {
		case r == '/' || r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	safe := b.String()

	if safe == "" {
		safe = "index"
	}
	safe = strings.TrimSuffix(safe, "/")

	ext := strings.ToLower(path.Ext(safe))
	switch ext {
	case ".html", ".htm":
		safe = strings.TrimSuffix(safe, safe[len(safe)-len(ext):]) + ".md"
	case "":
		safe += ".md"
	}

	if baseDir != "" {
		return strings.TrimSuffix(baseDir, "/") + "/" + baseDomain + "/" + safe
	}
	return baseDomain + "/" + safe
}
