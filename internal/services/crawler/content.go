package crawler

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrawl/internal/common"
	"github.com/ternarybob/scrawl/internal/interfaces"
	"github.com/ternarybob/scrawl/internal/models"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// ContentProcessor turns a fetched HTML page into markdown on disk plus
// harvested links and image records.
type ContentProcessor struct {
	detector  *FrameworkDetector
	site      *common.SiteConfig
	outputDir string
	store     interfaces.VisitedStore
	logger    arbor.ILogger
}

// NewContentProcessor builds the pipeline for one site. outputDir is the
// site's output root (<base_dir>/<allowed_domain> lives beneath it).
func NewContentProcessor(site *common.SiteConfig, outputDir string, store interfaces.VisitedStore, logger arbor.ILogger) *ContentProcessor {
	return &ContentProcessor{
		detector:  NewFrameworkDetector(),
		site:      site,
		outputDir: outputDir,
		store:     store,
		logger:    logger,
	}
}

// Process runs the pipeline: selector choice, content location, markdown
// conversion, link and image harvest, and the file write. priorHash, when
// non-empty, short-circuits the write for unchanged content.
func (p *ContentProcessor) Process(doc *goquery.Document, rawHTML, finalURL string, priorHash string) *models.ExtractionResult {
	result := &models.ExtractionResult{}

	selector := p.site.ContentSelector
	if selector == "" || selector == "auto" {
		detection := p.detector.Detect(common.ExtractDomain(finalURL), doc, rawHTML)
		selector = detection.Selector
		p.logger.Trace().
			Str("url", finalURL).
			Str("framework", string(detection.Framework)).
			Str("selector", selector).
			Msg("Framework detection")
	}

	content := selectContent(doc, selector)
	if content == nil {
		content = readabilityFallback(doc)
	}
	if content == nil || content.Length() == 0 || strings.TrimSpace(content.Text()) == "" {
		result.Error = "content not found"
		return result
	}

	markdown, err := p.convertToMarkdown(content, finalURL)
	if err != nil || strings.TrimSpace(markdown) == "" {
		if err != nil {
			result.Error = fmt.Sprintf("markdown conversion failed: %v", err)
		} else {
			result.Error = "content empty after conversion"
		}
		return result
	}

	result.Title = extractTitle(doc)
	result.Markdown = markdown
	result.ContentHash = common.ContentHash(markdown)
	result.TokenCount = models.EstimateTokens(markdown)
	result.ExtractedLinks = harvestLinks(doc, p.site.RespectNoFollow)
	result.Images = p.collectImages(content, finalURL)
	result.LocalFilePath = common.URLToFilePath(finalURL, p.site.AllowedDomain, p.outputDir)
	if result.LocalFilePath == "" {
		result.Error = "could not derive output path"
		return result
	}

	if priorHash != "" && priorHash == result.ContentHash {
		p.logger.Debug().Str("url", finalURL).Msg("Content unchanged, skipping write")
		result.Success = true
		return result
	}

	if err := writePage(result.LocalFilePath, markdown); err != nil {
		result.Error = fmt.Sprintf("write failed: %v", err)
		return result
	}

	result.Success = true
	return result
}

// convertToMarkdown renders the selected region through the converter
// and collapses runs of blank lines.
func (p *ContentProcessor) convertToMarkdown(content *goquery.Selection, finalURL string) (string, error) {
	html, err := goquery.OuterHtml(content)
	if err != nil {
		return "", err
	}

	converter := md.NewConverter(finalURL, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}

	markdown = blankRuns.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown), nil
}

// selectContent tries each comma-separated selector alternative in
// order and returns the first non-empty match. A combined Find would
// return matches in document order, which defeats the priority the list
// expresses.
func selectContent(doc *goquery.Document, selector string) *goquery.Selection {
	for _, alt := range strings.Split(selector, ",") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		candidate := doc.Find(alt).First()
		if candidate.Length() > 0 && strings.TrimSpace(candidate.Text()) != "" {
			return candidate
		}
	}
	return nil
}

// readabilityFallback is the last-resort extractor: article, then main,
// then body.
func readabilityFallback(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"article", "main", "body"} {
		candidate := doc.Find(sel).First()
		if candidate.Length() > 0 && strings.TrimSpace(candidate.Text()) != "" {
			return candidate
		}
	}
	return nil
}

// extractTitle pulls the page title from the title tag, Open Graph
// metadata, or the first h1.
func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists && strings.TrimSpace(ogTitle) != "" {
		return strings.TrimSpace(ogTitle)
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return ""
}

// harvestLinks collects every anchor href in the document as a raw
// string. Anchors carrying rel=nofollow are skipped when the site honors
// nofollow.
func harvestLinks(doc *goquery.Document, respectNoFollow bool) []string {
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists || href == "" {
			return
		}
		if respectNoFollow {
			if rel, ok := sel.Attr("rel"); ok && containsToken(rel, "nofollow") {
				return
			}
		}
		links = append(links, href)
	})
	return links
}

// containsToken checks a whitespace-separated attribute for a token.
func containsToken(attr, token string) bool {
	for _, t := range strings.Fields(attr) {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}
