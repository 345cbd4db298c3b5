package crawler

import (
	"fmt"
	"path/filepath"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/scrawl/internal/common"
	"github.com/ternarybob/scrawl/internal/models"
)

// collectImages harvests img references inside the content region and
// persists a Pending record for each. Downloads are deferred; the record
// is the dedup and audit trail. Images outside the site's allowed image
// domains are recorded as invalid_domain instead.
func (p *ContentProcessor) collectImages(content *goquery.Selection, pageURL string) []models.ImageData {
	if p.site.SkipImages {
		return nil
	}

	var images []models.ImageData
	content.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, exists := sel.Attr("src")
		if !exists || src == "" {
			return
		}

		abs, err := common.ResolveURL(pageURL, src)
		if err != nil {
			return
		}

		caption, _ := sel.Attr("alt")
		localPath := filepath.Join(p.outputDir, p.site.AllowedDomain, "images",
			fmt.Sprintf("img_%s.bin", common.URLHash(abs)))

		img := models.ImageData{OriginalURL: abs, LocalPath: localPath, Caption: caption}
		images = append(images, img)

		record := models.NewImageRecord(abs, localPath, caption)
		if !p.site.IsImageDomainAllowed(common.ExtractDomain(abs)) {
			record.Status = models.ImageStatusInvalidDomain
		}
		if err := p.store.UpdateImageStatus(abs, record); err != nil {
			p.logger.Warn().Str("image", abs).Err(err).Msg("Failed to persist image record")
		}
	})
	return images
}
