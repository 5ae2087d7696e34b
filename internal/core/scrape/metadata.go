package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"scrapengine/internal/core/content"
)

// extractMetadata pulls common head metadata from the fetched document.
// Relative canonical, favicon and og:image URLs are absolutized against
// the page URL.
func extractMetadata(html, pageURL string) Metadata {
	meta := Metadata{SourceURL: pageURL}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return meta
	}

	meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if lang, ok := doc.Find("html").First().Attr("lang"); ok {
		meta.Language = strings.TrimSpace(lang)
	}

	metaContent := func(selector string) string {
		if v, ok := doc.Find(selector).First().Attr("content"); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}
	meta.Description = metaContent(`meta[name="description"]`)
	meta.OgTitle = metaContent(`meta[property="og:title"]`)
	if img := metaContent(`meta[property="og:image"]`); img != "" {
		meta.OgImage = content.Absolutize(img, pageURL)
	}

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		meta.Canonical = content.Absolutize(strings.TrimSpace(href), pageURL)
	}
	if href, ok := doc.Find(`link[rel="icon"], link[rel="shortcut icon"]`).First().Attr("href"); ok {
		meta.Favicon = content.Absolutize(strings.TrimSpace(href), pageURL)
	}

	return meta
}
