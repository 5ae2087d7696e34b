package content

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"scrapengine/internal/logger"
	"scrapengine/internal/utils/markdown"
)

// ProcessOptions toggles the independent extraction passes.
type ProcessOptions struct {
	ExtractText     bool
	ExtractLinks    bool
	ConvertMarkdown bool
	MaxContentSize  int
}

// ProcessedContent is the bounded result of one HTML document.
type ProcessedContent struct {
	Text          string
	Markdown      string
	Links         []string
	Truncated     bool
	ProcessedSize int
}

// Processor processes large HTML documents under an advisory memory budget.
// The budget feeds chunk sizing; processing never knowingly buffers more
// than the ceiling for a single document.
type Processor struct {
	maxMemoryMB int
	log         *logger.Logger
}

func NewProcessor(maxMemoryMB int) *Processor {
	if maxMemoryMB <= 0 {
		maxMemoryMB = 256
	}
	return &Processor{maxMemoryMB: maxMemoryMB, log: logger.New("ContentProcessor")}
}

// ChunkSize derives a chunk size from the memory budget: 1/64th of the
// ceiling, clamped to [16KiB, 1MiB].
func (p *Processor) ChunkSize() int {
	size := p.maxMemoryMB * 1024 * 1024 / 64
	if size < 16*1024 {
		size = 16 * 1024
	}
	if size > 1024*1024 {
		size = 1024 * 1024
	}
	return size
}

// Stream wraps NewChunkStream with the processor's derived chunk size.
func (p *Processor) Stream(content []byte, maxSize int) *ChunkStream {
	budget := p.maxMemoryMB * 1024 * 1024
	if maxSize <= 0 || maxSize > budget {
		maxSize = budget
	}
	return NewChunkStream(content, p.ChunkSize(), maxSize)
}

// ProcessLargeHTML bounds total work to opts.MaxContentSize. Inputs past the
// bound are cut at the leading bound and flagged Truncated. Text and link
// extraction are independent toggles.
func (p *Processor) ProcessLargeHTML(html string, baseURL string, opts ProcessOptions) (*ProcessedContent, error) {
	maxSize := opts.MaxContentSize
	if maxSize <= 0 {
		maxSize = p.maxMemoryMB * 1024 * 1024
	}

	out := &ProcessedContent{}
	if len(html) > maxSize {
		html = html[:maxSize]
		out.Truncated = true
		p.log.LogWarnf("content truncated to %d bytes for %s", maxSize, baseURL)
	}
	out.ProcessedSize = len(html)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	if opts.ExtractText {
		out.Text = extractVisibleText(doc)
	}
	if opts.ExtractLinks {
		out.Links = extractLinks(doc, baseURL)
	}
	if opts.ConvertMarkdown {
		out.Markdown = markdown.Convert(html)
	}
	return out, nil
}

func extractVisibleText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		return strings.TrimSpace(doc.Text())
	}
	clone := body.Clone()
	clone.Find("script, style, noscript, template").Remove()
	text := clone.Text()

	// collapse whitespace runs without a regex pass over a large document
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

func extractLinks(doc *goquery.Document, baseURL string) []string {
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := Absolutize(href, baseURL)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})
	return links
}

// Absolutize resolves href against baseURL, dropping fragments, javascript:
// and mailto: targets. Returns "" for anything that is not http(s).
func Absolutize(href, baseURL string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		if strings.HasPrefix(baseURL, "https://") {
			return "https:" + href
		}
		return "http:" + href
	}
	i := strings.Index(baseURL, "://")
	if i == -1 {
		return ""
	}
	host := baseURL[i+3:]
	origin := baseURL
	if j := strings.Index(host, "/"); j != -1 {
		origin = baseURL[:i+3] + host[:j]
	}
	if strings.HasPrefix(href, "/") {
		return origin + href
	}
	if strings.HasSuffix(baseURL, "/") {
		return baseURL + href
	}
	return baseURL + "/" + href
}
