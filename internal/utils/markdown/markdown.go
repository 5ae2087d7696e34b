package markdown

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var (
	reBlankRuns = regexp.MustCompile(`\n{3,}`)
	reImageLine = regexp.MustCompile(`!\[[^\]]*\]\([^\)]+\)`)
	reLink      = regexp.MustCompile(`https?://[^\s)]+`)
)

// boilerplate class/id fragments stripped before conversion
var noiseKeywords = []string{
	"cookie", "consent", "banner", "navbar", "nav-", "menu-",
	"pagination", "share", "signup", "signin", "login",
	"advert", "promo", "modal", "popup", "breadcrumb", "sidebar",
}

// Convert turns HTML into cleaned markdown. It prefers the page's main
// content region, strips boilerplate, then runs html-to-markdown.
func Convert(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var sel *goquery.Selection
	for _, tag := range []string{"main", "[role=\"main\"]", "#content", "#main"} {
		if doc.Find(tag).Length() > 0 {
			sel = doc.Find(tag).First()
			break
		}
	}
	if sel == nil {
		sel = doc.Find("body")
	}

	sel.Find("script, style, noscript, nav, header, aside, form, iframe, svg, button, input").Remove()
	sel.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		classVal, _ := s.Attr("class")
		idVal, _ := s.Attr("id")
		lower := strings.ToLower(classVal + " " + idVal)
		for _, kw := range noiseKeywords {
			if strings.Contains(lower, kw) {
				s.Remove()
				break
			}
		}
	})

	body, err := sel.Html()
	if err != nil {
		return ""
	}

	conv := md.NewConverter("", true, nil)
	out, err := conv.ConvertString(body)
	if err != nil {
		return ""
	}

	out = dedupeLinkLines(out)
	out = dropNoiseLines(out)
	out = reBlankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// dedupeLinkLines drops repeated link-only lines that converters tend to
// emit for nav blocks rendered more than once.
func dedupeLinkLines(text string) string {
	seen := make(map[string]bool)
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && reLink.MatchString(trimmed) {
			norm := reLink.ReplaceAllString(trimmed, "LINK")
			if seen[norm] {
				continue
			}
			seen[norm] = true
		}
		b.WriteString(trimmed)
		b.WriteByte('\n')
	}
	return b.String()
}

func dropNoiseLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		line := strings.TrimSpace(l)
		if line == "" {
			continue
		}
		// pure image lines carry no content
		if reImageLine.MatchString(line) && strings.TrimSpace(reImageLine.ReplaceAllString(line, "")) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
