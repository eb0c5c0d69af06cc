// Package extract turns raw HTML into structured page content.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/blackbox-ai/scrape-agent/internal/scraper"
)

// Paragraph fragments shorter than this are treated as markup noise.
const minParagraphRunes = 5

var headingTags = []string{"h1", "h2", "h3", "h4", "h5", "h6"}

// Page parses body and extracts title, description and content sections.
// URLs in images and links are resolved against pageURL.
func Page(pageURL string, body []byte) (scraper.PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return scraper.PageContent{}, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return scraper.PageContent{}, fmt.Errorf("parse page url: %w", err)
	}

	content := scraper.PageContent{
		URL:         pageURL,
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Description: metaDescription(doc),
	}

	doc.Find("section, article, main, div, body").Each(func(_ int, sel *goquery.Selection) {
		section := extractSection(sel, base)
		if !sectionEmpty(section) {
			content.Sections = append(content.Sections, section)
		}
	})

	if len(content.Sections) == 0 {
		if text := collapseWhitespace(doc.Text()); text != "" {
			content.Sections = []scraper.Section{{Paragraphs: []string{text}}}
		}
	}
	return content, nil
}

// Links returns all absolute http(s) anchor targets found in body, with
// fragments stripped and duplicates removed, in document order.
func Links(pageURL string, body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs := resolveURL(base, href)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links, nil
}

func extractSection(sel *goquery.Selection, base *url.URL) scraper.Section {
	var section scraper.Section

	for _, tag := range headingTags {
		heading := strings.TrimSpace(sel.Find(tag).First().Text())
		if heading != "" {
			section.Heading = heading
			break
		}
	}

	sel.ChildrenFiltered("p, li, span, div").Each(func(_ int, p *goquery.Selection) {
		text := collapseWhitespace(p.Text())
		if len([]rune(text)) > minParagraphRunes {
			section.Paragraphs = append(section.Paragraphs, text)
		}
	})

	sel.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if abs := resolveURL(base, src); abs != "" {
			section.Images = append(section.Images, abs)
		}
	})

	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if abs := resolveURL(base, href); abs != "" {
			section.Links = append(section.Links, abs)
		}
	})

	return section
}

func metaDescription(doc *goquery.Document) string {
	desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	return strings.TrimSpace(desc)
}

func sectionEmpty(s scraper.Section) bool {
	return s.Heading == "" && len(s.Paragraphs) == 0 && len(s.Images) == 0 && len(s.Links) == 0
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(parsed)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
