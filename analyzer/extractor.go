package analyzer

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extract derives content signals from raw HTML. Missing elements yield
// nil/0/false; malformed markup never produces an error.
func Extract(html, pageURL string) Signals {
	signals, _ := ExtractDocument(html, pageURL)
	return signals
}

// ExtractDocument returns the signals together with the visible body text.
func ExtractDocument(html, pageURL string) (Signals, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Signals{}, ""
	}

	images := doc.Find("img")
	imagesWithAlt := images.FilterFunction(func(_ int, s *goquery.Selection) bool {
		alt, exists := s.Attr("alt")
		return exists && strings.TrimSpace(alt) != ""
	}).Length()

	text := visibleText(doc)
	outbound, hosts := outboundLinks(doc, pageURL)

	signals := Signals{
		Title:           optional(doc.Find("head > title").First().Text()),
		MetaDescription: attrOf(doc, `meta[name="description"]`, "content"),
		H1Count:         doc.Find("h1").Length(),
		ImagesTotal:     images.Length(),
		ImagesWithAlt:   imagesWithAlt,
		HasViewport:     attrOf(doc, `meta[name="viewport"]`, "content") != nil,
		HasCanonical:    attrOf(doc, `link[rel="canonical"]`, "href") != nil,
		OGTitle:         attrOf(doc, `meta[property="og:title"]`, "content"),
		OGImage:         attrOf(doc, `meta[property="og:image"]`, "content"),
		TwitterCard:     attrOf(doc, `meta[name="twitter:card"]`, "content"),
		WordCount:       len(strings.Fields(text)),
		OutboundLinks:   outbound,
		OutboundHosts:   hosts,
	}
	return signals, text
}

// visibleText is the body text without script-like elements.
// It works on a clone so the document is left untouched.
func visibleText(doc *goquery.Document) string {
	body := doc.Find("body").First().Clone()
	body.Find("script, style, noscript, template").Remove()
	return body.Text()
}

// outboundLinks counts anchors pointing at another hostname and collects the
// distinct hostnames. Hrefs without a hostname (mailto:, javascript:) are skipped.
func outboundLinks(doc *goquery.Document, pageURL string) (int, []string) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return 0, []string{}
	}
	pageHost := strings.ToLower(base.Hostname())

	count := 0
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		host := strings.ToLower(resolved.Hostname())
		if host == "" || host == pageHost {
			return
		}
		count++
		seen[host] = true
	})

	hosts := make([]string, 0, len(seen))
	for host := range seen {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return count, hosts
}

func attrOf(doc *goquery.Document, selector, attr string) *string {
	value, _ := doc.Find(selector).First().Attr(attr)
	return optional(value)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
