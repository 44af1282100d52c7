package searchutil

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mikeboe/research-loop/pkg/types"
)

// ExtractLinks returns the source links of the results in order, without duplicates.
// Besides each result's URL, anchors embedded in HTML snippets are picked up.
func ExtractLinks(results []types.SearchResult) []string {
	var links []string
	seen := make(map[string]bool)
	add := func(link string) {
		link = strings.TrimSpace(link)
		if !isHTTPLink(link) || seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	}

	for _, r := range results {
		add(r.URL)
		for _, href := range anchorsIn(r.Snippet) {
			add(href)
		}
	}
	return links
}

func anchorsIn(fragment string) []string {
	if !strings.Contains(fragment, "<a") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

func isHTTPLink(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// FormatLinks renders links as a numbered list, one per line.
func FormatLinks(links []string) string {
	var b strings.Builder
	for i, l := range links {
		fmt.Fprintf(&b, "%d. %s\n", i+1, l)
	}
	return strings.TrimRight(b.String(), "\n")
}
