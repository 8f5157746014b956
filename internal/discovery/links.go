// internal/discovery/links.go
package discovery

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// extractLinks returns the href target of every anchor in document order,
// resolved against base. Unparseable and non-http(s) targets are dropped.
func extractLinks(content string, base *url.URL) ([]string, error) {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page content: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		link := resolved.String()
		// ResolveReference drops an empty fragment; keep the marker so the filter can reject it.
		if strings.HasSuffix(href, "#") && !strings.HasSuffix(link, "#") {
			link += "#"
		}
		links = append(links, link)
	})
	return links, nil
}
