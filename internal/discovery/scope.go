// internal/discovery/scope.go
package discovery

import (
	"fmt"
	"net/url"
	"strings"
)

// HostScope keeps a crawl on the exact host of its seed. Subdomains are out of scope.
type HostScope struct {
	host   string
	origin string
}

// NewHostScope derives the scope and crawl origin from the seed URL.
func NewHostScope(seed string) (*HostScope, error) {
	u, err := url.Parse(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("seed URL must have a hostname: %s", seed)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported seed scheme: %s", u.Scheme)
	}
	return &HostScope{
		host:   strings.ToLower(u.Hostname()),
		origin: u.Scheme + "://" + u.Host,
	}, nil
}

// IsInScope reports whether u is served by the seed's host.
func (s *HostScope) IsInScope(u *url.URL) bool {
	return strings.EqualFold(u.Hostname(), s.host)
}

// Origin is scheme://host[:port] of the seed, where traversal starts.
func (s *HostScope) Origin() string {
	return s.origin
}

// StructuralDepth counts the slashes of the whole URL text minus the two scheme slashes.
// https://example.com is 0, https://example.com/a is 1 and https://example.com/a/ is 2.
func StructuralDepth(rawURL string) int {
	return strings.Count(rawURL, "/") - 2
}
