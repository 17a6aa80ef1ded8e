package scraper

import (
	"net/url"
	"strings"
)

// DefaultBlockedDomains lists platforms that are never scraped.
var DefaultBlockedDomains = []string{
	"amazon.com",
	"linkedin.com",
	"twitter.com",
	"x.com",
	"facebook.com",
	"instagram.com",
	"tiktok.com",
	"netflix.com",
}

// Blocklist matches hosts against blocked domains. Every entry also
// blocks its subdomains; a leading "*." or "." is accepted and ignored.
type Blocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewBlocklist builds a Blocklist. It returns nil when no usable entries
// are given; a nil Blocklist blocks nothing.
func NewBlocklist(domains []string) *Blocklist {
	b := &Blocklist{exact: make(map[string]struct{})}
	for _, raw := range domains {
		value := strings.TrimSpace(strings.ToLower(raw))
		value = strings.TrimPrefix(value, "*.")
		value = strings.TrimPrefix(value, ".")
		value = strings.TrimPrefix(value, "www.")
		if value == "" {
			continue
		}
		if _, seen := b.exact[value]; seen {
			continue
		}
		b.exact[value] = struct{}{}
		b.suffixes = append(b.suffixes, "."+value)
	}
	if len(b.exact) == 0 {
		return nil
	}
	return b
}

// Match reports whether rawURL's host is blocked, returning the normalized
// domain either way.
func (b *Blocklist) Match(rawURL string) (string, bool) {
	domain := ExtractDomain(rawURL)
	if b == nil || domain == "" {
		return domain, false
	}
	if _, ok := b.exact[domain]; ok {
		return domain, true
	}
	for _, suffix := range b.suffixes {
		if strings.HasSuffix(domain, suffix) {
			return domain, true
		}
	}
	return domain, false
}

// ExtractDomain returns the lowercase hostname of rawURL without a leading
// "www.". Unparseable input is returned unchanged.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
