// Package trustpolicy classifies a retailer source or URL as Trusted,
// Untrusted, or Unknown, and detects blocked URL shapes (search-result
// pages, social media, error pages). It is a pure function over its
// injected config: no hard-coded domain list, no shared mutable state.
//
// Grounded on evalaf/redteam/harmful_content.go's pattern of compiling a
// list of substrings/regexes once in a constructor and scanning against
// them per call, applied here to retailer hostnames and URL shapes
// instead of harmful-content categories.
package trustpolicy

import (
	"net/url"
	"regexp"
	"strings"
)

// Classification is a tagged variant for a source's trust level.
type Classification string

const (
	Trusted   Classification = "trusted"
	Untrusted Classification = "untrusted"
	Unknown   Classification = "unknown"
)

// directProductPatterns are the URL path shapes the spec glossary names
// as "direct-product URL" patterns.
var directProductPatterns = []string{
	"/ip/", "/dp/", "/p/", "/pd/", "/site/", "/pdp/", "/product/",
	"/products/", "/item/", "/listing/",
}

// Policy holds the compiled trust configuration.
type Policy struct {
	trusted   map[string]bool
	untrusted []string
	blocked   []*regexp.Regexp
}

// New compiles a Policy from injected domain/pattern lists.
func New(trustedDomains, untrustedPatterns, blockedURLPatterns []string) *Policy {
	trusted := make(map[string]bool, len(trustedDomains))
	for _, d := range trustedDomains {
		trusted[strings.ToLower(d)] = true
	}

	blocked := make([]*regexp.Regexp, 0, len(blockedURLPatterns))
	for _, pat := range blockedURLPatterns {
		if re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(pat)); err == nil {
			blocked = append(blocked, re)
		}
	}

	untrusted := make([]string, len(untrustedPatterns))
	for i, p := range untrustedPatterns {
		untrusted[i] = strings.ToLower(p)
	}

	return &Policy{trusted: trusted, untrusted: untrusted, blocked: blocked}
}

// RegistrableDomain extracts the registrable domain (host, minus a
// leading "www.") from a source label or URL.
func RegistrableDomain(sourceOrURL string) string {
	host := sourceOrURL
	if u, err := url.Parse(sourceOrURL); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

// Classify returns the trust classification for a source label or URL.
func (p *Policy) Classify(sourceOrURL string) Classification {
	domain := RegistrableDomain(sourceOrURL)
	if domain == "" {
		return Unknown
	}
	if p.trusted[domain] {
		return Trusted
	}
	lower := strings.ToLower(sourceOrURL)
	for _, pat := range p.untrusted {
		if strings.Contains(lower, pat) {
			return Untrusted
		}
	}
	return Unknown
}

// IsBlockedURL reports whether url matches a blocked URL shape (search
// result page, social media, error/unavailable page).
func (p *Policy) IsBlockedURL(rawURL string) bool {
	for _, re := range p.blocked {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// IsDirectProductURL reports whether rawURL's path matches one of the
// glossary's direct-product URL patterns.
func IsDirectProductURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, pat := range directProductPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// IsCatalogURL reports whether rawURL looks like a catalog/search
// listing page rather than a single product page.
func IsCatalogURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, pat := range []string{"/s/", "/search", "/category", "?q=", "&q=", "/browse", "/catalog", "/products"} {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// Allowed reports whether an offer from source, pointing at rawURL, may
// ever qualify as a Found result: it must not be Untrusted, and its URL
// (if any) must not match a blocked shape.
func (p *Policy) Allowed(source, rawURL string) bool {
	if p.Classify(source) == Untrusted {
		return false
	}
	if rawURL != "" && p.IsBlockedURL(rawURL) {
		return false
	}
	return true
}

// FriendlyName returns a human-presentable retailer name for a
// registrable domain, used to keep a PricingResult's source label in
// agreement with its URL (testable property 2).
func FriendlyName(domain string) string {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".com")
	if domain == "" {
		return ""
	}
	switch domain {
	case "walmart":
		return "Walmart"
	case "target":
		return "Target"
	case "amazon":
		return "Amazon"
	case "lowes":
		return "Lowe's"
	case "homedepot":
		return "Home Depot"
	case "bestbuy":
		return "Best Buy"
	case "wayfair":
		return "Wayfair"
	case "costco":
		return "Costco"
	case "overstock":
		return "Overstock"
	case "kohls":
		return "Kohl's"
	case "containerstore":
		return "Container Store"
	case "michaels":
		return "Michaels"
	case "hobbylobby":
		return "Hobby Lobby"
	case "acehardware":
		return "Ace Hardware"
	default:
		parts := strings.Split(domain, ".")
		name := parts[0]
		if name == "" {
			return domain
		}
		return strings.ToUpper(name[:1]) + name[1:]
	}
}
