// Package urlresolver turns catalog/search URLs into direct-product URLs
// (spec section 4.6). It follows a bounded number of HTTP redirects and,
// when a redirect alone doesn't land on a direct-product page, scrapes
// the fetched listing page for a direct-product link.
//
// The bounded-hop fetch and URL-shape checks are grounded on
// libaf/scraping/scraping.go's DownloadContent; the listing-page scrape
// uses github.com/PuerkitoBio/goquery, grounded on the teacher's own use
// of goquery in its document-ingestion pipeline (docsaf).
package urlresolver

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/clarus-labs/repricer/internal/trustpolicy"
)

const (
	maxRedirects  = 5
	defaultBudget = 8 * time.Second
)

// Resolver resolves catalog/search URLs to direct-product URLs.
type Resolver struct {
	client *http.Client
	budget time.Duration
	policy *trustpolicy.Policy
}

// New builds a Resolver. budget bounds the total time spent following
// redirects and scraping a listing page; a non-positive value falls
// back to the spec's 8s default.
func New(policy *trustpolicy.Policy, budget time.Duration) *Resolver {
	if budget <= 0 {
		budget = defaultBudget
	}
	client := &http.Client{
		Timeout: budget,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return &Resolver{client: client, budget: budget, policy: policy}
}

// Resolve attempts to turn rawURL into a direct-product URL. It is
// idempotent: an already-direct URL is returned unchanged. priceHint, if
// positive, is reserved for a future secondary-lookup rule matching the
// resolved offer's price; it is accepted here to keep the contract
// stable even though the current resolution logic doesn't need it.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, priceHint float64) string {
	if rawURL == "" {
		return rawURL
	}
	if trustpolicy.IsDirectProductURL(rawURL) {
		return rawURL
	}
	if !trustpolicy.IsCatalogURL(rawURL) {
		return rawURL
	}

	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	final, body, err := r.fetch(ctx, rawURL)
	if err != nil {
		return rawURL
	}
	if trustpolicy.IsDirectProductURL(final) {
		return final
	}

	if link, ok := scrapeDirectLink(final, body); ok {
		return link
	}

	return rawURL
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	body := make([]byte, 0, 64*1024)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if readErr != nil {
			break
		}
		if len(body) > 2*1024*1024 {
			break
		}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return finalURL, body, nil
}

// scrapeDirectLink parses an HTML listing page and returns the first
// anchor href that looks like a direct-product URL.
func scrapeDirectLink(baseURL string, body []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	found := ""
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		if trustpolicy.IsDirectProductURL(href) {
			found = resolveAgainst(baseURL, href)
			return false
		}
		return true
	})

	return found, found != ""
}

// resolveAgainst joins href against base the way a browser would: an
// absolute href is returned as-is, a root-relative or relative href is
// resolved against base's scheme/host/path. An unparseable base or href
// falls back to returning href unchanged.
func resolveAgainst(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	hrefURL, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(hrefURL).String()
}
