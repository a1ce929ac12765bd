package urlresolver

import (
	"context"
	"testing"
)

func TestResolveIdempotentOnDirectURL(t *testing.T) {
	r := New(nil, 0)
	u := "https://walmart.com/ip/123456"
	if got := r.Resolve(context.Background(), u, 0); got != u {
		t.Errorf("Resolve() = %q, want unchanged %q", got, u)
	}
}

func TestResolveNoOpOnEmptyURL(t *testing.T) {
	r := New(nil, 0)
	if got := r.Resolve(context.Background(), "", 0); got != "" {
		t.Errorf("Resolve() = %q, want empty", got)
	}
}

func TestResolveFallsBackToOriginalOnFetchFailure(t *testing.T) {
	r := New(nil, 0)
	u := "https://this-domain-should-not-resolve.invalid/s/drill"
	if got := r.Resolve(context.Background(), u, 0); got != u {
		t.Errorf("Resolve() = %q, want unchanged %q after a failed fetch", got, u)
	}
}

func TestResolveAgainstAbsolute(t *testing.T) {
	got := resolveAgainst("https://example.com/listing", "https://other.com/ip/123")
	if got != "https://other.com/ip/123" {
		t.Errorf("resolveAgainst() = %q, want the absolute href unchanged", got)
	}
}

func TestResolveAgainstRootRelative(t *testing.T) {
	got := resolveAgainst("https://example.com/listing/page", "/ip/123")
	if got != "https://example.com/ip/123" {
		t.Errorf("resolveAgainst() = %q, want https://example.com/ip/123", got)
	}
}

func TestResolveAgainstRelative(t *testing.T) {
	// RFC 3986 relative resolution replaces only the base's last path
	// segment, so a relative href merges under the listing's directory.
	got := resolveAgainst("https://example.com/listing/page", "ip/123")
	if got != "https://example.com/listing/ip/123" {
		t.Errorf("resolveAgainst() = %q, want https://example.com/listing/ip/123", got)
	}
}

func TestScrapeDirectLinkFindsFirstDirectAnchor(t *testing.T) {
	html := []byte(`
<html><body>
<a href="/s/drill">search</a>
<a href="/ip/987654">Drill Master 3000</a>
<a href="/ip/111111">Another item</a>
</body></html>`)
	got, ok := scrapeDirectLink("https://walmart.com/s/drill", html)
	if !ok {
		t.Fatal("expected a direct link to be found")
	}
	if got != "https://walmart.com/ip/987654" {
		t.Errorf("scrapeDirectLink() = %q, want https://walmart.com/ip/987654", got)
	}
}

func TestScrapeDirectLinkNoMatch(t *testing.T) {
	html := []byte(`<html><body><a href="/s/drill">search</a></body></html>`)
	if _, ok := scrapeDirectLink("https://walmart.com/s/drill", html); ok {
		t.Error("expected no direct link to be found")
	}
}
