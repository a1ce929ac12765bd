package searchprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/clarus-labs/repricer/internal/model"
	"github.com/clarus-labs/repricer/internal/rank"
)

// HTTPProvider is a concrete Provider backed by a generic shopping-search
// JSON endpoint (e.g. a SerpAPI-style Google Shopping wrapper): one GET
// request per query, API key passed as a query parameter.
//
// Transport setup (bounded idle connections, explicit timeouts) is
// grounded on stadam23-Eve-flipper/internal/esi/client.go's NewClient.
type HTTPProvider struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPProvider builds an HTTPProvider against baseURL (e.g.
// "https://serpapi.com/search") using apiKey for authentication.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPProvider{
		http:    &http.Client{Transport: transport},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type rawResponse struct {
	ShoppingResults []rawResult `json:"shopping_results"`
}

type rawResult struct {
	Title      string  `json:"title"`
	Price      string  `json:"price"`
	ExtractedPrice float64 `json:"extracted_price"`
	Source     string  `json:"source"`
	Link       string  `json:"link"`
	ProductID  string  `json:"product_id"`
}

// Search issues one HTTP GET for query and parses the returned shopping
// results into Offers. HTTP status is classified per
// IsRetryableStatus and surfaced as a *RetryableError so the Decorated
// wrapper's retry loop can act on it without re-deriving the
// classification.
func (h *HTTPProvider) Search(ctx context.Context, query string, priceBand *rank.Band) ([]model.Offer, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("api_key", h.apiKey)
	if priceBand != nil {
		q.Set("low_price", fmt.Sprintf("%.2f", priceBand.Lo))
		q.Set("high_price", fmt.Sprintf("%.2f", priceBand.Hi))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &RetryableError{Err: err, Retryable: false}
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, &RetryableError{Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &RetryableError{
			Err:       fmt.Errorf("searchprovider: http %d: %s", resp.StatusCode, string(body)),
			Retryable: IsRetryableStatus(resp.StatusCode),
		}
	}

	var raw rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &RetryableError{Err: fmt.Errorf("searchprovider: decode response: %w", err), Retryable: false}
	}

	offers := make([]model.Offer, 0, len(raw.ShoppingResults))
	for _, r := range raw.ShoppingResults {
		price := r.ExtractedPrice
		if price <= 0 {
			if parsed, ok := rank.ParsePrice(r.Price); ok {
				price = parsed
			} else {
				continue
			}
		}
		offers = append(offers, model.Offer{
			Title:     r.Title,
			Price:     price,
			Source:    r.Source,
			Link:      r.Link,
			ProductID: r.ProductID,
		})
	}
	return offers, nil
}
