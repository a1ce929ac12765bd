// Package pipeline implements the PricingPipeline (spec section 4.8),
// the core per-row state machine: Enhance, QuickMatch, EnrichedSearch,
// Resolve, Classify, ToleranceFallback, MarketSearch,
// PurchasePriceFallback, Emit.
//
// The explicit-transition-function shape, with a single mutable
// per-item work record threaded through and never shared across rows,
// is grounded on antfly-go's query-planning orchestration style (build
// a plan struct, mutate it through named stages, never leak it across
// goroutines) together with evalaf/eval/runner.go's per-item isolation
// discipline. Every transition that can fail degrades to the next
// fallback tier instead of returning an error, per spec section 7's
// "never raise per-item exceptions" propagation policy.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/clarus-labs/repricer/internal/categorizer"
	"github.com/clarus-labs/repricer/internal/config"
	"github.com/clarus-labs/repricer/internal/model"
	"github.com/clarus-labs/repricer/internal/query"
	"github.com/clarus-labs/repricer/internal/rank"
	"github.com/clarus-labs/repricer/internal/schedule"
	"github.com/clarus-labs/repricer/internal/searchprovider"
	"github.com/clarus-labs/repricer/internal/trustpolicy"
)

// Enhancer is the subset of *enhance.Enhancer the pipeline depends on,
// narrowed to an interface so tests can substitute a fake, per spec
// section 9's "no global mutable singletons... dependency injection of
// providers and policies" note.
type Enhancer interface {
	Enhance(ctx context.Context, description, brand, model string) string
}

// Estimator is the subset of *estimate.Estimator the pipeline depends
// on.
type Estimator interface {
	Estimate(ctx context.Context, description, brand string) model.LLMEstimate
}

// Resolver is the subset of *urlresolver.Resolver the pipeline depends
// on.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string, priceHint float64) string
}

// Categorizer is the subset of *categorizer.Categorizer the pipeline
// depends on.
type Categorizer interface {
	Categorize(ctx context.Context, description, brand, modelName string, total float64) model.Categorization
	CategorizeBatch(ctx context.Context, items []categorizer.BatchItem) []model.Categorization
}

// Pipeline wires every collaborator the state machine needs. All fields
// are injected so tests can substitute fakes deterministically, per
// spec section 9's "no global mutable singletons" note.
type Pipeline struct {
	cfg         *config.Config
	enhancer    Enhancer
	estimator   Estimator
	provider    searchprovider.Provider
	resolver    Resolver
	policy      *trustpolicy.Policy
	categorizer Categorizer
	weights     rank.Weights
}

// New builds a Pipeline from its collaborators and the envelope config.
func New(
	cfg *config.Config,
	enhancer Enhancer,
	estimator Estimator,
	provider searchprovider.Provider,
	resolver Resolver,
	policy *trustpolicy.Policy,
	cat Categorizer,
) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		enhancer:    enhancer,
		estimator:   estimator,
		provider:    provider,
		resolver:    resolver,
		policy:      policy,
		categorizer: cat,
		weights:     rank.DefaultWeights,
	}
}

// item is the mutable per-row work record threaded through the state
// machine. It is owned exclusively by the worker processing this row,
// never shared.
type item struct {
	row           model.Row
	facts         model.Facts
	enhancedDesc  string
	purchasePrice float64
	llmEstimate   *model.LLMEstimate
	queries       []model.Query
	candidates    []model.Offer
	best          model.Offer
	haveBest      bool
	url           string
	source        string
	directURL     bool
	status        model.Status
	matchQuality  string
	tier          model.PricingTier
	trace         model.Trace
}

// Process runs row through the full state machine and returns its
// PricingResult, categorizing it with a single-item Categorize call. It
// never returns an error: every unrecoverable condition degrades to
// PurchasePriceFallback, per spec section 7.
func (p *Pipeline) Process(ctx context.Context, row model.Row) model.PricingResult {
	it := p.run(ctx, row)
	pr := p.toPending(it)
	cat := p.categorizer.Categorize(ctx, it.row.Description, it.row.Brand, it.row.Model, pr.total)
	return p.finalize(pr, cat)
}

// ProcessBatch runs the state machine for every row, deferring
// depreciation categorization until every row has reached its terminal
// state, then resolves all categories with one Categorizer.CategorizeBatch
// call (spec section 4.9 batch mode) instead of one LLM call per row.
// Rows are scheduled per spec section 4.10's bounded worker pool; onProgress
// may be nil.
func (p *Pipeline) ProcessBatch(ctx context.Context, rows []model.Row, onProgress func(schedule.Progress)) []model.PricingResult {
	pending := make([]pendingResult, len(rows))
	schedule.Run(ctx, len(rows), func(ctx context.Context, idx int) bool {
		it := p.run(ctx, rows[idx])
		pending[idx] = p.toPending(it)
		return pending[idx].status == model.StatusEstimated && pending[idx].tier == model.TierFallback
	}, onProgress)

	items := make([]categorizer.BatchItem, len(pending))
	for i, pr := range pending {
		items[i] = categorizer.BatchItem{
			Description: pr.row.Description,
			Brand:       pr.row.Brand,
			Model:       pr.row.Model,
			Total:       pr.total,
		}
	}
	cats := p.categorizer.CategorizeBatch(ctx, items)

	results := make([]model.PricingResult, len(rows))
	for i, pr := range pending {
		var cat model.Categorization
		if i < len(cats) {
			cat = cats[i]
		}
		results[i] = p.finalize(pr, cat)
	}
	return results
}

// run executes every state-machine transition through Emit's
// prerequisites, stopping at the first transition that resolves the
// row, and returns the resulting work record.
func (p *Pipeline) run(ctx context.Context, row model.Row) *item {
	row.Normalize()
	it := &item{row: row, tier: model.TierFallback}

	p.enhance(ctx, it)

	if p.quickMatch(ctx, it) {
		return it
	}

	p.enrichedSearch(ctx, it)
	p.resolve(ctx, it)

	if p.classify(it) {
		return it
	}

	if p.toleranceFallback(ctx, it) {
		return it
	}

	if p.marketSearch(ctx, it) {
		return it
	}

	p.purchasePriceFallback(it)
	return it
}

// enhance is transition 1: estimate a missing purchase price, then
// enhance the description, prepending brand/model when present.
func (p *Pipeline) enhance(ctx context.Context, it *item) {
	if it.row.HasPurchasePrice() {
		it.purchasePrice = *it.row.PurchasePrice
	} else {
		est := p.estimator.Estimate(ctx, it.row.Description, it.row.Brand)
		it.llmEstimate = &est
		it.purchasePrice = est.Price
	}

	enhanced := p.enhancer.Enhance(ctx, it.row.Description, it.row.Brand, it.row.Model)
	enhanced = prependBrandModel(enhanced, it.row.Brand, it.row.Model)

	it.enhancedDesc = enhanced
	it.facts = deriveFacts(it.row, enhanced)
}

// prependBrandModel prepends whichever of brand and model are non-empty
// to text, unless that prefix already leads it, avoiding the
// "Bissell Bissell vacuum" duplication the enhancer itself guards
// against for its own LLM output.
func prependBrandModel(text, brand, modelName string) string {
	prefix := strings.TrimSpace(strings.Join([]string{brand, modelName}, " "))
	if prefix == "" {
		return text
	}
	if strings.HasPrefix(strings.ToLower(text), strings.ToLower(prefix)) {
		return text
	}
	return strings.TrimSpace(prefix + " " + text)
}

// deriveFacts builds the Facts record consumed by QueryBuilder and
// OfferRanker. Facts are derived once per row; confidence defaults to
// 0.8 per the data model's stated invariant.
func deriveFacts(row model.Row, enhancedDescription string) model.Facts {
	return model.Facts{
		Title:      enhancedDescription,
		Brand:      row.Brand,
		Model:      row.Model,
		Attributes: extractAttributes(enhancedDescription),
		Condition:  row.Condition,
		Confidence: 0.8,
	}
}

var attributeWords = []string{
	"black", "white", "red", "blue", "green", "gray", "grey", "silver",
	"stainless", "wood", "wooden", "metal", "plastic", "glass", "leather",
	"small", "medium", "large", "king", "queen", "full", "twin",
}

// extractAttributes scans text for a small fixed vocabulary of
// color/material/size words, in order of appearance, so the first match
// can serve as QueryBuilder's dominant attribute.
func extractAttributes(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, tok := range strings.Fields(lower) {
		tok = strings.Trim(tok, ".,;:()")
		for _, w := range attributeWords {
			if tok == w {
				found = append(found, tok)
				break
			}
		}
	}
	return found
}

// quickMatch is transition 2: a single authoritative search using the
// enhanced description as-is. A direct-product, Trusted, in-band top
// offer short-circuits straight to Emit.
func (p *Pipeline) quickMatch(ctx context.Context, it *item) bool {
	band := p.toleranceBand(it.purchasePrice, p.cfg.TolerancePct)
	offers, err := p.provider.Search(ctx, it.enhancedDesc, &band)
	it.trace.Queries = append(it.trace.Queries, it.enhancedDesc)
	if err != nil || len(offers) == 0 {
		return false
	}
	it.trace.CandidatesChecked += len(offers)
	scoreSimilarity(offers, it.facts.Title)

	best, ok := rank.Select(offers, model.StrategyExact, it.purchasePrice, band, p.policy)
	if !ok {
		return false
	}

	if !trustpolicy.IsDirectProductURL(best.Link) {
		return false
	}
	domain := trustpolicy.RegistrableDomain(best.Link)
	if p.policy.Classify(domain) != trustpolicy.Trusted {
		return false
	}
	if !band.InBand(best.Price) {
		return false
	}

	it.best = best
	it.haveBest = true
	it.url = best.Link
	it.directURL = true
	it.source = trustpolicy.FriendlyName(domain)
	it.status = model.StatusFound
	it.matchQuality = "Exact"
	it.tier = model.TierSERP
	it.trace.Validation = "quick_match: direct trusted url in band"
	return true
}

// enrichedSearch is transition 3: run every QueryBuilder pass, fan out
// across the SearchProvider, aggregate offers, and rank them against
// the tolerance band.
func (p *Pipeline) enrichedSearch(ctx context.Context, it *item) {
	it.queries = query.Build(it.facts, p.cfg.Synonyms)
	band := p.toleranceBand(it.purchasePrice, p.cfg.TolerancePct)

	var all []model.Offer
	for _, q := range it.queries {
		it.trace.Queries = append(it.trace.Queries, q.Text)
		offers, err := p.provider.Search(ctx, q.Text, &band)
		if err != nil {
			continue
		}
		all = append(all, offers...)
	}
	it.trace.CandidatesChecked += len(all)
	scoreSimilarity(all, it.facts.Title)

	for _, o := range all {
		switch p.policy.Classify(o.Source) {
		case trustpolicy.Untrusted:
			it.trace.UntrustedSkipped = append(it.trace.UntrustedSkipped, o.Source)
		case trustpolicy.Trusted:
			it.trace.TrustedSkipped = append(it.trace.TrustedSkipped, o.Source)
		}
	}

	it.candidates = rank.RankedDescending(all, it.purchasePrice, band, p.policy, p.weights)
	if len(it.candidates) > 0 {
		it.best = it.candidates[0]
		it.haveBest = true
		it.url = it.best.Link
		it.source = it.best.Source
	}
}

// resolve is transition 4: for a top-ranked non-direct URL, invoke
// URLResolver; keep the resolved direct/Trusted URL or fall back to the
// original, marked non-direct.
func (p *Pipeline) resolve(ctx context.Context, it *item) {
	if !it.haveBest || it.url == "" {
		return
	}
	if trustpolicy.IsDirectProductURL(it.url) {
		it.directURL = true
		return
	}

	resolved := p.resolver.Resolve(ctx, it.url, it.best.Price)
	if trustpolicy.IsDirectProductURL(resolved) {
		domain := trustpolicy.RegistrableDomain(resolved)
		if p.policy.Classify(domain) == trustpolicy.Trusted {
			it.url = resolved
			it.directURL = true
			it.source = trustpolicy.FriendlyName(domain)
			return
		}
	}
	it.directURL = false
}

// classify is transition 5: status=Found iff the URL is direct-product,
// its source is Trusted, and price-URL consistency holds.
func (p *Pipeline) classify(it *item) bool {
	if !it.haveBest {
		return false
	}
	if !it.directURL || it.url == "" {
		return false
	}
	domain := trustpolicy.RegistrableDomain(it.url)
	if p.policy.Classify(domain) != trustpolicy.Trusted {
		return false
	}
	if !priceURLConsistent(it.best, it.url) {
		return false
	}

	it.source = trustpolicy.FriendlyName(domain)
	it.status = model.StatusFound
	it.matchQuality = "Ranked"
	it.tier = model.TierSERP
	it.trace.Validation = "classify: direct trusted url, price-url consistent"
	return true
}

// priceURLConsistent holds when either the offer carries no embedded
// price to contradict it, or an embedded price is within 50% of the
// offer's quoted price; product-ID-style URLs (the common case) carry
// no embedded price and are assumed consistent per spec section 9.
func priceURLConsistent(offer model.Offer, rawURL string) bool {
	embedded, ok := extractEmbeddedPrice(rawURL)
	if !ok {
		return true
	}
	if offer.Price <= 0 {
		return false
	}
	diff := embedded - offer.Price
	if diff < 0 {
		diff = -diff
	}
	return diff <= offer.Price*0.5
}

// extractEmbeddedPrice parses the value of a "price=" parameter in the
// URL (up to the next '&' or '#'); most retailer URLs encode a product
// ID rather than a price, in which case this returns ok=false.
func extractEmbeddedPrice(rawURL string) (float64, bool) {
	idx := strings.Index(rawURL, "price=")
	if idx < 0 {
		return 0, false
	}
	rest := rawURL[idx+len("price="):]
	end := strings.IndexAny(rest, "&#")
	if end >= 0 {
		rest = rest[:end]
	}
	v, ok := rank.ParsePrice(rest)
	return v, ok
}

// toleranceFallback is transition 6: rerun EnrichedSearch against a
// widened tolerance band when the item matches a known bulk/generic
// pattern, accepting the lowest-price qualified offer even without a
// direct URL.
func (p *Pipeline) toleranceFallback(ctx context.Context, it *item) bool {
	if !isBulkOrGeneric(it.facts.Title, p.cfg.Synonyms) {
		return false
	}

	band := p.toleranceBand(it.purchasePrice, p.cfg.ToleranceUpperPct)
	var all []model.Offer
	for _, q := range it.queries {
		offers, err := p.provider.Search(ctx, q.Text, &band)
		if err != nil {
			continue
		}
		all = append(all, offers...)
	}
	it.trace.CandidatesChecked += len(all)
	scoreSimilarity(all, it.facts.Title)

	best, ok := rank.Select(all, model.StrategyGeneric, it.purchasePrice, band, p.policy)
	if !ok {
		return false
	}

	it.best = best
	it.haveBest = true
	it.url = best.Link
	it.directURL = trustpolicy.IsDirectProductURL(best.Link)
	domain := trustpolicy.RegistrableDomain(best.Source)
	if it.directURL {
		domain = trustpolicy.RegistrableDomain(best.Link)
	}
	it.source = trustpolicy.FriendlyName(domain)
	it.status = model.StatusEstimated
	it.matchQuality = "ToleranceFallback"
	it.tier = model.TierFallback
	it.purchasePrice = best.Price
	it.trace.Validation = "tolerance_fallback: widened band, best qualified offer"
	return true
}

// isBulkOrGeneric reports whether title matches a configured
// generic/bulk synonym token.
func isBulkOrGeneric(title string, synonyms map[string]string) bool {
	lower := strings.ToLower(title)
	for generic := range synonyms {
		if strings.Contains(lower, strings.ToLower(generic)) {
			return true
		}
	}
	return false
}

// marketSearch is transition 7: pick a plausible retailer by
// product-type heuristic, build its site-search URL, and report
// Estimated at the best candidate price seen, or purchasePrice if none
// qualified.
func (p *Pipeline) marketSearch(ctx context.Context, it *item) bool {
	price := it.purchasePrice
	if it.haveBest && it.best.Price >= 0.10 {
		price = it.best.Price
	}

	domain := chooseRetailer(it.facts.Title, p.cfg.TrustedDomains)
	if domain == "" {
		return false
	}

	it.url = retailerSearchURL(domain, it.enhancedDesc)
	it.directURL = false
	it.source = trustpolicy.FriendlyName(domain)
	it.status = model.StatusEstimated
	it.matchQuality = "Market Search"
	it.tier = model.TierFallback
	it.purchasePrice = price
	it.trace.Validation = "market_search: heuristic retailer, best price seen"
	return true
}

// chooseRetailer picks the first trusted domain that carries a
// category keyword match against title, defaulting to the first
// configured trusted domain when no keyword fires.
func chooseRetailer(title string, trustedDomains []string) string {
	if len(trustedDomains) == 0 {
		return ""
	}
	lower := strings.ToLower(title)
	hints := map[string]string{
		"electronics.com": "bestbuy.com",
		"tv":               "bestbuy.com",
		"laptop":           "bestbuy.com",
		"furniture":        "wayfair.com",
		"sofa":             "wayfair.com",
		"tool":             "homedepot.com",
		"drill":            "homedepot.com",
		"appliance":        "lowes.com",
	}
	for kw, domain := range hints {
		if strings.Contains(lower, kw) {
			for _, d := range trustedDomains {
				if d == domain {
					return domain
				}
			}
		}
	}
	return trustedDomains[0]
}

// retailerSearchURL builds a retailer site-search URL for a given
// registrable domain and query text.
func retailerSearchURL(domain, q string) string {
	encoded := strings.ReplaceAll(strings.TrimSpace(q), " ", "+")
	switch domain {
	case "walmart.com":
		return fmt.Sprintf("https://www.walmart.com/search?q=%s", encoded)
	case "target.com":
		return fmt.Sprintf("https://www.target.com/s?searchTerm=%s", encoded)
	case "amazon.com":
		return fmt.Sprintf("https://www.amazon.com/s?k=%s", encoded)
	case "homedepot.com":
		return fmt.Sprintf("https://www.homedepot.com/s/%s", encoded)
	case "lowes.com":
		return fmt.Sprintf("https://www.lowes.com/search?searchTerm=%s", encoded)
	case "bestbuy.com":
		return fmt.Sprintf("https://www.bestbuy.com/site/searchpage.jsp?st=%s", encoded)
	case "wayfair.com":
		return fmt.Sprintf("https://www.wayfair.com/keyword.php?keyword=%s", encoded)
	default:
		return fmt.Sprintf("https://www.%s/search?q=%s", domain, encoded)
	}
}

// purchasePriceFallback is transition 8: the last resort when no
// retailer heuristic applies — price the item at purchasePrice with no
// URL.
func (p *Pipeline) purchasePriceFallback(it *item) {
	it.status = model.StatusEstimated
	it.matchQuality = "Purchase Price Fallback"
	it.tier = model.TierFallback
	it.source = "Unknown"
	it.url = ""
	it.directURL = false
	it.trace.Validation = "purchase_price_fallback: no retailer candidate"
}

// scoreSimilarity populates each offer's Similarity against title
// in-place when the provider didn't already report one.
func scoreSimilarity(offers []model.Offer, title string) {
	for i := range offers {
		if offers[i].Similarity == 0 {
			offers[i].Similarity = rank.Similarity(offers[i].Title, title)
		}
	}
}

func (p *Pipeline) toleranceBand(target, pct float64) rank.Band {
	if pct <= 0 {
		pct = 50
	}
	return rank.ToleranceBand(target, pct)
}

// pendingResult is a row's terminal pricing outcome, still missing the
// depreciation category that a batch Categorizer call resolves
// afterward.
type pendingResult struct {
	row           model.Row
	status        model.Status
	source        string
	price         float64
	total         float64
	costToReplace float64
	url           string
	matchQuality  string
	tier          model.PricingTier
	llmEstimate   *model.LLMEstimate
	trace         model.Trace
}

// toPending is transition 9a: compute the priced/total/cost fields from
// the finished work record, leaving categorization for the caller.
func (p *Pipeline) toPending(it *item) pendingResult {
	price := it.purchasePrice
	if it.haveBest && (it.status == model.StatusFound || it.tier == model.TierSERP) {
		price = it.best.Price
	}
	total := round2(price * float64(it.row.Qty))

	var costToReplace float64
	if it.row.HasPurchasePrice() {
		costToReplace = round2(*it.row.PurchasePrice * float64(it.row.Qty))
	}

	return pendingResult{
		row:           it.row,
		status:        it.status,
		source:        it.source,
		price:         price,
		total:         total,
		costToReplace: costToReplace,
		url:           it.url,
		matchQuality:  it.matchQuality,
		tier:          it.tier,
		llmEstimate:   it.llmEstimate,
		trace:         it.trace,
	}
}

// finalize is transition 9b: combine a pending result with its resolved
// Categorization into the final PricingResult.
func (p *Pipeline) finalize(pr pendingResult, cat model.Categorization) model.PricingResult {
	brand := pr.row.Brand
	if brand == "" {
		brand = "No Brand"
	}

	var url *string
	if pr.url != "" {
		url = &pr.url
	}

	return model.PricingResult{
		RowIndex:              pr.row.RowIndex,
		Description:           pr.row.Description,
		Brand:                 brand,
		Status:                pr.status,
		Source:                pr.source,
		Price:                 pr.price,
		TotalReplacementPrice: pr.total,
		CostToReplace:         pr.costToReplace,
		URL:                   derefOrEmpty(url),
		MatchQuality:          pr.matchQuality,
		PricingTier:           pr.tier,
		DepCategory:           cat.Category,
		DepPercent:            formatPercent(cat.DepRate),
		DepAmount:             cat.DepAmount,
		LLMEstimate:           pr.llmEstimate,
		Trace:                 pr.trace,
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatPercent(rate float64) string {
	return fmt.Sprintf("%.4f%%", rate*100)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
