// Package model defines the data types shared by every stage of the
// pricing pipeline.
package model

import "time"

// Row is a single normalized inventory line, produced by a file-parsing
// collaborator outside this module.
type Row struct {
	RowIndex      int      `json:"row_index"`
	Description   string   `json:"description"`
	Qty           int      `json:"qty"`
	PurchasePrice *float64 `json:"purchase_price,omitempty"`
	Brand         string   `json:"brand,omitempty"`
	Model         string   `json:"model,omitempty"`
	Room          string   `json:"room,omitempty"`
	AgeYears      *float64 `json:"age_years,omitempty"`
	Condition     string   `json:"condition,omitempty"`
}

// Normalize enforces the row invariants: qty coerced to at least 1, and
// a brand of "No Brand" (any case) treated as no brand at all.
func (r *Row) Normalize() {
	if r.Qty < 1 {
		r.Qty = 1
	}
	if equalFold(r.Brand, "no brand") {
		r.Brand = ""
	}
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// HasPurchasePrice reports whether the row carries a usable purchase
// price (non-nil and positive).
func (r *Row) HasPurchasePrice() bool {
	return r.PurchasePrice != nil && *r.PurchasePrice > 0
}

// Facts are the structured attributes derived once per row before any
// search is attempted.
type Facts struct {
	Title       string   `json:"title"`
	Brand       string   `json:"brand,omitempty"`
	Model       string   `json:"model,omitempty"`
	Category    string   `json:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty"`
	Attributes  []string `json:"attributes,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// QueryStrategy tags how a Query was constructed, not just that it is a
// string, so downstream ranking can branch on intent.
type QueryStrategy string

const (
	StrategyExact    QueryStrategy = "exact"
	StrategyGeneric  QueryStrategy = "generic"
	StrategyEnriched QueryStrategy = "enriched"
)

// Query is one ordered, best-first search query built from Facts.
type Query struct {
	Text      string        `json:"text"`
	Strategy  QueryStrategy `json:"strategy"`
	PassIndex int           `json:"pass_index"`
}

// Merchant is a single seller attached to an Offer (some search
// providers return multi-merchant listings for one product).
type Merchant struct {
	Name string `json:"name"`
	Link string `json:"link,omitempty"`
}

// Offer is a single candidate product returned by a SearchProvider. It
// is transient: never persisted by the core.
type Offer struct {
	Title      string     `json:"title"`
	Price      float64    `json:"price"`
	Source     string     `json:"source"`
	Link       string     `json:"link,omitempty"`
	Merchants  []Merchant `json:"merchants,omitempty"`
	ProductID  string     `json:"product_id,omitempty"`
	Similarity float64    `json:"similarity"`
}

// Status is a tagged variant, not a bare string, for a PricingResult's
// confidence classification.
type Status string

const (
	StatusFound     Status = "Found"
	StatusEstimated Status = "Estimated"
)

// PricingTier distinguishes a result won from live search-engine results
// from one produced by an internal fallback tier.
type PricingTier string

const (
	TierSERP     PricingTier = "SERP"
	TierFallback PricingTier = "FALLBACK"
)

// Confidence is the PriceEstimator's self-reported confidence band.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// LLMEstimate records a PriceEstimator call that was actually made for a
// row, so the output record can show its reasoning.
type LLMEstimate struct {
	Price      float64    `json:"price"`
	Confidence Confidence `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
	Source     string     `json:"source"`
}

// Trace records the evidence trail for a single row's pricing decision:
// what was searched, what was rejected and why, and how the final price
// was validated.
type Trace struct {
	Queries          []string `json:"queries"`
	CandidatesChecked int     `json:"candidates_checked"`
	TrustedSkipped   []string `json:"trusted_skipped,omitempty"`
	UntrustedSkipped []string `json:"untrusted_skipped,omitempty"`
	Validation       string   `json:"validation"`
}

// PricingResult is the per-row output record emitted once the pipeline
// reaches its Emit state.
type PricingResult struct {
	RowIndex               int          `json:"row_index"`
	Description            string       `json:"description"`
	Brand                  string       `json:"brand"`
	Status                 Status       `json:"status"`
	Source                 string       `json:"source"`
	Price                  float64      `json:"price"`
	TotalReplacementPrice  float64      `json:"total_replacement_price"`
	CostToReplace          float64      `json:"cost_to_replace"`
	URL                    string       `json:"url,omitempty"`
	MatchQuality           string       `json:"match_quality"`
	PricingTier            PricingTier  `json:"pricing_tier"`
	DepCategory            string       `json:"dep_category,omitempty"`
	DepPercent             string       `json:"dep_percent"`
	DepAmount              float64      `json:"dep_amount"`
	LLMEstimate            *LLMEstimate `json:"llm_estimate,omitempty"`
	Trace                  Trace        `json:"trace"`
}

// CategorizationMethod is a tagged variant for which tier of the
// categorizer produced a result.
type CategorizationMethod string

const (
	MethodKeyword CategorizationMethod = "keyword"
	MethodLLM     CategorizationMethod = "llm"
	MethodFuzzy   CategorizationMethod = "fuzzy"
	MethodDefault CategorizationMethod = "default"
)

// Categorization is the depreciation classification computed after
// pricing for a single row.
type Categorization struct {
	Category  string               `json:"category"`
	DepRate   float64              `json:"dep_rate"`
	DepAmount float64              `json:"dep_amount"`
	Method    CategorizationMethod `json:"method"`
}

// JobResults is the in-memory aggregate a ResultStore keeps for one
// processing job.
type JobResults struct {
	JobID     string          `json:"job_id"`
	Rows      []PricingResult `json:"rows"`
	CreatedAt time.Time       `json:"created_at"`
}
