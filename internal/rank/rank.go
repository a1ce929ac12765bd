// Package rank scores and selects among candidate Offers (spec section
// 4.7). Every function here is pure: no shared mutable state, matching
// section 5's "no shared mutable state in TrustPolicy/QueryBuilder/
// OfferRanker" requirement.
package rank

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/clarus-labs/repricer/internal/model"
	"github.com/clarus-labs/repricer/internal/trustpolicy"
)

// Weights are the scoring coefficients from the spec's score formula.
type Weights struct {
	Similarity float64
	Trust      float64
	PriceFit   float64
	DirectURL  float64
	LowPrice   float64
}

// DefaultWeights mirrors the formula's implied relative emphasis:
// similarity and trust dominate, with a direct-URL bonus and a penalty
// for suspiciously cheap offers.
var DefaultWeights = Weights{
	Similarity: 0.35,
	Trust:      0.25,
	PriceFit:   0.25,
	DirectURL:  0.15,
	LowPrice:   0.20,
}

// Band is a tolerance band [lo, hi] around a target price.
type Band struct {
	Lo, Hi float64
}

// ToleranceBand computes [target*(1-t), target*(1+t)] for
// t = tolerancePct/100.
func ToleranceBand(target, tolerancePct float64) Band {
	t := tolerancePct / 100
	return Band{Lo: target * (1 - t), Hi: target * (1 + t)}
}

// InBand reports whether price falls within the band, inclusive.
func (b Band) InBand(price float64) bool {
	return price >= b.Lo && price <= b.Hi
}

// ParsePrice parses a price string by stripping a leading "$" and
// thousands separators. Returns ok=false on any non-numeric remainder,
// per the spec's "parse failure -> offer disqualified" rule.
func ParsePrice(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Similarity scores token overlap between two titles as
// |intersection| / |union| over lowercased word sets, used to populate
// an Offer's Similarity field before ranking when a provider doesn't
// report one itself.
func Similarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		out[tok] = true
	}
	return out
}

// Qualifies reports whether an offer clears the spec's hard
// disqualifications: price floor, price-vs-target floor, and blocked
// source.
func Qualifies(offer model.Offer, target float64, policy *trustpolicy.Policy) bool {
	if offer.Price < 0.10 {
		return false
	}
	if target > 0 && offer.Price < target*0.01 {
		return false
	}
	if policy != nil && !policy.Allowed(offer.Source, offer.Link) {
		return false
	}
	return true
}

// Score computes the weighted score for a single offer against a target
// price and tolerance band.
func Score(offer model.Offer, target float64, band Band, policy *trustpolicy.Policy, w Weights) float64 {
	trustBonus := 0.0
	if policy != nil {
		switch policy.Classify(offer.Source) {
		case trustpolicy.Trusted:
			trustBonus = 1.0
		case trustpolicy.Unknown:
			trustBonus = 0.3
		case trustpolicy.Untrusted:
			trustBonus = 0.0
		}
	}

	priceFit := 0.0
	if band.InBand(offer.Price) && target > 0 {
		priceFit = 1 - math.Abs(offer.Price-target)/target
		if priceFit < 0 {
			priceFit = 0
		}
	}

	directBonus := 0.0
	if offer.Link != "" && trustpolicy.IsDirectProductURL(offer.Link) {
		directBonus = 1.0
	}

	lowPricePenalty := 0.0
	if target > 0 && offer.Price < target*0.15 {
		lowPricePenalty = 1.0
	}

	return w.Similarity*offer.Similarity +
		w.Trust*trustBonus +
		w.PriceFit*priceFit +
		w.DirectURL*directBonus -
		w.LowPrice*lowPricePenalty
}

// Select chooses the best offer among qualified candidates, applying
// the spec's strategy-dependent tie-break: for an exact-strategy search,
// prefer offers with similarity>=0.45 and take the lowest price among
// those; otherwise take the lowest price among all qualified offers.
// Returns false if no offer qualifies.
func Select(offers []model.Offer, strategy model.QueryStrategy, target float64, band Band, policy *trustpolicy.Policy) (model.Offer, bool) {
	qualified := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		if Qualifies(o, target, policy) {
			qualified = append(qualified, o)
		}
	}
	if len(qualified) == 0 {
		return model.Offer{}, false
	}

	pool := qualified
	if strategy == model.StrategyExact {
		exact := make([]model.Offer, 0, len(qualified))
		for _, o := range qualified {
			if o.Similarity >= 0.45 {
				exact = append(exact, o)
			}
		}
		if len(exact) > 0 {
			pool = exact
		}
	}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Price < pool[j].Price })
	return pool[0], true
}

// RankedDescending sorts offers by Score descending (stable). The
// pipeline's EnrichedSearch step takes the first element as its best
// offer; no qualification filter is applied here.
func RankedDescending(offers []model.Offer, target float64, band Band, policy *trustpolicy.Policy, w Weights) []model.Offer {
	scored := make([]model.Offer, len(offers))
	copy(scored, offers)
	sort.SliceStable(scored, func(i, j int) bool {
		return Score(scored[i], target, band, policy, w) > Score(scored[j], target, band, policy, w)
	})
	return scored
}
