package categorizer

import (
	"testing"
	"time"

	"github.com/clarus-labs/repricer/internal/cache"
	"github.com/clarus-labs/repricer/internal/config"
	"github.com/clarus-labs/repricer/internal/model"
)

func testCategorizer() *Categorizer {
	rates := make(map[string]float64, len(config.DefaultCategories()))
	for _, c := range config.DefaultCategories() {
		rates[c.Name] = c.DepRate
	}
	return &Categorizer{rates: rates, keywords: defaultKeywords}
}

func TestTier1KeywordMostHitsWins(t *testing.T) {
	c := testCategorizer()
	category, ok := c.tier1Keyword("Stainless Steel Refrigerator with Freezer")
	if !ok {
		t.Fatal("expected a tier-1 match")
	}
	if category != "APPLIANCES" {
		t.Errorf("category = %q, want APPLIANCES", category)
	}
}

func TestTier1KeywordNoMatch(t *testing.T) {
	c := testCategorizer()
	if _, ok := c.tier1Keyword("a completely unrelated description"); ok {
		t.Error("expected no tier-1 match")
	}
}

func TestTier1KeywordWholeWordOnly(t *testing.T) {
	c := testCategorizer()
	// "toying" should not match the "toy" keyword as a substring.
	if _, ok := c.tier1Keyword("toying around with an idea"); ok {
		t.Error("expected whole-word matching to reject substring hits")
	}
}

func TestContainsWholeWord(t *testing.T) {
	cases := []struct {
		haystack, word string
		want           bool
	}{
		{"a red toy car", "toy", true},
		{"toying with it", "toy", false},
		{"toy", "toy", true},
		{"a toy.", "toy", true},
		{"bigtoybox", "toy", false},
	}
	for _, c := range cases {
		if got := containsWholeWord(c.haystack, c.word); got != c.want {
			t.Errorf("containsWholeWord(%q, %q) = %v, want %v", c.haystack, c.word, got, c.want)
		}
	}
}

func TestOrderedCategoriesIsStable(t *testing.T) {
	got := orderedCategories(defaultKeywords)
	if len(got) != len(defaultKeywords) {
		t.Fatalf("got %d categories, want %d", len(got), len(defaultKeywords))
	}
	got2 := orderedCategories(defaultKeywords)
	for i := range got {
		if got[i] != got2[i] {
			t.Fatalf("orderedCategories not stable across calls: %v vs %v", got, got2)
		}
	}
}

func TestTier3Heuristic(t *testing.T) {
	c := testCategorizer()
	category, ok := c.tier3Heuristic("a piece of decor for the mantle")
	if !ok || category != "DECOR" {
		t.Errorf("tier3Heuristic() = (%q, %v), want (DECOR, true)", category, ok)
	}
	if _, ok := c.tier3Heuristic("nothing recognizable here"); ok {
		t.Error("expected no tier-3 match")
	}
}

func TestFuzzyRepairSubstringContainment(t *testing.T) {
	rates := map[string]float64{"ELC - ELECTRONICS B": 0.2, "FURNITURE": 0.08}
	got, ok := fuzzyRepair("ELECTRONICS", rates)
	if !ok || got != "ELC - ELECTRONICS B" {
		t.Errorf("fuzzyRepair(ELECTRONICS) = (%q, %v), want (ELC - ELECTRONICS B, true)", got, ok)
	}
}

func TestFuzzyRepairEditDistanceFallback(t *testing.T) {
	rates := map[string]float64{"TOOLS": 0.07}
	got, ok := fuzzyRepair("TOLS", rates)
	if !ok || got != "TOOLS" {
		t.Errorf("fuzzyRepair(TOLS) = (%q, %v), want (TOOLS, true)", got, ok)
	}
}

func TestFuzzyRepairNoMatch(t *testing.T) {
	rates := map[string]float64{"TOOLS": 0.07}
	if _, ok := fuzzyRepair("COMPLETELYDIFFERENTTHING", rates); ok {
		t.Error("expected no repair for a wildly different name")
	}
}

func TestNormalizeCategory(t *testing.T) {
	if got := normalizeCategory("Elc - Electronics B!"); got != "ELCELECTRONICSB" {
		t.Errorf("normalizeCategory() = %q, want ELCELECTRONICSB", got)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"same", "same", 0},
		{"", "abc", 3},
		{"abc", "", 3},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{10.005, 10.01},
		{9.994, 9.99},
		{0, 0},
	}
	for _, c := range cases {
		if got := round2(c.in); got != c.want {
			t.Errorf("round2(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCategorizeViaTier1ComputesDepAmount(t *testing.T) {
	c := testCategorizer()
	result := c.Categorize(nil, "Stainless Steel Refrigerator", "", "", 1000)
	if result.Category != "APPLIANCES" {
		t.Fatalf("Category = %q, want APPLIANCES", result.Category)
	}
	if result.DepAmount != round2(1000*result.DepRate) {
		t.Errorf("DepAmount = %v, want %v", result.DepAmount, round2(1000*result.DepRate))
	}
}

// TestCategorizeBatchResolvesEveryItemWithoutACall covers the batch-mode
// operation against a Categorizer with no batchPrompt wired (as
// testCategorizer yields): every item must still resolve via tier 1 or
// tier 3 since the LLM tier is simply skipped, never an error.
func TestCategorizeBatchResolvesEveryItemWithoutACall(t *testing.T) {
	c := testCategorizer()
	items := []BatchItem{
		{Description: "Stainless Steel Refrigerator", Total: 1000},
		{Description: "a piece of decor for the mantle", Total: 200},
		{Description: "nothing recognizable here at all", Total: 50},
	}

	results := c.CategorizeBatch(nil, items)

	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}
	if results[0].Category != "APPLIANCES" {
		t.Errorf("results[0].Category = %q, want APPLIANCES", results[0].Category)
	}
	if results[0].DepAmount != round2(1000*results[0].DepRate) {
		t.Errorf("results[0].DepAmount = %v, want %v", results[0].DepAmount, round2(1000*results[0].DepRate))
	}
	if results[1].Category != "DECOR" {
		t.Errorf("results[1].Category = %q, want DECOR", results[1].Category)
	}
	if results[2].Category != "" {
		t.Errorf("results[2].Category = %q, want empty for an unclassifiable item", results[2].Category)
	}
}

// TestCategorizeBatchUsesCacheAcrossCalls confirms a batch call populates
// the shared cache the same way Categorize does, so a second batch
// (or a single-item Categorize) sees a hit instead of re-resolving.
func TestCategorizeBatchUsesCacheAcrossCalls(t *testing.T) {
	c := testCategorizer()
	c.cache = cache.New[model.Categorization](time.Minute, 10)

	first := c.CategorizeBatch(nil, []BatchItem{{Description: "Stainless Steel Refrigerator", Total: 1000}})
	if first[0].Category != "APPLIANCES" {
		t.Fatalf("Category = %q, want APPLIANCES", first[0].Category)
	}

	second := c.Categorize(nil, "Stainless Steel Refrigerator", "", "", 2000)
	if second.Category != "APPLIANCES" {
		t.Errorf("Category = %q, want APPLIANCES (cache hit)", second.Category)
	}
	if second.DepAmount != round2(2000*second.DepRate) {
		t.Errorf("DepAmount = %v, want %v", second.DepAmount, round2(2000*second.DepRate))
	}
}
