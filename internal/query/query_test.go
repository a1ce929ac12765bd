package query

import (
	"testing"

	"github.com/clarus-labs/repricer/internal/model"
)

func TestBuildExactPasses(t *testing.T) {
	facts := model.Facts{
		Title: "Professional 5 Quart Stand Mixer",
		Brand: "KitchenAid",
		Model: "KSM150",
	}
	queries := Build(facts, nil)
	if len(queries) == 0 {
		t.Fatal("expected at least one query")
	}

	var sawExact bool
	for _, q := range queries {
		if q.Strategy == model.StrategyExact {
			sawExact = true
		}
		if len(q.Text) > maxQueryLen {
			t.Errorf("query %q exceeds max length %d", q.Text, maxQueryLen)
		}
	}
	if !sawExact {
		t.Error("expected at least one exact-strategy query when brand+model present")
	}
}

func TestBuildSynonymRewrite(t *testing.T) {
	facts := model.Facts{Title: "Iron And Ironing Board"}
	synonyms := map[string]string{
		"iron and ironing board": "full size ironing board with iron rest",
	}
	queries := Build(facts, synonyms)

	var found bool
	for _, q := range queries {
		if q.Text == "full size ironing board with iron rest" && q.Strategy == model.StrategyGeneric {
			found = true
		}
	}
	if !found {
		t.Errorf("expected synonym-rewritten query in %+v", queries)
	}
}

func TestBuildNeverEmpty(t *testing.T) {
	facts := model.Facts{Title: "Lamp"}
	queries := Build(facts, nil)
	if len(queries) == 0 {
		t.Fatal("expected at least one query for any non-empty title")
	}
}

func TestBuildCapsAtFive(t *testing.T) {
	facts := model.Facts{
		Title:       "Black Leather Reclining Sofa Couch Large Sectional",
		Brand:       "Ashley",
		Model:       "Signature",
		Category:    "FURNITURE",
		Subcategory: "Sofas",
		Attributes:  []string{"black", "leather", "large"},
	}
	synonyms := map[string]string{"sofa couch": "sectional sofa"}
	queries := Build(facts, synonyms)
	if len(queries) > 5 {
		t.Errorf("got %d queries, want at most 5", len(queries))
	}
}

func TestBuildDedupes(t *testing.T) {
	facts := model.Facts{Title: "Chair", Brand: "", Model: ""}
	queries := Build(facts, nil)
	seen := make(map[string]bool)
	for _, q := range queries {
		key := q.Text
		if seen[key] {
			t.Errorf("duplicate query text %q", key)
		}
		seen[key] = true
	}
}

func TestCoreNounsStripsFiller(t *testing.T) {
	got := coreNouns("The Lamp With A Shade")
	want := "Lamp Shade"
	if got != want {
		t.Errorf("coreNouns() = %q, want %q", got, want)
	}
}

func TestTrimTruncatesAtWordBoundary(t *testing.T) {
	long := "this is a very long product description that definitely exceeds the eighty character search query budget by quite a lot"
	got := trim(long)
	if len(got) > maxQueryLen {
		t.Errorf("trim() returned %d chars, want <= %d", len(got), maxQueryLen)
	}
	if got[len(got)-1] == ' ' {
		t.Error("trim() should not leave trailing whitespace")
	}
}
