// Package query builds the ordered, best-first list of search queries
// the pipeline fans out across SearchProvider (spec section 4.2).
package query

import (
	"sort"
	"strings"

	"github.com/clarus-labs/repricer/internal/model"
)

const maxQueryLen = 80

var fillerWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "with": true,
	"for": true, "and": true, "or": true, "in": true, "on": true,
}

// Build returns up to 5 ordered Query values for facts, applying the
// synonym table for generic/bulk rewrites (spec pass 3).
func Build(facts model.Facts, synonyms map[string]string) []model.Query {
	var queries []model.Query
	seen := make(map[string]bool)

	add := func(text string, strategy model.QueryStrategy, pass int) {
		text = trim(text)
		if text == "" {
			return
		}
		key := strings.ToLower(text)
		if seen[key] {
			return
		}
		seen[key] = true
		queries = append(queries, model.Query{Text: text, Strategy: strategy, PassIndex: pass})
	}

	nouns := coreNouns(facts.Title)

	// Pass 1: brand + model + core nouns (exact).
	if facts.Brand != "" && facts.Model != "" {
		add(join(facts.Brand, facts.Model, nouns), model.StrategyExact, 1)
	}

	// Pass 2: brand + core nouns (exact, no model).
	if facts.Brand != "" {
		add(join(facts.Brand, nouns), model.StrategyExact, 2)
	}

	// Pass 3: generic synonym rewrite.
	titleLower := strings.ToLower(facts.Title)
	for generic, rewrite := range synonyms {
		if strings.Contains(titleLower, strings.ToLower(generic)) {
			add(rewrite, model.StrategyGeneric, 3)
		}
	}

	// Pass 4: core nouns + dominant attribute.
	if attr := dominantAttribute(facts.Attributes); attr != "" {
		add(join(nouns, attr), model.StrategyEnriched, 4)
	}

	// Pass 5: category baseline + subcategory.
	if facts.Category != "" {
		add(join(facts.Category, facts.Subcategory), model.StrategyEnriched, 5)
	}

	// Always ensure at least one query: plain core nouns.
	if len(queries) == 0 {
		add(nouns, model.StrategyEnriched, 1)
	}

	sortByDistinctTokens(queries)
	if len(queries) > 5 {
		queries = queries[:5]
	}
	return queries
}

// coreNouns strips filler words from title, returning the remaining
// tokens joined with single spaces.
func coreNouns(title string) string {
	fields := strings.Fields(title)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if fillerWords[strings.ToLower(f)] {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// dominantAttribute picks the first attribute as the dominant one
// (Facts.Attributes lists color/material/size words in order of
// appearance in the title).
func dominantAttribute(attrs []string) string {
	if len(attrs) == 0 {
		return ""
	}
	return attrs[0]
}

func join(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

func trim(text string) string {
	text = strings.TrimSpace(text)
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= maxQueryLen {
		return text
	}
	// Trim at a word boundary no later than maxQueryLen.
	cut := text[:maxQueryLen]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

// sortByDistinctTokens stable-sorts queries so that, among otherwise
// equal passes, the one with more distinct tokens is preferred, per the
// spec's tie-break rule. The sort is stable so pass order still governs
// when token counts are equal.
func sortByDistinctTokens(queries []model.Query) {
	sort.SliceStable(queries, func(i, j int) bool {
		return distinctTokenCount(queries[i].Text) > distinctTokenCount(queries[j].Text)
	})
}

func distinctTokenCount(text string) int {
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		seen[tok] = true
	}
	return len(seen)
}
