// Package categorizer implements the tiered depreciation classifier
// (spec section 4.9): tier-1 keyword dictionary, tier-2 LLM with fuzzy
// near-miss repair, tier-3 heuristic default.
//
// Tier 1's category->keyword-list, most-whole-word-hits-wins scan is
// grounded on evalaf/redteam/harmful_content.go's HarmfulContentEvaluator.
// Tier 2's structured LLM call is grounded on
// evalaf/genkit/evaluators.go's DefinePrompt/Execute/Output pattern, with
// its fuzzy-repair and field-normalization style grounded on
// evalaf/agent/classification.go (lowercase+trim comparisons across
// possible field spellings). Tier 3's primary-rule/secondary-substring
// shape is grounded on harmful_content.go's RefusalEvaluator.
package categorizer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/clarus-labs/repricer/internal/cache"
	"github.com/clarus-labs/repricer/internal/config"
	"github.com/clarus-labs/repricer/internal/model"
)

// defaultKeywords is the tier-1 dictionary: category -> whole-word
// keyword list.
var defaultKeywords = map[string][]string{
	"APPLIANCES":              {"refrigerator", "fridge", "oven", "stove", "dishwasher", "microwave", "washer", "dryer", "freezer"},
	"ELC - ELECTRONICS B":     {"tv", "television", "laptop", "computer", "monitor", "speaker", "phone", "tablet", "camera", "stereo"},
	"FURNITURE":               {"sofa", "couch", "chair", "table", "desk", "dresser", "bed", "cabinet", "bookshelf", "recliner"},
	"CLOTHING":                {"shirt", "jacket", "coat", "dress", "pants", "shoes", "boots", "sweater"},
	"HOUSEWARES":              {"cookware", "dishes", "plates", "cups", "utensils", "pots", "pans", "blender", "mixer", "toaster"},
	"TOOLS":                   {"drill", "saw", "hammer", "wrench", "toolbox", "ladder", "generator"},
	"TOYS & GAMES":            {"toy", "game", "puzzle", "lego", "doll", "console", "videogame"},
	"SPORTING GOODS":          {"bicycle", "bike", "treadmill", "weights", "golf", "tennis", "kayak", "skis"},
	"JEWELRY":                 {"ring", "necklace", "bracelet", "earrings", "watch", "diamond"},
	"LINENS":                  {"towel", "sheet", "blanket", "pillow", "comforter", "curtain"},
	"DECOR":                   {"lamp", "rug", "mirror", "painting", "vase", "clock", "frame"},
	"ANTIQUES & COLLECTIBLES": {"antique", "vintage", "collectible", "heirloom"},
}

// Categorizer assigns a depreciation category and computes the resulting
// depreciation amount.
type Categorizer struct {
	rates       map[string]float64
	keywords    map[string][]string
	prompt      ai.Prompt
	batchPrompt ai.Prompt
	cache       *cache.Cache[model.Categorization]
}

// BatchItem is one row's identifying fields submitted to a batch
// categorization call.
type BatchItem struct {
	Description string
	Brand       string
	Model       string
	Total       float64
}

// New builds a Categorizer from the configured category table (falling
// back to config.DefaultCategories if categories is empty), wiring a
// genkit prompt for tier 2.
func New(g *genkit.Genkit, modelName string, categories []config.Category, c *cache.Cache[model.Categorization]) *Categorizer {
	if len(categories) == 0 {
		categories = config.DefaultCategories()
	}
	rates := make(map[string]float64, len(categories))
	for _, cat := range categories {
		rates[cat.Name] = cat.DepRate
	}

	prompt := genkit.DefinePrompt(
		g, "categorize_item",
		ai.WithModelName(modelName),
		ai.WithPrompt(categoryPromptText),
		ai.WithConfig(map[string]any{"temperature": 0.0}),
		ai.WithInputType(categoryPromptInput{}),
		ai.WithOutputType(categoryPromptOutput{}),
	)

	batchPrompt := genkit.DefinePrompt(
		g, "categorize_items_batch",
		ai.WithModelName(modelName),
		ai.WithPrompt(batchPromptText),
		ai.WithConfig(map[string]any{"temperature": 0.0}),
		ai.WithInputType(batchPromptInput{}),
		ai.WithOutputType(batchPromptOutput{}),
	)

	return &Categorizer{rates: rates, keywords: defaultKeywords, prompt: prompt, batchPrompt: batchPrompt, cache: c}
}

// Categorize classifies a single row's description/brand/model and
// returns its Categorization, including the computed depreciation
// amount for the given replacement total.
func (c *Categorizer) Categorize(ctx context.Context, description, brand, modelName string, total float64) model.Categorization {
	key := cache.NormalizeKey(description, brand, modelName)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			v.DepAmount = round2(total * v.DepRate)
			return v
		}
	}

	result := c.classify(ctx, description, brand, modelName)
	if c.cache != nil {
		c.cache.Set(key, result)
	}
	result.DepAmount = round2(total * result.DepRate)
	return result
}

// CategorizeBatch classifies N items with a single LLM call (spec
// section 4.9's batch mode) instead of one per item. Items already
// resolved by cache or the tier-1 keyword scan skip the LLM call
// entirely; the remaining items are submitted together as one
// newline-per-item prompt, the response is split by newline and
// index-aligned back to its item, and any line that doesn't repair to a
// known category falls to tier 3. Results are returned in the same
// order as items.
func (c *Categorizer) CategorizeBatch(ctx context.Context, items []BatchItem) []model.Categorization {
	results := make([]model.Categorization, len(items))
	keys := make([]string, len(items))
	var pending []int

	for i, it := range items {
		keys[i] = cache.NormalizeKey(it.Description, it.Brand, it.Model)
		if c.cache != nil {
			if v, ok := c.cache.Get(keys[i]); ok {
				results[i] = v
				continue
			}
		}

		text := strings.Join([]string{it.Description, it.Brand, it.Model}, " ")
		if category, ok := c.tier1Keyword(text); ok {
			results[i] = model.Categorization{Category: category, DepRate: c.rates[category], Method: model.MethodKeyword}
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) > 0 {
		lines := c.tier2LLMBatch(ctx, items, pending)
		for j, idx := range pending {
			text := strings.Join([]string{items[idx].Description, items[idx].Brand, items[idx].Model}, " ")
			category, method := "", model.MethodDefault

			if j < len(lines) {
				name := strings.ToUpper(strings.TrimSpace(lines[j]))
				if _, ok := c.rates[name]; ok {
					category, method = name, model.MethodLLM
				} else if repaired, ok := fuzzyRepair(name, c.rates); ok {
					category, method = repaired, model.MethodFuzzy
				}
			}
			if category == "" {
				if cat, ok := c.tier3Heuristic(text); ok {
					category, method = cat, model.MethodDefault
				}
			}

			results[idx] = model.Categorization{Category: category, DepRate: c.rates[category], Method: method}
		}
	}

	for i := range items {
		if c.cache != nil {
			c.cache.Set(keys[i], results[i])
		}
		results[i].DepAmount = round2(items[i].Total * results[i].DepRate)
	}
	return results
}

// tier2LLMBatch submits every pending item in one numbered prompt and
// returns the response split into trimmed, non-empty lines, in the same
// order as pending. A failed call returns nil, letting the caller fall
// every pending item to tier 3.
func (c *Categorizer) tier2LLMBatch(ctx context.Context, items []BatchItem, pending []int) []string {
	if c.batchPrompt == nil {
		return nil
	}

	var b strings.Builder
	for n, idx := range pending {
		fmt.Fprintf(&b, "%d. %s", n+1, items[idx].Description)
		if items[idx].Brand != "" {
			fmt.Fprintf(&b, " (brand: %s)", items[idx].Brand)
		}
		b.WriteByte('\n')
	}

	resp, err := c.batchPrompt.Execute(ctx, ai.WithInput(batchPromptInput{
		CategoryList: strings.Join(orderedCategories(c.keywords), ", "),
		ItemList:     b.String(),
	}))
	if err != nil {
		return nil
	}

	raw := resp.Text()
	var out batchPromptOutput
	if err := resp.Output(&out); err == nil && out.Categories != "" {
		raw = out.Categories
	}

	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return cleaned
}

const batchPromptText = `Classify each numbered household item below into exactly
one of these categories:
{{.CategoryList}}

Respond with exactly one category name per line, in the same order as
the items, and nothing else.

{{.ItemList}}`

type batchPromptInput struct {
	CategoryList string `json:"CategoryList"`
	ItemList     string `json:"ItemList"`
}

type batchPromptOutput struct {
	Categories string `json:"categories"`
}

func (c *Categorizer) classify(ctx context.Context, description, brand, modelName string) model.Categorization {
	text := strings.Join([]string{description, brand, modelName}, " ")

	if category, ok := c.tier1Keyword(text); ok {
		return model.Categorization{Category: category, DepRate: c.rates[category], Method: model.MethodKeyword}
	}

	if category, method, ok := c.tier2LLM(ctx, description, brand); ok {
		return model.Categorization{Category: category, DepRate: c.rates[category], Method: method}
	}

	if category, ok := c.tier3Heuristic(text); ok {
		return model.Categorization{Category: category, DepRate: c.rates[category], Method: model.MethodDefault}
	}

	return model.Categorization{Category: "", DepRate: 0, Method: model.MethodDefault}
}

// tier1Keyword scans text against the keyword dictionary; the category
// with the most whole-word hits wins, ties broken by first occurrence in
// dictionary iteration order (stabilized via a fixed category list).
func (c *Categorizer) tier1Keyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	best := ""
	bestScore := 0
	for _, category := range orderedCategories(c.keywords) {
		score := 0
		for _, kw := range c.keywords[category] {
			if containsWholeWord(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = category
		}
	}
	if bestScore == 0 {
		return "", false
	}
	return best, true
}

func orderedCategories(m map[string][]string) []string {
	order := []string{
		"APPLIANCES", "ELC - ELECTRONICS B", "FURNITURE", "CLOTHING",
		"HOUSEWARES", "TOOLS", "TOYS & GAMES", "SPORTING GOODS",
		"JEWELRY", "LINENS", "DECOR", "ANTIQUES & COLLECTIBLES",
	}
	out := make([]string, 0, len(order))
	for _, cat := range order {
		if _, ok := m[cat]; ok {
			out = append(out, cat)
		}
	}
	return out
}

func containsWholeWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(haystack) {
			return false
		}
	}
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

const categoryPromptText = `Classify the household item below into exactly one of these
categories, responding with the category name string only:
{{.CategoryList}}

Description: {{.Description}}
Brand: {{.Brand}}`

type categoryPromptInput struct {
	Description  string `json:"Description"`
	Brand        string `json:"Brand,omitempty"`
	CategoryList string `json:"CategoryList"`
}

type categoryPromptOutput struct {
	Category string `json:"category"`
}

func (c *Categorizer) tier2LLM(ctx context.Context, description, brand string) (string, model.CategorizationMethod, bool) {
	list := strings.Join(orderedCategories(c.keywords), ", ")
	resp, err := c.prompt.Execute(ctx, ai.WithInput(categoryPromptInput{
		Description:  description,
		Brand:        brand,
		CategoryList: list,
	}))
	if err != nil {
		return "", "", false
	}

	var out categoryPromptOutput
	if err := resp.Output(&out); err != nil || out.Category == "" {
		return "", "", false
	}

	name := strings.ToUpper(strings.TrimSpace(out.Category))
	if _, ok := c.rates[name]; ok {
		return name, model.MethodLLM, true
	}

	if repaired, ok := fuzzyRepair(name, c.rates); ok {
		return repaired, model.MethodFuzzy, true
	}

	return "", "", false
}

// fuzzyRepair maps a near-miss LLM category name (e.g. "ELECTRONICS") to
// the closest known category (e.g. "ELC - ELECTRONICS B") by normalized
// substring containment, falling back to the nearest edit distance.
func fuzzyRepair(name string, rates map[string]float64) (string, bool) {
	normName := normalizeCategory(name)
	for category := range rates {
		if strings.Contains(normalizeCategory(category), normName) || strings.Contains(normName, normalizeCategory(category)) {
			return category, true
		}
	}

	best := ""
	bestDist := math.MaxInt32
	for category := range rates {
		d := levenshtein(normName, normalizeCategory(category))
		if d < bestDist {
			bestDist = d
			best = category
		}
	}
	if best != "" && bestDist <= len(normName)/2+2 {
		return best, true
	}
	return "", false
}

func normalizeCategory(s string) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	la, lb := len(a), len(b)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// tier3Heuristic maps a handful of strong substrings to a category at
// medium confidence, as a last resort before leaving the item
// uncategorized.
func (c *Categorizer) tier3Heuristic(text string) (string, bool) {
	lower := strings.ToLower(text)
	rules := []struct {
		substr   string
		category string
	}{
		{"electronic", "ELC - ELECTRONICS B"},
		{"appliance", "APPLIANCES"},
		{"furniture", "FURNITURE"},
		{"clothes", "CLOTHING"},
		{"apparel", "CLOTHING"},
		{"tool", "TOOLS"},
		{"antique", "ANTIQUES & COLLECTIBLES"},
		{"decor", "DECOR"},
		{"toy", "TOYS & GAMES"},
	}
	for _, rule := range rules {
		if strings.Contains(lower, rule.substr) {
			if _, ok := c.rates[rule.category]; ok {
				return rule.category, true
			}
		}
	}
	return "", false
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
