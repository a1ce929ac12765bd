// Package enhance implements the DescriptionEnhancer (spec section 4.3):
// an LLM call that turns a short claim-item description into a
// retail-searchable query, always falling back to the original
// description on any failure.
//
// Grounded on evalaf/genkit/evaluators.go's genkit.DefinePrompt +
// ai.WithOutputType + response.Output(&struct) structured-output
// pattern, which gives schema-validated parsing natively instead of a
// hand-rolled json.Unmarshal into map[string]any.
package enhance

import (
	"context"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/clarus-labs/repricer/internal/cache"
)

const systemPrompt = `You rewrite short insurance-claim inventory descriptions into a
concise, retail-searchable product query. Respond with a JSON object
containing only the field "enhanced_description", holding just the
rewritten text and nothing else — no commentary, no markdown.

Input:
Description: {{.Description}}
Brand: {{.Brand}}
Model: {{.Model}}`

// promptInput is the structured input to the enhancement prompt.
type promptInput struct {
	Description string `json:"Description"`
	Brand       string `json:"Brand,omitempty"`
	Model       string `json:"Model,omitempty"`
}

// promptOutput is the structured, schema-validated response.
type promptOutput struct {
	EnhancedDescription string `json:"enhanced_description"`
}

// Enhancer enhances short descriptions via an injected genkit prompt.
type Enhancer struct {
	prompt ai.Prompt
	cache  *cache.Cache[string]
}

// New defines the enhancement prompt against g for modelName, and wraps
// it with the shared description->enhanced cache.
func New(g *genkit.Genkit, modelName string, c *cache.Cache[string]) *Enhancer {
	prompt := genkit.DefinePrompt(
		g, "enhance_description",
		ai.WithModelName(modelName),
		ai.WithPrompt(systemPrompt),
		ai.WithConfig(map[string]any{"temperature": 0.2}),
		ai.WithInputType(promptInput{}),
		ai.WithOutputType(promptOutput{}),
	)
	return &Enhancer{prompt: prompt, cache: c}
}

// Enhance turns description (with optional brand/model context) into a
// retail-searchable query. On any LLM error, empty output, or parse
// failure it returns the original description unchanged — it never
// returns an error, matching the spec's "falls through to original on
// failure" contract.
func (e *Enhancer) Enhance(ctx context.Context, description, brand, model string) string {
	key := cache.NormalizeKey(description, brand, model)
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return v
		}
	}

	result := e.enhanceUncached(ctx, description, brand, model)

	if e.cache != nil {
		e.cache.Set(key, result)
	}
	return result
}

func (e *Enhancer) enhanceUncached(ctx context.Context, description, brand, model string) string {
	resp, err := e.prompt.Execute(ctx, ai.WithInput(promptInput{
		Description: description,
		Brand:       brand,
		Model:       model,
	}))
	if err != nil {
		return description
	}

	var out promptOutput
	if err := resp.Output(&out); err != nil {
		return description
	}

	enhanced := dedupeBrandTokens(strings.TrimSpace(out.EnhancedDescription), brand)
	if enhanced == "" {
		return description
	}
	return enhanced
}

// dedupeBrandTokens removes a second, adjacent repetition of brand from
// text, guarding against the LLM echoing "Bissell Bissell vacuum" style
// duplication when brand is already prepended upstream.
func dedupeBrandTokens(text, brand string) string {
	if brand == "" || text == "" {
		return text
	}
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	lastLower := ""
	brandLower := strings.ToLower(brand)
	for _, f := range fields {
		fl := strings.ToLower(f)
		if fl == brandLower && lastLower == brandLower {
			continue
		}
		out = append(out, f)
		lastLower = fl
	}
	return strings.Join(out, " ")
}
