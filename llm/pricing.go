// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"math"
)

// ModelPricing contains the USD price per 1K tokens for one model.
type ModelPricing struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// pricing holds the static per-provider, per-model price tables. Prices are
// per 1K tokens in USD. The "*" entry is the documented fallback for models
// missing from the table; cost estimation never fails on an unknown model.
var pricing = map[string]map[string]ModelPricing{
	"openai": {
		"gpt-4o":        {InputPer1K: 0.0025, OutputPer1K: 0.01},
		"gpt-4o-mini":   {InputPer1K: 0.00015, OutputPer1K: 0.0006},
		"gpt-4-turbo":   {InputPer1K: 0.01, OutputPer1K: 0.03},
		"gpt-4":         {InputPer1K: 0.03, OutputPer1K: 0.06},
		"gpt-3.5-turbo": {InputPer1K: 0.0005, OutputPer1K: 0.0015},
		"*":             {InputPer1K: 0.01, OutputPer1K: 0.03},
	},
	"anthropic": {
		"claude-3-5-sonnet-20241022": {InputPer1K: 0.003, OutputPer1K: 0.015},
		"claude-3-5-haiku-20241022":  {InputPer1K: 0.0008, OutputPer1K: 0.004},
		"claude-3-opus-20240229":     {InputPer1K: 0.015, OutputPer1K: 0.075},
		"claude-3-sonnet-20240229":   {InputPer1K: 0.003, OutputPer1K: 0.015},
		"claude-3-haiku-20240307":    {InputPer1K: 0.00025, OutputPer1K: 0.00125},
		"*":                          {InputPer1K: 0.003, OutputPer1K: 0.015},
	},
	"google": {
		"gemini-1.5-pro":   {InputPer1K: 0.00125, OutputPer1K: 0.005},
		"gemini-1.5-flash": {InputPer1K: 0.000075, OutputPer1K: 0.0003},
		"gemini-pro":       {InputPer1K: 0.0005, OutputPer1K: 0.0015},
		"*":                {InputPer1K: 0.001, OutputPer1K: 0.004},
	},
}

// modelPricing returns the price entry for a model, falling back to the
// provider's "*" entry. The second return is false only when the provider
// itself is unknown.
func modelPricing(provider, model string) (ModelPricing, bool) {
	table, ok := pricing[provider]
	if !ok {
		return ModelPricing{}, false
	}
	entry, ok := table[model]
	if !ok {
		entry = table["*"]
	}
	return entry, true
}

// exactCost computes the USD cost for a known input/output token split,
// rounded to 6 decimal places.
func exactCost(provider, model string, inputTokens, outputTokens int) float64 {
	entry, ok := modelPricing(provider, model)
	if !ok {
		return 0
	}
	cost := float64(inputTokens)/1000*entry.InputPer1K + float64(outputTokens)/1000*entry.OutputPer1K
	return roundUSD(cost)
}

// estimateCost computes an advisory USD cost for a total token count,
// assuming a 75/25 input/output split when the real split is unknown.
func estimateCost(provider, model string, tokens int) float64 {
	inputTokens := int(float64(tokens) * 0.75)
	outputTokens := int(float64(tokens) * 0.25)
	return exactCost(provider, model, inputTokens, outputTokens)
}

// roundUSD rounds to the fixed 6-decimal USD precision used everywhere.
func roundUSD(cost float64) float64 {
	return math.Round(cost*1e6) / 1e6
}
