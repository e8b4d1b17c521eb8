// Package costtracker estimates the dollar cost of a job's model usage
// from a per-million-token price table. Estimates are informational; the
// usage log remains the accounting source of truth.
package costtracker

import (
	"rxreader/internal/models"
)

// Pricing is the cost per million tokens for one model class.
type Pricing struct {
	InputUSD  float64
	OutputUSD float64
	// CachedUSD applies to prompt tokens served from the provider cache.
	CachedUSD float64
}

// Estimator prices usage entries. Unknown stages fall back to Default.
type Estimator struct {
	Default Pricing
	// ByStage overrides pricing per pipeline stage, since stages may run
	// different model classes.
	ByStage map[string]Pricing
}

// DefaultEstimator approximates current vision-model list prices.
func DefaultEstimator() *Estimator {
	return &Estimator{
		Default: Pricing{InputUSD: 2.50, OutputUSD: 10.00, CachedUSD: 1.25},
	}
}

// Estimate returns the total estimated cost in USD for the usage log.
func (e *Estimator) Estimate(usage []models.ModelUsage) float64 {
	var total float64
	for _, u := range usage {
		p := e.Default
		if override, ok := e.ByStage[u.Stage]; ok {
			p = override
		}
		fresh := u.InputTokens - u.CachedTokens
		if fresh < 0 {
			fresh = 0
		}
		total += float64(fresh) * p.InputUSD / 1e6
		total += float64(u.CachedTokens) * p.CachedUSD / 1e6
		total += float64(u.OutputTokens) * p.OutputUSD / 1e6
	}
	return total
}
