package catalog

import (
	"context"
	"fmt"
	"strings"
)

// ErrRateUnavailable means no rate is known for the currency pair.
var ErrRateUnavailable = fmt.Errorf("catalog: rate unavailable")

// StaticRateSource serves conversion rates from a fixed USD-pivoted
// table. It stands in for an external FX feed in environments that do
// not have one; deployments with a live feed point the cache elsewhere.
type StaticRateSource struct {
	perUSD map[string]float64
}

// NewStaticRateSource builds a source from units-per-USD rates. A nil
// table falls back to a small built-in set.
func NewStaticRateSource(perUSD map[string]float64) *StaticRateSource {
	if perUSD == nil {
		perUSD = map[string]float64{
			"USD": 1,
			"EUR": 0.92,
			"GBP": 0.79,
			"CAD": 1.36,
			"AUD": 1.52,
		}
	}
	normalized := make(map[string]float64, len(perUSD))
	for code, rate := range perUSD {
		if rate > 0 {
			normalized[strings.ToUpper(strings.TrimSpace(code))] = rate
		}
	}
	return &StaticRateSource{perUSD: normalized}
}

// Rate converts via the USD pivot: from -> USD -> to.
func (s *StaticRateSource) Rate(_ context.Context, from, to string) (float64, error) {
	fromRate, ok := s.perUSD[strings.ToUpper(from)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRateUnavailable, from)
	}
	toRate, ok := s.perUSD[strings.ToUpper(to)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRateUnavailable, to)
	}
	return toRate / fromRate, nil
}

var _ RateSource = (*StaticRateSource)(nil)
