package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRateSourcePivotsThroughUSD(t *testing.T) {
	src := NewStaticRateSource(map[string]float64{
		"USD": 1,
		"EUR": 0.92,
		"GBP": 0.79,
	})

	rate, err := src.Rate(context.Background(), "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, 0.92, rate)

	rate, err = src.Rate(context.Background(), "EUR", "GBP")
	require.NoError(t, err)
	assert.InDelta(t, 0.79/0.92, rate, 1e-9)
}

func TestStaticRateSourceUnknownCurrency(t *testing.T) {
	src := NewStaticRateSource(nil)

	_, err := src.Rate(context.Background(), "USD", "XYZ")
	require.ErrorIs(t, err, ErrRateUnavailable)
}

func TestStaticRateSourceBuiltInTable(t *testing.T) {
	src := NewStaticRateSource(nil)

	rate, err := src.Rate(context.Background(), "usd", "cad")
	require.NoError(t, err)
	assert.Equal(t, 1.36, rate)
}
