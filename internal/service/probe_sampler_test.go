package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

func TestProbeSampler_Sample(t *testing.T) {
	p := NewProbeSampler([]float64{250, -5, 10, 5000}, 0, 1, nil, testLogger())
	assert.Equal(t, []float64{10, 250, 5000}, p.Sizes())

	samples := p.Sample(testBook(t).Snapshot())
	require.Len(t, samples, 2, "5000 USD exceeds the book")
	assert.Equal(t, 10.0, samples[0].OrderSizeUSD)
	assert.Equal(t, 250.0, samples[1].OrderSizeUSD)
	assert.InDelta(t, 1/99.5*10_000, samples[0].SpreadBps, 1e-9)
	assert.Equal(t, 100.0, samples[0].DepthBestAskUSD)
	assert.Greater(t, samples[1].TargetSlippagePct, samples[0].TargetSlippagePct)
}

func TestProbeSampler_RateLimited(t *testing.T) {
	p := NewProbeSampler([]float64{10}, 0.001, 1, nil, testLogger())
	snap := testBook(t).Snapshot()
	assert.Len(t, p.Sample(snap), 1)
	assert.Nil(t, p.Sample(snap))
}

func TestProbeSampler_EmptyBook(t *testing.T) {
	p := NewProbeSampler([]float64{10}, 0, 1, nil, testLogger())
	assert.Empty(t, p.Sample(domain.BookSnapshot{}))
}
