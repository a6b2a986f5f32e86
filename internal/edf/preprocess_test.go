package edf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyZeroOptionsIsIdentity(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	out := Apply(x, 100, PreprocessingOptions{})
	require.Equal(t, x, out)

	// Input must not be aliased.
	out[0] = 999
	require.Equal(t, 1.0, x[0])
}

func TestApplyZScoreNormalization(t *testing.T) {
	x := make([]float64, 0, 200)
	for i := 0; i < 200; i++ {
		x = append(x, float64(i)*0.37-12)
	}
	out := Apply(x, 100, PreprocessingOptions{Normalization: NormalizationZScore})

	mean := meanOf(out)
	sd := stddevOf(out, mean)
	require.InDelta(t, 0, mean, 1e-9)
	require.InDelta(t, 1, sd, 1e-9)
}

func TestRemoveOutliersClips(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 1000}
	out := removeOutliers(x)
	require.Less(t, out[len(out)-1], 1000.0)
	require.Equal(t, 1.0, out[0])
}

func TestSmoothingWindowBounds(t *testing.T) {
	x := make([]float64, 50)
	for i := range x {
		x[i] = float64(i % 2)
	}
	out := smooth(x, 4) // even window forced odd
	require.Len(t, out, len(x))
}

func TestDetrendRemovesLinearTrend(t *testing.T) {
	x := make([]float64, 100)
	for i := range x {
		x[i] = 3.0 + 0.5*float64(i)
	}
	out := detrend(x)
	for _, v := range out {
		require.InDelta(t, 0, v, 1e-6)
	}
}

func TestButterworthLowpassAttenuatesHighFrequency(t *testing.T) {
	const sampleHz = 500.0
	n := 2000
	x := make([]float64, n)
	for i := range x {
		t := float64(i) / sampleHz
		x[i] = math.Sin(2*math.Pi*5*t) + math.Sin(2*math.Pi*150*t)
	}
	out := butterworthZeroPhase(x, sampleHz, 40, lowpass)

	// The filtered signal's high-frequency energy should be much smaller
	// than the original's.
	var origEnergy, outEnergy float64
	for i := range x {
		origEnergy += x[i] * x[i]
		outEnergy += out[i] * out[i]
	}
	require.Less(t, outEnergy, origEnergy)
}

func TestApplyOrderIsFixed(t *testing.T) {
	// Smoothing before normalization should produce a different result than
	// normalization before smoothing; verify the pipeline follows the
	// documented fixed order by checking a known-order-sensitive case
	// doesn't panic and returns the expected length.
	x := []float64{5, 1, 5, 1, 5, 1, 5, 1, 5, 1}
	out := Apply(x, 100, PreprocessingOptions{
		Smoothing:       true,
		SmoothingWindow: 3,
		Normalization:   NormalizationMinMax,
	})
	require.Len(t, out, len(x))
	for _, v := range out {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}
}
