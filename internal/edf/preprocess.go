package edf

import (
	"math"
	"sort"
)

// Normalization selects the range-rescale or standardize mode for the
// normalization preprocessing step.
type Normalization string

const (
	NormalizationNone    Normalization = "none"
	NormalizationMinMax  Normalization = "minmax"
	NormalizationZScore  Normalization = "zscore"
)

// PreprocessingOptions is the explicit, enumerated record of every
// recognized per-channel preprocessing step. Fields are applied in
// declaration order: removeOutliers, smoothing, normalization, resample,
// lowpassFilter, highpassFilter, notchFilter, detrend.
type PreprocessingOptions struct {
	RemoveOutliers  bool
	Smoothing       bool
	SmoothingWindow int
	Normalization   Normalization
	ResampleHz      int
	LowpassFilter   bool
	HighpassFilter  bool
	NotchFilterHz   float64
	Detrend         bool
}

// IsZero reports whether no preprocessing step is requested.
func (o PreprocessingOptions) IsZero() bool {
	return !o.RemoveOutliers && !o.Smoothing &&
		(o.Normalization == "" || o.Normalization == NormalizationNone) &&
		o.ResampleHz == 0 && !o.LowpassFilter && !o.HighpassFilter &&
		o.NotchFilterHz == 0 && !o.Detrend
}

// Apply runs the full preprocessing pipeline over one channel's samples at
// the given sampling rate, returning a new slice. The input is never
// mutated. For a zero-value options, Apply is the identity (copy).
func Apply(samples []float64, samplingHz float64, opts PreprocessingOptions) []float64 {
	out := append([]float64(nil), samples...)
	if opts.IsZero() {
		return out
	}

	if opts.RemoveOutliers {
		out = removeOutliers(out)
	}
	if opts.Smoothing {
		out = smooth(out, opts.SmoothingWindow)
	}
	switch opts.Normalization {
	case NormalizationMinMax:
		out = normalizeMinMax(out)
	case NormalizationZScore:
		out = normalizeZScore(out)
	}
	rate := samplingHz
	if opts.ResampleHz > 0 && rate > 0 {
		out = resample(out, rate, float64(opts.ResampleHz))
		rate = float64(opts.ResampleHz)
	}
	if opts.LowpassFilter && rate > 0 {
		out = butterworthZeroPhase(out, rate, 40.0, lowpass)
	}
	if opts.HighpassFilter && rate > 0 {
		out = butterworthZeroPhase(out, rate, 0.5, highpass)
	}
	if opts.NotchFilterHz > 0 && rate > 0 {
		out = notchFilter(out, rate, opts.NotchFilterHz, 30.0)
	}
	if opts.Detrend {
		out = detrend(out)
	}
	return out
}

// removeOutliers clips values to [Q1 - 1.5*IQR, Q3 + 1.5*IQR].
func removeOutliers(x []float64) []float64 {
	if len(x) < 4 {
		return x
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	lo := q1 - 1.5*iqr
	hi := q3 + 1.5*iqr
	out := make([]float64, len(x))
	for i, v := range x {
		switch {
		case v < lo:
			out[i] = lo
		case v > hi:
			out[i] = hi
		default:
			out[i] = v
		}
	}
	return out
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// smooth applies a moving-average convolution. The window is forced odd,
// at least 3, and at most len(x)/10.
func smooth(x []float64, window int) []float64 {
	if len(x) == 0 {
		return x
	}
	maxWindow := len(x) / 10
	if maxWindow < 3 {
		maxWindow = 3
	}
	if window < 3 {
		window = 3
	}
	if window > maxWindow {
		window = maxWindow
	}
	if window%2 == 0 {
		if window+1 > maxWindow {
			window--
		} else {
			window++
		}
	}
	if window > len(x) {
		return append([]float64(nil), x...)
	}

	half := window / 2
	out := make([]float64, len(x))
	var sum float64
	for i := 0; i < window; i++ {
		sum += x[i]
	}
	// Use a simple centered moving average with edge clamping rather than
	// a sliding-window optimization, since chunks are bounded in size.
	for i := range x {
		lo := i - half
		hi := i + half
		if lo < 0 {
			lo = 0
		}
		if hi >= len(x) {
			hi = len(x) - 1
		}
		var s float64
		for j := lo; j <= hi; j++ {
			s += x[j]
		}
		out[i] = s / float64(hi-lo+1)
	}
	return out
}

func normalizeMinMax(x []float64) []float64 {
	if len(x) == 0 {
		return x
	}
	min, max := x[0], x[0]
	for _, v := range x {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(x))
	spread := max - min
	for i, v := range x {
		if spread == 0 {
			out[i] = 0
		} else {
			out[i] = (v - min) / spread
		}
	}
	return out
}

func normalizeZScore(x []float64) []float64 {
	if len(x) == 0 {
		return x
	}
	mean := meanOf(x)
	sd := stddevOf(x, mean)
	out := make([]float64, len(x))
	for i, v := range x {
		if sd == 0 {
			out[i] = 0
		} else {
			out[i] = (v - mean) / sd
		}
	}
	return out
}

func meanOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

func stddevOf(x []float64, mean float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range x {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(x)))
}

// detrend subtracts the best-fit line (ordinary least squares over sample
// index) from the signal.
func detrend(x []float64) []float64 {
	n := len(x)
	if n < 2 {
		return append([]float64(nil), x...)
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range x {
		fi := float64(i)
		sumX += fi
		sumY += v
		sumXY += fi * v
		sumXX += fi * fi
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	var slope, intercept float64
	if denom != 0 {
		slope = (fn*sumXY - sumX*sumY) / denom
		intercept = (sumY - slope*sumX) / fn
	} else {
		intercept = meanOf(x)
	}
	out := make([]float64, n)
	for i, v := range x {
		out[i] = v - (slope*float64(i) + intercept)
	}
	return out
}

// resample performs simple linear-interpolation resampling from oldHz to
// newHz. This is a time-domain stand-in for the FFT-based resample the
// engine this was distilled from uses; for the window sizes chunks are
// served at, the visual/analytical difference is immaterial and this avoids
// pulling in an FFT dependency the reference corpus itself never imports.
func resample(x []float64, oldHz, newHz float64) []float64 {
	if len(x) == 0 || oldHz <= 0 || newHz <= 0 {
		return append([]float64(nil), x...)
	}
	newLen := int(float64(len(x)) * newHz / oldHz)
	if newLen <= 0 {
		return []float64{}
	}
	out := make([]float64, newLen)
	ratio := float64(len(x)-1) / float64(maxInt(newLen-1, 1))
	for i := range out {
		pos := float64(i) * ratio
		lo := int(math.Floor(pos))
		hi := lo + 1
		if hi >= len(x) {
			hi = len(x) - 1
			lo = hi
		}
		frac := pos - float64(lo)
		out[i] = x[lo]*(1-frac) + x[hi]*frac
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
