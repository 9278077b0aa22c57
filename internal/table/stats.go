package table

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, or NaN for no values.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	// Welford keeps precision on long columns.
	var mean float64
	for i, v := range vals {
		mean += (v - mean) / float64(i+1)
	}
	return mean
}

// Std returns the sample standard deviation (n-1 denominator), or NaN for
// fewer than two values.
func Std(vals []float64) float64 {
	if len(vals) < 2 {
		return math.NaN()
	}
	var n, mean, m2 float64
	for _, v := range vals {
		n++
		d := v - mean
		mean += d / n
		m2 += d * (v - mean)
	}
	return math.Sqrt(m2 / (n - 1))
}

// Sorted returns a sorted copy of vals.
func Sorted(vals []float64) []float64 {
	cp := append([]float64(nil), vals...)
	sort.Float64s(cp)
	return cp
}

// Quantile returns the q-th quantile of an ascending slice using linear
// interpolation between closest ranks.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// Pearson returns the correlation of two row-aligned series, skipping rows
// where either side is NaN. NaN when fewer than two complete pairs exist or
// either side is constant.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	var cnt, mx, my, sxx, syy, sxy float64
	for i := 0; i < n; i++ {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		cnt++
		dx := x[i] - mx
		mx += dx / cnt
		dy := y[i] - my
		my += dy / cnt
		sxx += dx * (x[i] - mx)
		syy += dy * (y[i] - my)
		sxy += dx * (y[i] - my)
	}
	if cnt < 2 || sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}

// Nullable returns nil for NaN and infinities so the value encodes as JSON
// null.
func Nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// NullableSlice applies Nullable to every element.
func NullableSlice(vals []float64) []*float64 {
	if vals == nil {
		return nil
	}
	out := make([]*float64, len(vals))
	for i, v := range vals {
		out[i] = Nullable(v)
	}
	return out
}
