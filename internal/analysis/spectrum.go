package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// PowerSpectrum returns the one-sided magnitude spectrum of data with its
// mean removed. Bin k is k*rate/len(data) Hz. Any length is accepted.
func PowerSpectrum(data []float64) []float64 {
	n := len(data)
	if n < 2 {
		return nil
	}

	var mean float64
	for _, v := range data {
		mean += v
	}
	mean /= float64(n)

	centered := make([]float64, n)
	for i, v := range data {
		centered[i] = v - mean
	}

	spectrum := fft.FFTReal(centered)
	ps := make([]float64, n/2+1)
	for i := range ps {
		ps[i] = cmplx.Abs(spectrum[i])
	}
	return ps
}

// DominantFrequency returns the strongest non-DC frequency in data sampled
// at rate Hz, with that bin's share of the total magnitude. A flat signal
// returns zeros.
func DominantFrequency(data []float64, rate float64) (freq, share float64) {
	ps := PowerSpectrum(data)
	if len(ps) < 2 {
		return 0, 0
	}

	var total float64
	best := 1
	for k := 1; k < len(ps); k++ {
		total += ps[k]
		if ps[k] > ps[best] {
			best = k
		}
	}
	if total < 1e-9 {
		return 0, 0
	}
	return float64(best) * rate / float64(len(data)), ps[best] / total
}
