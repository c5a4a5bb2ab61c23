package audio

import (
	"fmt"
	"math"
	"math/cmplx"
)

// FilterConfig describes a Butterworth low-pass filter.
type FilterConfig struct {
	Order  int
	Cutoff float64 // Hz
}

// DefaultFilterConfig returns a fifth-order filter at 2 kHz.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{Order: 5, Cutoff: 2000}
}

// Butter designs a digital Butterworth low-pass filter and returns the
// transfer function coefficients b (numerator) and a (denominator, a[0] == 1).
//
// The analog prototype poles are scaled to the pre-warped cutoff and mapped
// through the bilinear transform; all zeros land on z = -1.
func Butter(order int, cutoff, sampleRate float64) (b, a []float64, err error) {
	nyquist := sampleRate / 2
	if order < 1 {
		return nil, nil, fmt.Errorf("filter order must be positive, got %d", order)
	}
	if cutoff <= 0 || cutoff >= nyquist {
		return nil, nil, fmt.Errorf("cutoff %.1f Hz outside (0, %.1f)", cutoff, nyquist)
	}

	// normalised design runs at fs = 2 so the Nyquist frequency is 1
	const fs = 2.0
	wn := cutoff / nyquist
	warped := 2 * fs * math.Tan(math.Pi*wn/fs)

	fs2 := complex(2*fs, 0)
	poles := make([]complex128, order)
	den := complex(1, 0)
	for i := range poles {
		m := float64(-order + 1 + 2*i)
		p := -cmplx.Exp(complex(0, math.Pi*m/float64(2*order))) * complex(warped, 0)
		den *= fs2 - p
		poles[i] = (fs2 + p) / (fs2 - p)
	}
	gain := math.Pow(warped, float64(order)) * real(1/den)

	b = make([]float64, order+1)
	for i := range b {
		b[i] = gain * binomial(order, i)
	}
	ac := poly(poles)
	a = make([]float64, len(ac))
	for i, c := range ac {
		a[i] = real(c)
	}
	return b, a, nil
}

// LFilter applies the IIR filter (b, a) to x using the transposed direct
// form II structure. Coefficients are normalised by a[0].
func LFilter(b, a, x []float64) []float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	bn := make([]float64, n)
	an := make([]float64, n)
	copy(bn, b)
	copy(an, a)
	if a0 := an[0]; a0 != 1 {
		for i := range bn {
			bn[i] /= a0
			an[i] /= a0
		}
	}

	z := make([]float64, n)
	y := make([]float64, len(x))
	for i, xi := range x {
		yi := bn[0]*xi + z[0]
		for j := 1; j < n; j++ {
			z[j-1] = bn[j]*xi + z[j] - an[j]*yi
		}
		y[i] = yi
	}
	return y
}

// LowPass designs the filter described by cfg and applies it to x.
func LowPass(x []float64, sampleRate float64, cfg FilterConfig) ([]float64, error) {
	b, a, err := Butter(cfg.Order, cfg.Cutoff, sampleRate)
	if err != nil {
		return nil, err
	}
	return LFilter(b, a, x), nil
}

// FrequencyResponse returns |H(e^jw)| of (b, a) at freq Hz.
func FrequencyResponse(b, a []float64, freq, sampleRate float64) float64 {
	w := 2 * math.Pi * freq / sampleRate
	eval := func(c []float64) complex128 {
		var sum complex128
		for k, v := range c {
			sum += complex(v, 0) * cmplx.Exp(complex(0, -w*float64(k)))
		}
		return sum
	}
	return cmplx.Abs(eval(b) / eval(a))
}

// poly expands the monic polynomial with the given roots, highest power first.
func poly(roots []complex128) []complex128 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, v := range c {
			next[i] += v
			next[i+1] -= v * r
		}
		c = next
	}
	return c
}

func binomial(n, k int) float64 {
	out := 1.0
	for i := 1; i <= k; i++ {
		out = out * float64(n-k+i) / float64(i)
	}
	return out
}
