package features

import (
	"math"
)

// Constant-Q analysis starts at C1 and covers seven octaves in semitone steps,
// so bin k belongs to pitch class k mod 12.
const (
	cqtFMin          = 32.70319566257483
	cqtBinsPerOctave = 12
	cqtOctaves       = 7
	chromaBins       = 12
)

// cqtKernel is one constant-Q filter: a Hann-windowed complex exponential
// stored as separate real and imaginary taps, already divided by its length.
type cqtKernel struct {
	re, im []float64
}

func newCQTKernels(sampleRate int) []cqtKernel {
	q := 1 / (math.Pow(2, 1/float64(cqtBinsPerOctave)) - 1)
	nBins := cqtBinsPerOctave * cqtOctaves
	kernels := make([]cqtKernel, 0, nBins)
	for k := 0; k < nBins; k++ {
		freq := cqtFMin * math.Pow(2, float64(k)/cqtBinsPerOctave)
		if freq >= float64(sampleRate)/2 {
			break
		}
		n := int(math.Ceil(q * float64(sampleRate) / freq))
		re := make([]float64, n)
		im := make([]float64, n)
		for i := 0; i < n; i++ {
			w := (0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))) / float64(n)
			phase := -2 * math.Pi * q * float64(i) / float64(n)
			re[i] = w * math.Cos(phase)
			im[i] = w * math.Sin(phase)
		}
		kernels = append(kernels, cqtKernel{re: re, im: im})
	}
	return kernels
}

// chroma folds the constant-Q magnitudes of x into 12 pitch classes per frame
// and scales each frame so its strongest class is 1. Frames line up with the
// centred STFT frames used for MFCC. Output is class-major: out[c][t].
func (e *Extractor) chroma(x []float64) [][]float64 {
	hop := e.cfg.Hop
	frames := len(x)/hop + 1
	out := make([][]float64, chromaBins)
	for c := range out {
		out[c] = make([]float64, frames)
	}

	for t := 0; t < frames; t++ {
		centre := t * hop
		for k, kern := range e.cqt {
			n := len(kern.re)
			start := centre - n/2
			lo, hi := 0, n
			if start < 0 {
				lo = -start
			}
			if start+hi > len(x) {
				hi = len(x) - start
			}
			var re, im float64
			for i := lo; i < hi; i++ {
				v := x[start+i]
				re += v * kern.re[i]
				im += v * kern.im[i]
			}
			out[k%chromaBins][t] += math.Hypot(re, im)
		}

		var peak float64
		for c := range out {
			peak = math.Max(peak, out[c][t])
		}
		if peak > 0 {
			for c := range out {
				out[c][t] /= peak
			}
		}
	}
	return out
}
