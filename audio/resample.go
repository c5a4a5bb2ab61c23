package audio

import "math"

// zero crossings of the sinc kernel on each side of the output position
const resampleZeroCrossings = 16

// Resample converts x from one sample rate to another with a Blackman-windowed
// sinc interpolator. When downsampling the kernel cutoff drops to the target
// Nyquist so the output is band-limited. Output length is ceil(len(x)*to/from).
func Resample(x []float64, from, to int) []float64 {
	if from == to || len(x) == 0 {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}
	return resampleRatio(x, float64(to)/float64(from))
}

// resampleRatio is Resample for an arbitrary output/input rate ratio.
func resampleRatio(x []float64, ratio float64) []float64 {
	n := int(math.Ceil(float64(len(x)) * ratio))
	cutoff := math.Min(1, ratio)
	half := float64(resampleZeroCrossings) / cutoff

	out := make([]float64, n)
	last := len(x) - 1
	for i := range out {
		t := float64(i) / ratio
		lo := int(math.Ceil(t - half))
		hi := int(math.Floor(t + half))
		if lo < 0 {
			lo = 0
		}
		if hi > last {
			hi = last
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			d := t - float64(j)
			sum += x[j] * cutoff * sinc(cutoff*d) * blackman(d/half)
		}
		out[i] = sum
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackman evaluates a Blackman window stretched over u in [-1, 1].
func blackman(u float64) float64 {
	if u <= -1 || u >= 1 {
		return 0
	}
	return 0.42 + 0.5*math.Cos(math.Pi*u) + 0.08*math.Cos(2*math.Pi*u)
}
