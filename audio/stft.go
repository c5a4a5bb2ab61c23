package audio

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Default STFT geometry.
const (
	DefaultNFFT = 2048
	DefaultHop  = 512
)

// Spectrogram is a short-time Fourier transform laid out frame-major: Frames[t]
// holds NFFT/2+1 frequency bins for frame t.
type Spectrogram struct {
	Frames [][]complex128
	NFFT   int
	Hop    int
}

// Bins returns the number of frequency bins per frame.
func (s Spectrogram) Bins() int { return s.NFFT/2 + 1 }

// Magnitude returns |S| with the same layout as Frames.
func (s Spectrogram) Magnitude() [][]float64 {
	out := make([][]float64, len(s.Frames))
	for t, frame := range s.Frames {
		row := make([]float64, len(frame))
		for k, c := range frame {
			row[k] = cmplx.Abs(c)
		}
		out[t] = row
	}
	return out
}

// Phase returns arg(S) with the same layout as Frames.
func (s Spectrogram) Phase() [][]float64 {
	out := make([][]float64, len(s.Frames))
	for t, frame := range s.Frames {
		row := make([]float64, len(frame))
		for k, c := range frame {
			row[k] = cmplx.Phase(c)
		}
		out[t] = row
	}
	return out
}

// Hann returns a periodic Hann window of length n.
func Hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// STFT computes a centred, Hann-windowed short-time Fourier transform. The
// signal is zero padded by nfft/2 on both sides, so frame t is centred on
// sample t*hop and there are len(x)/hop+1 frames.
func STFT(x []float64, nfft, hop int) Spectrogram {
	pad := nfft / 2
	padded := make([]float64, len(x)+2*pad)
	copy(padded[pad:], x)

	frames := 1 + (len(padded)-nfft)/hop
	win := Hann(nfft)
	fft := fourier.NewFFT(nfft)
	buf := make([]float64, nfft)

	out := Spectrogram{Frames: make([][]complex128, frames), NFFT: nfft, Hop: hop}
	for t := 0; t < frames; t++ {
		start := t * hop
		for i := range buf {
			buf[i] = padded[start+i] * win[i]
		}
		out.Frames[t] = fft.Coefficients(nil, buf)
	}
	return out
}

// ISTFT inverts a spectrogram produced by STFT with weighted overlap-add and
// returns exactly length samples.
func ISTFT(s Spectrogram, length int) []float64 {
	nfft, hop := s.NFFT, s.Hop
	pad := nfft / 2
	total := nfft + hop*(len(s.Frames)-1)
	if total < pad+length {
		total = pad + length
	}

	win := Hann(nfft)
	fft := fourier.NewFFT(nfft)
	y := make([]float64, total)
	env := make([]float64, total)
	seq := make([]float64, nfft)
	scale := 1 / float64(nfft)

	for t, frame := range s.Frames {
		fft.Sequence(seq, frame)
		start := t * hop
		for i, v := range seq {
			y[start+i] += v * scale * win[i]
			env[start+i] += win[i] * win[i]
		}
	}

	out := make([]float64, length)
	for i := range out {
		j := pad + i
		if env[j] > 1e-11 {
			out[i] = y[j] / env[j]
		}
	}
	return out
}
