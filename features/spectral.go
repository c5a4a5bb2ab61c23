package features

import (
	"math"

	"github.com/ekjot25/Audio-Analysis/audio"
)

const (
	amin  = 1e-10
	topDB = 80.0
)

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSP      = 200.0 / 3
	melMinLogHz = 1000.0
	melMinLog   = melMinLogHz / melFSP
)

var melLogStep = math.Log(6.4) / 27

func hzToMel(f float64) float64 {
	if f < melMinLogHz {
		return f / melFSP
	}
	return melMinLog + math.Log(f/melMinLogHz)/melLogStep
}

func melToHz(m float64) float64 {
	if m < melMinLog {
		return m * melFSP
	}
	return melMinLogHz * math.Exp(melLogStep*(m-melMinLog))
}

// melFilterBank builds nMels triangular, area-normalised filters over the
// nfft/2+1 FFT bins spanning 0 Hz to Nyquist.
func melFilterBank(nMels, nfft, sampleRate int) [][]float64 {
	bins := nfft/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}

	lo, hi := hzToMel(0), hzToMel(float64(sampleRate)/2)
	edges := make([]float64, nMels+2)
	for i := range edges {
		edges[i] = melToHz(lo + (hi-lo)*float64(i)/float64(nMels+1))
	}

	bank := make([][]float64, nMels)
	for m := range bank {
		left, centre, right := edges[m], edges[m+1], edges[m+2]
		norm := 2 / (right - left)
		row := make([]float64, bins)
		for k, f := range fftFreqs {
			lower := (f - left) / (centre - left)
			upper := (right - f) / (right - centre)
			if w := math.Min(lower, upper); w > 0 {
				row[k] = w * norm
			}
		}
		bank[m] = row
	}
	return bank
}

// dctBasis returns the first n rows of an orthonormal DCT-II matrix of size m.
func dctBasis(n, m int) [][]float64 {
	basis := make([][]float64, n)
	for k := range basis {
		scale := math.Sqrt(2 / float64(m))
		if k == 0 {
			scale = math.Sqrt(1 / float64(m))
		}
		row := make([]float64, m)
		for i := range row {
			row[i] = scale * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(m)))
		}
		basis[k] = row
	}
	return basis
}

// powerToDB converts a power matrix to decibels (ref 1) and clips everything
// more than topDB below the matrix maximum.
func powerToDB(s [][]float64) [][]float64 {
	out := make([][]float64, len(s))
	peak := math.Inf(-1)
	for i, row := range s {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = 10 * math.Log10(math.Max(amin, v))
			peak = math.Max(peak, r[j])
		}
		out[i] = r
	}
	floor := peak - topDB
	for _, row := range out {
		for j, v := range row {
			if v < floor {
				row[j] = floor
			}
		}
	}
	return out
}

// transpose swaps a frame-major matrix to row-per-feature layout and back.
func transpose(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([][]float64, len(m[0]))
	for j := range out {
		col := make([]float64, len(m))
		for i, row := range m {
			col[i] = row[j]
		}
		out[j] = col
	}
	return out
}

// mfcc computes nMfcc cepstral coefficients per STFT frame. The result is
// laid out coefficient-major: out[c][t].
func (e *Extractor) mfcc(x []float64) [][]float64 {
	spec := audio.STFT(x, e.cfg.NFFT, e.cfg.Hop)
	mag := spec.Magnitude()

	// mel power spectrogram, mel-major
	mel := make([][]float64, len(e.melBank))
	for m, filter := range e.melBank {
		row := make([]float64, len(mag))
		for t, frame := range mag {
			var sum float64
			for k, w := range filter {
				if w != 0 {
					sum += w * frame[k] * frame[k]
				}
			}
			row[t] = sum
		}
		mel[m] = row
	}
	db := powerToDB(mel)

	out := make([][]float64, len(e.dct))
	frames := len(mag)
	for c, basis := range e.dct {
		row := make([]float64, frames)
		for t := 0; t < frames; t++ {
			var sum float64
			for m, b := range basis {
				sum += b * db[m][t]
			}
			row[t] = sum
		}
		out[c] = row
	}
	return out
}
