package features

import (
	"math"
	"sort"

	"github.com/ekjot25/Audio-Analysis/audio"
	"gonum.org/v1/gonum/stat"
)

const (
	contrastFMin     = 200.0
	contrastQuantile = 0.02
)

// contrastBand lists the FFT bins of one octave band and how many of the
// sorted magnitudes feed the peak and valley means.
type contrastBand struct {
	bins []int
	take int
}

// contrastBands lays out bands+1 octave bands starting below contrastFMin.
// The band count is reduced until the top band edge fits under Nyquist.
func contrastBands(bands, nfft, sampleRate int) []contrastBand {
	nyquist := float64(sampleRate) / 2
	for bands > 1 && contrastFMin*math.Pow(2, float64(bands)) > nyquist {
		bands--
	}

	edges := make([]float64, bands+2)
	for i := 1; i < len(edges); i++ {
		edges[i] = contrastFMin * math.Pow(2, float64(i-1))
	}
	nBins := nfft/2 + 1
	freq := func(k int) float64 { return float64(k) * float64(sampleRate) / float64(nfft) }

	out := make([]contrastBand, 0, bands+1)
	for b := 0; b <= bands; b++ {
		lo, hi := edges[b], edges[b+1]
		first, last := -1, -1
		for k := 0; k < nBins; k++ {
			if f := freq(k); f >= lo && f <= hi {
				if first < 0 {
					first = k
				}
				last = k
			}
		}
		if first < 0 {
			continue
		}
		if b > 0 && first > 0 {
			first--
		}
		if b == bands {
			last = nBins - 1
		}
		count := last - first + 1
		take := int(math.Round(contrastQuantile * float64(count)))
		if take < 1 {
			take = 1
		}
		if b < bands {
			// the shared top edge belongs to the next band
			last--
		}
		if last < first {
			continue
		}
		bins := make([]int, 0, last-first+1)
		for k := first; k <= last; k++ {
			bins = append(bins, k)
		}
		out = append(out, contrastBand{bins: bins, take: take})
	}
	return out
}

// contrast returns, per octave band and frame, the dB difference between the
// mean of the loudest and the quietest magnitudes in the band. Output is
// band-major: out[b][t].
func (e *Extractor) contrast(x []float64) [][]float64 {
	mag := audio.STFT(x, e.cfg.NFFT, e.cfg.Hop).Magnitude()
	peak := make([][]float64, len(e.bands))
	valley := make([][]float64, len(e.bands))
	buf := make([]float64, 0, e.cfg.NFFT/2+1)

	for b, band := range e.bands {
		peak[b] = make([]float64, len(mag))
		valley[b] = make([]float64, len(mag))
		take := band.take
		if take > len(band.bins) {
			take = len(band.bins)
		}
		for t, frame := range mag {
			buf = buf[:0]
			for _, k := range band.bins {
				buf = append(buf, frame[k])
			}
			sort.Float64s(buf)
			valley[b][t] = stat.Mean(buf[:take], nil)
			peak[b][t] = stat.Mean(buf[len(buf)-take:], nil)
		}
	}

	peakDB, valleyDB := powerToDB(peak), powerToDB(valley)
	out := make([][]float64, len(e.bands))
	for b := range out {
		row := make([]float64, len(mag))
		for t := range row {
			row[t] = peakDB[b][t] - valleyDB[b][t]
		}
		out[b] = row
	}
	return out
}
