package audio

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const gateEpsilon = 1e-10

// GateConfig controls the spectral gate.
type GateConfig struct {
	// Threshold is how far below the loudest frame, in dB, a frame must be
	// to count as silence.
	Threshold float64
	// Stride is the silence detection frame length in seconds.
	Stride float64
	// MinSilence is the shortest silent run, in seconds, accepted as a noise
	// interval.
	MinSilence float64
	NFFT       int
	Hop        int
}

// DefaultGateConfig returns a 20 dB threshold with 10 ms frames and 50 ms
// minimum silence.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Threshold:  20,
		Stride:     0.01,
		MinSilence: 0.05,
		NFFT:       DefaultNFFT,
		Hop:        DefaultHop,
	}
}

// Span is a half-open sample range [Start, End).
type Span struct {
	Start, End int
	// Energy is the mean squared amplitude over the span.
	Energy float64
}

// SpectralGate suppresses stationary noise. The noise magnitude profile is
// taken from the quietest silent interval of w, clipped so it never exceeds
// the mean magnitude of any frequency bin, and subtracted from every frame.
// The original phase is kept.
func SpectralGate(w Waveform, cfg GateConfig) (Waveform, error) {
	if len(w.Samples) == 0 {
		return Waveform{}, errors.New("empty waveform")
	}
	if w.SampleRate <= 0 {
		return Waveform{}, errors.New("sample rate must be positive")
	}
	if cfg.NFFT <= 0 || cfg.Hop <= 0 {
		cfg.NFFT, cfg.Hop = DefaultNFFT, DefaultHop
	}

	spec := STFT(w.Samples, cfg.NFFT, cfg.Hop)
	mag, phase := spec.Magnitude(), spec.Phase()

	noise := NoiseSpan(w.Samples, w.SampleRate, cfg)
	profile := meanPerBin(STFT(w.Samples[noise.Start:noise.End], cfg.NFFT, cfg.Hop).Magnitude())
	mean := meanPerBin(mag)
	for k := range profile {
		profile[k] = math.Min(profile[k], mean[k])
	}

	out := Spectrogram{Frames: make([][]complex128, len(mag)), NFFT: spec.NFFT, Hop: spec.Hop}
	for t, row := range mag {
		frame := make([]complex128, len(row))
		for k, m := range row {
			gain := math.Max(m-profile[k], 0) / (m + gateEpsilon)
			frame[k] = cmplx.Rect(gain*m, phase[t][k])
		}
		out.Frames[t] = frame
	}

	return Waveform{Samples: ISTFT(out, len(w.Samples)), SampleRate: w.SampleRate}, nil
}

// SilentSpans splits x into Stride-long frames and returns the runs of frames
// whose level is more than Threshold dB below the loudest frame and which last
// at least MinSilence seconds.
func SilentSpans(x []float64, rate int, cfg GateConfig) []Span {
	frameLen, energy := frameEnergy(x, rate, cfg.Stride)
	if len(energy) == 0 {
		return nil
	}
	peak := floats.Max(energy)
	if peak == 0 {
		return []Span{{Start: 0, End: len(energy) * frameLen}}
	}

	minFrames := minSilenceFrames(rate, frameLen, cfg.MinSilence)
	var spans []Span
	runStart := -1
	flush := func(end int) {
		if runStart >= 0 && end-runStart >= minFrames {
			spans = append(spans, Span{
				Start:  runStart * frameLen,
				End:    end * frameLen,
				Energy: stat.Mean(energy[runStart:end], nil),
			})
		}
		runStart = -1
	}
	for i, e := range energy {
		silent := e == 0 || 10*math.Log10(e/peak) < -cfg.Threshold
		switch {
		case silent && runStart < 0:
			runStart = i
		case !silent:
			flush(i)
		}
	}
	flush(len(energy))
	return spans
}

// NoiseSpan picks the interval used to estimate the noise profile: the
// lowest-energy silent span, or the quietest MinSilence-long window when no
// silent span qualifies. Signals shorter than one frame use the whole signal.
func NoiseSpan(x []float64, rate int, cfg GateConfig) Span {
	if spans := SilentSpans(x, rate, cfg); len(spans) > 0 {
		best := spans[0]
		for _, s := range spans[1:] {
			if s.Energy < best.Energy {
				best = s
			}
		}
		return best
	}

	frameLen, energy := frameEnergy(x, rate, cfg.Stride)
	minFrames := minSilenceFrames(rate, frameLen, cfg.MinSilence)
	if len(energy) <= minFrames {
		return Span{Start: 0, End: len(x), Energy: meanSquare(x)}
	}
	best := Span{Energy: math.Inf(1)}
	for i := 0; i+minFrames <= len(energy); i++ {
		if e := stat.Mean(energy[i:i+minFrames], nil); e < best.Energy {
			best = Span{Start: i * frameLen, End: (i + minFrames) * frameLen, Energy: e}
		}
	}
	return best
}

func frameEnergy(x []float64, rate int, stride float64) (int, []float64) {
	frameLen := int(stride * float64(rate))
	if frameLen < 1 {
		frameLen = 1
	}
	n := len(x) / frameLen
	energy := make([]float64, n)
	for i := range energy {
		energy[i] = meanSquare(x[i*frameLen : (i+1)*frameLen])
	}
	return frameLen, energy
}

func minSilenceFrames(rate, frameLen int, minSilence float64) int {
	n := int(math.Ceil(minSilence * float64(rate) / float64(frameLen)))
	if n < 1 {
		n = 1
	}
	return n
}

func meanPerBin(mag [][]float64) []float64 {
	if len(mag) == 0 {
		return nil
	}
	out := make([]float64, len(mag[0]))
	for _, row := range mag {
		floats.Add(out, row)
	}
	floats.Scale(1/float64(len(mag)), out)
	return out
}

func meanSquare(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Dot(x, x) / float64(len(x))
}
