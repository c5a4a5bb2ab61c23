package audio

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Preprocess decodes raw audio, averages the channels into one and resamples
// to targetRate. A non-positive targetRate means TargetRate.
//
// Decoding failures come back as *DecodeError. NaN or Inf samples after
// resampling are reported with ErrNonFinite.
func Preprocess(raw []byte, targetRate int) (Waveform, error) {
	if targetRate <= 0 {
		targetRate = TargetRate
	}
	clip, err := Decode(raw)
	if err != nil {
		return Waveform{}, err
	}
	if clip.Frames() == 0 {
		return Waveform{}, &DecodeError{Format: clip.Format, Err: errors.New("no samples")}
	}

	mono := Downmix(clip)
	samples := Resample(mono, clip.SampleRate, targetRate)
	if err := checkFinite(samples); err != nil {
		return Waveform{}, fmt.Errorf("resample %d->%d Hz: %w", clip.SampleRate, targetRate, err)
	}
	return Waveform{Samples: samples, SampleRate: targetRate}, nil
}

// Downmix averages interleaved channels into a single channel.
func Downmix(c *Clip) []float64 {
	frames := c.Frames()
	out := make([]float64, frames)
	if c.Channels == 1 {
		copy(out, c.Samples[:frames])
		return out
	}
	inv := 1 / float64(c.Channels)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < c.Channels; ch++ {
			sum += c.Samples[i*c.Channels+ch]
		}
		out[i] = sum * inv
	}
	return out
}

// PeakNormalize scales x so that its largest absolute sample is 1. Silent
// input is returned unchanged.
func PeakNormalize(x []float64) []float64 {
	out := make([]float64, len(x))
	var peak float64
	for _, v := range x {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		copy(out, x)
		return out
	}
	for i, v := range x {
		out[i] = v / peak
	}
	return out
}

// AddNoise mixes seeded Gaussian noise at the given level into x and peak
// normalizes the result. Used for augmentation.
func AddNoise(x []float64, level float64, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	noisy := make([]float64, len(x))
	for i, v := range x {
		noisy[i] = v + level*r.NormFloat64()
	}
	return PeakNormalize(noisy)
}

// CleanConfig chains the denoising stages applied to a preprocessed waveform.
type CleanConfig struct {
	Gate   GateConfig
	Filter FilterConfig
	// SkipGate leaves out the spectral gate and only low-pass filters.
	SkipGate bool
}

// DefaultCleanConfig returns the spectral gate and low-pass defaults.
func DefaultCleanConfig() CleanConfig {
	return CleanConfig{Gate: DefaultGateConfig(), Filter: DefaultFilterConfig()}
}

// Clean runs the spectral gate followed by the low-pass filter.
func Clean(w Waveform, cfg CleanConfig) (Waveform, error) {
	gated := w
	if !cfg.SkipGate {
		var err error
		if gated, err = SpectralGate(w, cfg.Gate); err != nil {
			return Waveform{}, fmt.Errorf("spectral gate: %w", err)
		}
	}
	filtered, err := LowPass(gated.Samples, float64(w.SampleRate), cfg.Filter)
	if err != nil {
		return Waveform{}, fmt.Errorf("low-pass: %w", err)
	}
	if err := checkFinite(filtered); err != nil {
		return Waveform{}, err
	}
	return Waveform{Samples: filtered, SampleRate: w.SampleRate}, nil
}
