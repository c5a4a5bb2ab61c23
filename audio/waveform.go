// Package audio turns raw recordings into a clean, single-channel waveform:
// container decoding, downmixing, resampling, spectral-gate denoising and
// Butterworth low-pass smoothing.
package audio

import (
	"errors"
	"fmt"
	"math"
)

// TargetRate is the sample rate every waveform is brought to before analysis.
const TargetRate = 16000

// ErrNonFinite reports NaN or Inf samples left after resampling. Callers
// usually skip the file.
var ErrNonFinite = errors.New("audio: non-finite samples")

// Waveform is a single-channel signal at a fixed sample rate.
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the waveform length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Clip is decoded audio before downmixing. Samples are interleaved by channel
// and scaled to [-1, 1].
type Clip struct {
	Format     string
	Channels   int
	SampleRate int
	Samples    []float64
}

// Frames returns the number of sample frames (samples per channel).
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// DecodeError means the input could not be decoded as audio. It is terminal
// for that file.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s audio: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func checkFinite(x []float64) error {
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w at sample %d", ErrNonFinite, i)
		}
	}
	return nil
}
