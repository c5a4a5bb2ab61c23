package audio

import (
	"fmt"
	"math"
	"math/cmplx"
)

// TimeStretch changes the tempo of x by rate without changing its pitch,
// using a phase vocoder over the default STFT geometry. rate > 1 speeds the
// signal up. The output has round(len(x)/rate) samples.
func TimeStretch(x []float64, rate float64) ([]float64, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("time stretch rate must be positive and finite, got %v", rate)
	}
	n := int(math.Round(float64(len(x)) / rate))
	if len(x) == 0 || rate == 1 {
		out := make([]float64, len(x))
		copy(out, x)
		return out, nil
	}

	spec := STFT(x, DefaultNFFT, DefaultHop)
	stretched := phaseVocoder(spec, rate)
	return ISTFT(stretched, n), nil
}

func phaseVocoder(s Spectrogram, rate float64) Spectrogram {
	bins := s.Bins()
	frames := len(s.Frames)

	// expected phase advance per hop for each bin
	advance := make([]float64, bins)
	for k := range advance {
		advance[k] = 2 * math.Pi * float64(s.Hop) * float64(k) / float64(s.NFFT)
	}

	// a trailing silent frame lets the last step interpolate
	padded := append(s.Frames[:frames:frames], make([]complex128, bins))

	acc := make([]float64, bins)
	for k, c := range padded[0] {
		acc[k] = cmplx.Phase(c)
	}

	var out [][]complex128
	for step := 0.0; step < float64(frames); step += rate {
		t := int(step)
		alpha := step - float64(t)
		c0, c1 := padded[t], padded[t+1]

		frame := make([]complex128, bins)
		for k := range frame {
			mag := (1-alpha)*cmplx.Abs(c0[k]) + alpha*cmplx.Abs(c1[k])
			frame[k] = cmplx.Rect(mag, acc[k])

			d := cmplx.Phase(c1[k]) - cmplx.Phase(c0[k]) - advance[k]
			d -= 2 * math.Pi * math.Round(d/(2*math.Pi))
			acc[k] += advance[k] + d
		}
		out = append(out, frame)
	}
	return Spectrogram{Frames: out, NFFT: s.NFFT, Hop: s.Hop}
}

// PitchShift moves x by steps semitones while keeping its duration: the
// signal is time stretched by 2^(-steps/12) and resampled back to len(x).
func PitchShift(x []float64, steps float64) ([]float64, error) {
	if math.IsNaN(steps) || math.IsInf(steps, 0) {
		return nil, fmt.Errorf("pitch shift steps must be finite, got %v", steps)
	}
	if steps == 0 || len(x) == 0 {
		out := make([]float64, len(x))
		copy(out, x)
		return out, nil
	}

	rate := math.Pow(2, -steps/12)
	stretched, err := TimeStretch(x, rate)
	if err != nil {
		return nil, err
	}
	shifted := resampleRatio(stretched, rate)

	out := make([]float64, len(x))
	copy(out, shifted)
	return out, nil
}
