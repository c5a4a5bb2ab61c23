package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
	"github.com/gopxl/beep/mp3"
)

const mp3ReadSize = 4096

// WAV fmt-chunk format tags.
const (
	wavPCM        = 1
	wavFloat      = 3
	wavExtensible = 0xFFFE
)

// Decode sniffs the container and decodes WAV or MP3 bytes into a Clip.
func Decode(raw []byte) (*Clip, error) {
	switch sniff(raw) {
	case "wav":
		return decodeWAV(raw)
	case "mp3":
		return decodeMP3(raw)
	default:
		return nil, &DecodeError{Format: "unknown", Err: errors.New("unrecognised container")}
	}
}

func sniff(raw []byte) string {
	switch {
	case len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE":
		return "wav"
	case len(raw) >= 3 && string(raw[0:3]) == "ID3":
		return "mp3"
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

func decodeWAV(raw []byte) (*Clip, error) {
	d := wav.NewDecoder(bytes.NewReader(raw))
	if !d.IsValidFile() {
		return nil, &DecodeError{Format: "wav", Err: errors.New("invalid wav header")}
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{Format: "wav", Err: err}
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return nil, &DecodeError{Format: "wav", Err: errors.New("missing format chunk")}
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}

	var samples []float64
	switch d.WavAudioFormat {
	case wavPCM, wavExtensible:
		if samples, err = pcmSamples(buf.Data, depth); err != nil {
			return nil, &DecodeError{Format: "wav", Err: err}
		}
	case wavFloat:
		if depth != 32 {
			return nil, &DecodeError{Format: "wav", Err: fmt.Errorf("unsupported float depth %d", depth)}
		}
		// the decoder hands back the raw IEEE bits as int32
		samples = make([]float64, len(buf.Data))
		for i, v := range buf.Data {
			samples[i] = float64(math.Float32frombits(uint32(int32(v))))
		}
	default:
		return nil, &DecodeError{Format: "wav", Err: fmt.Errorf("unsupported format tag %#x", d.WavAudioFormat)}
	}

	return &Clip{
		Format:     "wav",
		Channels:   buf.Format.NumChannels,
		SampleRate: buf.Format.SampleRate,
		Samples:    samples,
	}, nil
}

func pcmSamples(data []int, depth int) ([]float64, error) {
	if depth < 8 || depth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", depth)
	}
	samples := make([]float64, len(data))
	if depth == 8 {
		// 8-bit PCM is unsigned
		for i, v := range data {
			samples[i] = float64(v-128) / 128
		}
		return samples, nil
	}
	scale := float64(int64(1) << (depth - 1))
	for i, v := range data {
		samples[i] = float64(v) / scale
	}
	return samples, nil
}

func decodeMP3(raw []byte) (*Clip, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(raw)))
	if err != nil {
		return nil, &DecodeError{Format: "mp3", Err: err}
	}
	defer streamer.Close()

	channels := format.NumChannels
	if channels != 1 {
		channels = 2
	}

	var samples []float64
	chunk := make([][2]float64, mp3ReadSize)
	for {
		n, ok := streamer.Stream(chunk)
		for _, frame := range chunk[:n] {
			samples = append(samples, frame[0])
			if channels == 2 {
				samples = append(samples, frame[1])
			}
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, &DecodeError{Format: "mp3", Err: err}
	}

	return &Clip{
		Format:     "mp3",
		Channels:   channels,
		SampleRate: int(format.SampleRate),
		Samples:    samples,
	}, nil
}
