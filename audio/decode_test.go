package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDecodeFloatWAV(t *testing.T) {
	want := sine(440, 0.5, TargetRate, TargetRate)
	data := make([]int, len(want))
	for i, v := range want {
		data[i] = int(int32(math.Float32bits(float32(v))))
	}

	w, err := Preprocess(encodeWAVFormat(t, TargetRate, 1, 32, wavFloat, data), TargetRate)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if len(w.Samples) != len(want) {
		t.Fatalf("len = %d, want %d", len(w.Samples), len(want))
	}
	for i := range want {
		if d := math.Abs(w.Samples[i] - want[i]); d > 1e-6 {
			t.Fatalf("sample %d = %v, want %v", i, w.Samples[i], want[i])
		}
	}
}

func TestDecodeFloatWAVWithNaN(t *testing.T) {
	data := make([]int, 64)
	for i := range data {
		data[i] = int(int32(math.Float32bits(0.1)))
	}
	data[10] = int(int32(math.Float32bits(float32(math.NaN()))))

	_, err := Preprocess(encodeWAVFormat(t, TargetRate, 1, 32, wavFloat, data), TargetRate)
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("err = %v, want ErrNonFinite", err)
	}
}

func TestDecodeWAVDepths(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		data  []int
		want  []float64
	}{
		{"8-bit unsigned", 8, []int{128, 192, 64}, []float64{0, 0.5, -0.5}},
		{"24-bit", 24, []int{0, 1 << 22, -(1 << 22)}, []float64{0, 0.5, -0.5}},
		{"32-bit int", 32, []int{0, 1 << 30, -(1 << 30)}, []float64{0, 0.5, -0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clip, err := Decode(encodeWAVFormat(t, TargetRate, 1, tt.depth, wavPCM, tt.data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			for i := range tt.want {
				if math.Abs(clip.Samples[i]-tt.want[i]) > 1e-9 {
					t.Errorf("sample %d = %v, want %v", i, clip.Samples[i], tt.want[i])
				}
			}
		})
	}
}

func TestDecodeMP3(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "padded_44100hz.mp3"))
	if err != nil {
		t.Fatal(err)
	}
	// the fixture carries a 45-byte ID3v2 tag before the first frame
	tests := []struct {
		name string
		raw  []byte
	}{
		{"id3 tagged", raw},
		{"bare frames", raw[45:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniff(tt.raw); got != "mp3" {
				t.Fatalf("sniff = %q, want mp3", got)
			}
			clip, err := Decode(tt.raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if clip.Format != "mp3" || clip.SampleRate != 44100 || clip.Frames() == 0 {
				t.Fatalf("clip = %s %d Hz, %d frames", clip.Format, clip.SampleRate, clip.Frames())
			}

			w, err := Preprocess(tt.raw, TargetRate)
			if err != nil {
				t.Fatalf("Preprocess: %v", err)
			}
			wantLen := int(math.Ceil(float64(clip.Frames()) * TargetRate / 44100))
			if w.SampleRate != TargetRate || len(w.Samples) != wantLen {
				t.Errorf("got %d samples at %d Hz, want %d at %d", len(w.Samples), w.SampleRate, wantLen, TargetRate)
			}
			for i, v := range w.Samples {
				if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > 2 {
					t.Fatalf("sample %d = %v", i, v)
				}
			}
		})
	}
}
