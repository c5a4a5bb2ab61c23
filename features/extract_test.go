package features

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/ekjot25/Audio-Analysis/audio"
)

const rate = audio.TargetRate

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ChunkSeconds = 1
	cfg.Workers = 1
	return cfg
}

func toneWithNoise(seconds float64, freq float64, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, seed+1))
	n := int(seconds * rate)
	x := make([]float64, n)
	for i := range x {
		x[i] = 0.4*math.Sin(2*math.Pi*freq*float64(i)/rate) + 0.05*r.NormFloat64()
	}
	return x
}

func newExtractor(t *testing.T, cfg Config) *Extractor {
	t.Helper()
	e, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestExtractFeaturesChunkCount(t *testing.T) {
	tests := []struct {
		name     string
		seconds  float64
		wantRows int
	}{
		{"exact", 2, 2},
		{"trailing partial dropped", 2.5, 2},
		{"shorter than one chunk", 0.5, 0},
	}
	e := newExtractor(t, testConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := audio.Waveform{Samples: toneWithNoise(tt.seconds, 220, 1), SampleRate: rate}
			m, report, err := e.ExtractFeatures(context.Background(), w)
			if err != nil {
				t.Fatalf("ExtractFeatures: %v", err)
			}
			if len(m.Frames) != tt.wantRows || report.Chunks != tt.wantRows || report.Kept != tt.wantRows {
				t.Fatalf("rows=%d chunks=%d kept=%d, want %d", len(m.Frames), report.Chunks, report.Kept, tt.wantRows)
			}
			for i, f := range m.Frames {
				if f.Index != i {
					t.Errorf("frame %d has index %d", i, f.Index)
				}
				if len(f.Values) != m.Width {
					t.Errorf("frame %d width = %d, want %d", i, len(f.Values), m.Width)
				}
				if pos := firstNonFinite(f.Values); pos >= 0 {
					t.Errorf("frame %d has non-finite value at %d", i, pos)
				}
			}
		})
	}
}

func TestExtractFeaturesWidth(t *testing.T) {
	cfg := testConfig()
	e := newExtractor(t, cfg)
	frames := rate/cfg.Hop + 1
	// 20 MFCC + 12 chroma + 6 contrast rows (five bands fit under 8 kHz)
	if got, want := e.Width(), (20+12+6)*frames; got != want {
		t.Errorf("Width = %d, want %d", got, want)
	}

	cfg.IncludeChroma = false
	cfg.IncludeContrast = false
	if got, want := newExtractor(t, cfg).Width(), 20*frames; got != want {
		t.Errorf("MFCC-only Width = %d, want %d", got, want)
	}
}

func TestExtractFeaturesDeterministicAcrossWorkers(t *testing.T) {
	w := audio.Waveform{Samples: toneWithNoise(4, 330, 2), SampleRate: rate}

	cfg := testConfig()
	serial, _, err := newExtractor(t, cfg).ExtractFeatures(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Workers = 4
	parallel, _, err := newExtractor(t, cfg).ExtractFeatures(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}

	if len(serial.Frames) != len(parallel.Frames) {
		t.Fatalf("row count differs: %d vs %d", len(serial.Frames), len(parallel.Frames))
	}
	for i := range serial.Frames {
		a, b := serial.Frames[i], parallel.Frames[i]
		if a.Index != b.Index {
			t.Fatalf("row %d: index %d vs %d", i, a.Index, b.Index)
		}
		for j := range a.Values {
			if math.Float64bits(a.Values[j]) != math.Float64bits(b.Values[j]) {
				t.Fatalf("row %d value %d: %v vs %v", i, j, a.Values[j], b.Values[j])
			}
		}
	}
}

func TestExtractFeaturesDropsSilentChunk(t *testing.T) {
	x := toneWithNoise(3, 440, 3)
	for i := rate; i < 2*rate; i++ {
		x[i] = 0
	}

	m, report, err := newExtractor(t, testConfig()).ExtractFeatures(context.Background(), audio.Waveform{Samples: x, SampleRate: rate})
	if err != nil {
		t.Fatalf("ExtractFeatures: %v", err)
	}
	if report.Chunks != 3 || report.Kept != 2 {
		t.Fatalf("chunks=%d kept=%d, want 3/2", report.Chunks, report.Kept)
	}
	if got := m.Indices(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("indices = %v, want [0 2]", got)
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Chunk != 1 {
		t.Errorf("warnings = %+v, want one for chunk 1", report.Warnings)
	}
}

func TestExtractFeaturesRetainsBlocks(t *testing.T) {
	cfg := testConfig()
	e := newExtractor(t, cfg)
	m, _, err := e.ExtractFeatures(context.Background(), audio.Waveform{Samples: toneWithNoise(1, 440, 4), SampleRate: rate})
	if err != nil {
		t.Fatal(err)
	}
	f := m.Frames[0]
	if len(f.MFCC) != cfg.NMfcc || len(f.Chroma) != 12 || len(f.Contrast) != 6 {
		t.Fatalf("block rows = %d/%d/%d", len(f.MFCC), len(f.Chroma), len(f.Contrast))
	}

	// the MFCC block is standardised on its own
	flat := flatten(nil, f.MFCC)
	var sum float64
	for _, v := range flat {
		sum += v
	}
	if mean := sum / float64(len(flat)); math.Abs(mean) > 1e-9 {
		t.Errorf("MFCC block mean = %v, want 0", mean)
	}

	cfg.RetainBlocks = false
	m, _, err = newExtractor(t, cfg).ExtractFeatures(context.Background(), audio.Waveform{Samples: toneWithNoise(1, 440, 4), SampleRate: rate})
	if err != nil {
		t.Fatal(err)
	}
	if m.Frames[0].MFCC != nil || m.Frames[0].Chroma != nil {
		t.Error("blocks retained with RetainBlocks=false")
	}
}

func TestExtractFeaturesRejectsSampleRateMismatch(t *testing.T) {
	e := newExtractor(t, testConfig())
	_, _, err := e.ExtractFeatures(context.Background(), audio.Waveform{Samples: make([]float64, 44100), SampleRate: 44100})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestExtractFeaturesHonoursCancelledContext(t *testing.T) {
	e := newExtractor(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := e.ExtractFeatures(ctx, audio.Waveform{Samples: toneWithNoise(2, 440, 5), SampleRate: rate})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk", func(c *Config) { c.ChunkSeconds = 0 }},
		{"zero mfcc", func(c *Config) { c.NMfcc = 0 }},
		{"too many mfcc", func(c *Config) { c.NMfcc = c.NMels + 1 }},
		{"cutoff above nyquist", func(c *Config) { c.LowPass.Cutoff = 9000 }},
		{"no contrast bands", func(c *Config) { c.ContrastBands = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExtractDeltaFeatures(t *testing.T) {
	e := newExtractor(t, testConfig())
	x := toneWithNoise(1.5, 440, 6)
	rows, err := e.ExtractDeltaFeatures(audio.Waveform{Samples: x, SampleRate: rate})
	if err != nil {
		t.Fatalf("ExtractDeltaFeatures: %v", err)
	}
	if want := len(x)/e.cfg.Hop + 1; len(rows) != want {
		t.Fatalf("rows = %d, want %d", len(rows), want)
	}
	for i, row := range rows {
		if len(row) != 3*e.cfg.NMfcc {
			t.Fatalf("row %d width = %d, want %d", i, len(row), 3*e.cfg.NMfcc)
		}
	}

	if _, err := e.ExtractDeltaFeatures(audio.Waveform{SampleRate: rate}); err == nil {
		t.Error("expected error for empty waveform")
	}
}

func TestChromaFindsPitchClass(t *testing.T) {
	e := newExtractor(t, testConfig())
	x := make([]float64, rate)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * 440 * float64(i) / rate)
	}
	chroma := e.chroma(x)
	mid := len(chroma[0]) / 2
	best := 0
	for c := range chroma {
		if chroma[c][mid] > chroma[best][mid] {
			best = c
		}
	}
	if best != 9 {
		t.Errorf("strongest pitch class = %d, want 9 (A)", best)
	}
	if chroma[best][mid] != 1 {
		t.Errorf("peak chroma = %v, want 1", chroma[best][mid])
	}
}

func TestDelta(t *testing.T) {
	ramp := make([]float64, 20)
	flat := make([]float64, 20)
	parabola := make([]float64, 20)
	for i := range ramp {
		x := float64(i)
		ramp[i] = 2 * x
		flat[i] = 3
		parabola[i] = 3*x*x + x
	}
	rows := [][]float64{ramp, flat, parabola}

	// polynomial fits are exact, edges included
	d1, err := delta(rows, 1)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := delta(rows, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := range ramp {
		if math.Abs(d1[0][i]-2) > 1e-9 {
			t.Errorf("ramp delta[%d] = %v, want 2", i, d1[0][i])
		}
		if math.Abs(d1[1][i]) > 1e-9 || math.Abs(d2[1][i]) > 1e-9 {
			t.Errorf("flat deltas[%d] = %v, %v, want 0", i, d1[1][i], d2[1][i])
		}
		if math.Abs(d2[0][i]) > 1e-9 {
			t.Errorf("ramp delta-delta[%d] = %v, want 0", i, d2[0][i])
		}
		if math.Abs(d2[2][i]-6) > 1e-9 {
			t.Errorf("parabola delta-delta[%d] = %v, want 6", i, d2[2][i])
		}
	}
	// interior first derivative of 3x²+x is 6x+1
	for i := 4; i < 16; i++ {
		if want := 6*float64(i) + 1; math.Abs(d1[2][i]-want) > 1e-9 {
			t.Errorf("parabola delta[%d] = %v, want %v", i, d1[2][i], want)
		}
	}
}

func TestSavgolCoeffs(t *testing.T) {
	// closed forms for a width-9 window: z/60 and 2(z²-20/3)/308
	c1, err := savgolCoeffs(9, 1)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := savgolCoeffs(9, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 9; i++ {
		z := float64(i - 4)
		if want := z / 60; math.Abs(c1[i]-want) > 1e-12 {
			t.Errorf("order 1 tap %d = %v, want %v", i, c1[i], want)
		}
		if want := 2 * (z*z - 20.0/3) / 308; math.Abs(c2[i]-want) > 1e-12 {
			t.Errorf("order 2 tap %d = %v, want %v", i, c2[i], want)
		}
	}
}

func TestDeltaErrors(t *testing.T) {
	if _, err := delta([][]float64{make([]float64, 8)}, 1); err == nil {
		t.Error("expected error for rows shorter than the window")
	}
	if _, err := delta([][]float64{make([]float64, 20)}, 0); err == nil {
		t.Error("expected error for order 0")
	}
}

func TestMelFilterBankCoversSpectrum(t *testing.T) {
	bank := melFilterBank(40, 512, rate)
	if len(bank) != 40 || len(bank[0]) != 257 {
		t.Fatalf("shape = %dx%d", len(bank), len(bank[0]))
	}
	for m, row := range bank {
		var peak float64
		for _, w := range row {
			peak = math.Max(peak, w)
		}
		if peak <= 0 {
			t.Errorf("filter %d is empty", m)
		}
	}
}
