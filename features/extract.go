// Package features turns a cleaned waveform into numeric feature vectors for
// clustering: chunk-level MFCC, chroma and spectral-contrast blocks, or
// frame-level MFCC with deltas.
package features

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/ekjot25/Audio-Analysis/audio"
	"github.com/ekjot25/Audio-Analysis/logging"
)

// Config selects the extraction geometry and which feature blocks are built.
type Config struct {
	SampleRate      int
	ChunkSeconds    float64
	NMfcc           int
	IncludeChroma   bool
	IncludeContrast bool
	// RetainBlocks keeps the per-type matrices on every Frame.
	RetainBlocks  bool
	Workers       int
	LowPass       audio.FilterConfig
	NFFT          int
	Hop           int
	NMels         int
	ContrastBands int
}

// DefaultConfig returns 10 s chunks of 20 MFCCs plus chroma and contrast.
func DefaultConfig() Config {
	return Config{
		SampleRate:      audio.TargetRate,
		ChunkSeconds:    10,
		NMfcc:           20,
		IncludeChroma:   true,
		IncludeContrast: true,
		RetainBlocks:    true,
		Workers:         runtime.GOMAXPROCS(0),
		LowPass:         audio.DefaultFilterConfig(),
		NFFT:            audio.DefaultNFFT,
		Hop:             audio.DefaultHop,
		NMels:           128,
		ContrastBands:   6,
	}
}

// ChunkSize returns the number of samples per chunk.
func (c Config) ChunkSize() int {
	return int(c.ChunkSeconds * float64(c.SampleRate))
}

func (c Config) validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	case c.ChunkSeconds <= 0 || c.ChunkSize() < 1:
		return fmt.Errorf("chunk length must be positive, got %v s", c.ChunkSeconds)
	case c.NFFT <= 0 || c.Hop <= 0:
		return fmt.Errorf("invalid STFT geometry nfft=%d hop=%d", c.NFFT, c.Hop)
	case c.NMels <= 0:
		return fmt.Errorf("mel band count must be positive, got %d", c.NMels)
	case c.NMfcc <= 0 || c.NMfcc > c.NMels:
		return fmt.Errorf("MFCC count must be in [1, %d], got %d", c.NMels, c.NMfcc)
	case c.IncludeContrast && c.ContrastBands < 1:
		return fmt.Errorf("contrast band count must be positive, got %d", c.ContrastBands)
	}
	return nil
}

// Frame is the feature vector of one chunk. Index is the chunk position in
// the waveform, which stays meaningful after invalid chunks are dropped.
type Frame struct {
	Index    int         `json:"index"`
	Values   []float64   `json:"values"`
	MFCC     [][]float64 `json:"mfcc,omitempty"`
	Chroma   [][]float64 `json:"chroma,omitempty"`
	Contrast [][]float64 `json:"contrast,omitempty"`
}

// Matrix is the ordered list of valid frames. Every frame has Width values.
type Matrix struct {
	Frames []Frame `json:"frames"`
	Width  int     `json:"width"`
}

// Rows returns the frame vectors in chunk order.
func (m Matrix) Rows() [][]float64 {
	rows := make([][]float64, len(m.Frames))
	for i, f := range m.Frames {
		rows[i] = f.Values
	}
	return rows
}

// Indices returns the chunk index of every row.
func (m Matrix) Indices() []int {
	idx := make([]int, len(m.Frames))
	for i, f := range m.Frames {
		idx[i] = f.Index
	}
	return idx
}

// ExtractionWarning records a chunk dropped for non-finite values.
type ExtractionWarning struct {
	Chunk    int    `json:"chunk"`
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

// Report summarises one extraction run.
type Report struct {
	Chunks   int                 `json:"chunks"`
	Kept     int                 `json:"kept"`
	Warnings []ExtractionWarning `json:"warnings,omitempty"`
}

// Extractor holds the filter coefficients and spectral kernels for one
// configuration. It is safe for concurrent use.
type Extractor struct {
	cfg     Config
	log     logrus.FieldLogger
	b, a    []float64
	melBank [][]float64
	dct     [][]float64
	cqt     []cqtKernel
	bands   []contrastBand
}

// New validates cfg and precomputes everything shared between chunks.
func New(cfg Config, log logrus.FieldLogger) (*Extractor, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	b, a, err := audio.Butter(cfg.LowPass.Order, cfg.LowPass.Cutoff, float64(cfg.SampleRate))
	if err != nil {
		return nil, fmt.Errorf("chunk low-pass: %w", err)
	}

	e := &Extractor{
		cfg:     cfg,
		log:     logging.OrDiscard(log),
		b:       b,
		a:       a,
		melBank: melFilterBank(cfg.NMels, cfg.NFFT, cfg.SampleRate),
		dct:     dctBasis(cfg.NMfcc, cfg.NMels),
	}
	if cfg.IncludeChroma {
		e.cqt = newCQTKernels(cfg.SampleRate)
	}
	if cfg.IncludeContrast {
		e.bands = contrastBands(cfg.ContrastBands, cfg.NFFT, cfg.SampleRate)
	}
	return e, nil
}

// Config returns the configuration the extractor was built with.
func (e *Extractor) Config() Config { return e.cfg }

// Width returns the length of every chunk feature vector.
func (e *Extractor) Width() int {
	frames := e.cfg.ChunkSize()/e.cfg.Hop + 1
	rows := e.cfg.NMfcc
	if e.cfg.IncludeChroma {
		rows += chromaBins
	}
	if e.cfg.IncludeContrast {
		rows += len(e.bands)
	}
	return rows * frames
}

// ExtractFeatures splits w into non-overlapping chunks of ChunkSeconds (a
// trailing partial chunk is dropped) and encodes each chunk as a frame.
// Chunks are processed by up to Workers goroutines; rows come back in chunk
// order. Chunks with NaN or Inf values are left out and listed in the report.
func (e *Extractor) ExtractFeatures(ctx context.Context, w audio.Waveform) (Matrix, Report, error) {
	if w.SampleRate != e.cfg.SampleRate {
		return Matrix{}, Report{}, fmt.Errorf("waveform is %d Hz, extractor expects %d Hz", w.SampleRate, e.cfg.SampleRate)
	}

	size := e.cfg.ChunkSize()
	n := len(w.Samples) / size
	slots := make([]Frame, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = e.encodeChunk(i, w.Samples[i*size:(i+1)*size])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Matrix{}, Report{}, err
	}

	report := Report{Chunks: n}
	m := Matrix{Width: e.Width()}
	for f := range e.validFrames(slots, &report) {
		m.Frames = append(m.Frames, f)
	}
	report.Kept = len(m.Frames)

	e.log.WithFields(logrus.Fields{
		"chunks":  report.Chunks,
		"kept":    report.Kept,
		"dropped": len(report.Warnings),
		"width":   m.Width,
	}).Debug("feature extraction finished")
	return m, report, nil
}

// validFrames yields the frames whose values are all finite, in slot order.
// Dropped frames are appended to report as warnings.
func (e *Extractor) validFrames(slots []Frame, report *Report) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for _, f := range slots {
			if pos := firstNonFinite(f.Values); pos >= 0 {
				warn := ExtractionWarning{
					Chunk:    f.Index,
					Position: pos,
					Reason:   fmt.Sprintf("non-finite value %v", f.Values[pos]),
				}
				report.Warnings = append(report.Warnings, warn)
				e.log.WithFields(logrus.Fields{
					"chunk":    warn.Chunk,
					"position": warn.Position,
				}).Warn("dropping chunk with non-finite features")
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

func (e *Extractor) encodeChunk(index int, chunk []float64) Frame {
	x := audio.PeakNormalize(audio.LFilter(e.b, e.a, chunk))

	mfcc := zscore(e.mfcc(x))
	frame := Frame{Index: index, Values: flatten(nil, mfcc)}
	if e.cfg.RetainBlocks {
		frame.MFCC = mfcc
	}
	if e.cfg.IncludeChroma {
		chroma := zscore(e.chroma(x))
		frame.Values = flatten(frame.Values, chroma)
		if e.cfg.RetainBlocks {
			frame.Chroma = chroma
		}
	}
	if e.cfg.IncludeContrast {
		contrast := zscore(e.contrast(x))
		frame.Values = flatten(frame.Values, contrast)
		if e.cfg.RetainBlocks {
			frame.Contrast = contrast
		}
	}
	return frame
}

// ExtractDeltaFeatures computes MFCC, delta and delta-delta over the whole
// waveform without chunking. Each returned row is one STFT frame holding
// 3*NMfcc values.
func (e *Extractor) ExtractDeltaFeatures(w audio.Waveform) ([][]float64, error) {
	if len(w.Samples) == 0 {
		return nil, errors.New("empty waveform")
	}
	if w.SampleRate != e.cfg.SampleRate {
		return nil, fmt.Errorf("waveform is %d Hz, extractor expects %d Hz", w.SampleRate, e.cfg.SampleRate)
	}

	mfcc := e.mfcc(w.Samples)
	d1, err := delta(mfcc, 1)
	if err != nil {
		return nil, err
	}
	d2, err := delta(mfcc, 2)
	if err != nil {
		return nil, err
	}

	stacked := make([][]float64, 0, 3*len(mfcc))
	stacked = append(stacked, mfcc...)
	stacked = append(stacked, d1...)
	stacked = append(stacked, d2...)
	return transpose(stacked), nil
}

// zscore standardises the whole block with its population mean and standard
// deviation. A constant block yields NaN, which drops the chunk later.
func zscore(block [][]float64) [][]float64 {
	flat := flatten(nil, block)
	mean, std := stat.PopMeanStdDev(flat, nil)
	out := make([][]float64, len(block))
	for i, row := range block {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - mean) / std
		}
		out[i] = r
	}
	return out
}

func flatten(dst []float64, block [][]float64) []float64 {
	for _, row := range block {
		dst = append(dst, row...)
	}
	return dst
}

func firstNonFinite(x []float64) int {
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i
		}
	}
	return -1
}
