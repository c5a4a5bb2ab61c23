// Package orchestrator composes the audio and transcript branches for one
// recording and persists the results as a session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ekjot25/Audio-Analysis/audio"
	"github.com/ekjot25/Audio-Analysis/clients"
	"github.com/ekjot25/Audio-Analysis/cluster"
	cfg "github.com/ekjot25/Audio-Analysis/config"
	"github.com/ekjot25/Audio-Analysis/features"
	"github.com/ekjot25/Audio-Analysis/logging"
	"github.com/ekjot25/Audio-Analysis/transcript"
)

type Pipeline struct {
	cfg  *cfg.Root
	log  logrus.FieldLogger
	http *clients.HTTP
	now  func() time.Time
}

func NewPipeline(c *cfg.Root, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		cfg:  c,
		log:  logging.OrDiscard(log),
		http: clients.NewHTTP(cfg.DurSeconds(c.Services.Visualization.Timeout)),
		now:  time.Now,
	}
}

// LoadAudio reads, decodes and cleans one audio file. The features.augment_*
// settings then time stretch, pitch shift and add seeded noise, in that order.
func (p *Pipeline) LoadAudio(path string) (audio.Waveform, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return audio.Waveform{}, err
	}
	w, err := audio.Preprocess(raw, p.cfg.Audio.SampleRate)
	if errors.Is(err, audio.ErrNonFinite) {
		p.log.WithField("audio", path).Warn("skipping file with non-finite samples")
	}
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("preprocess %s: %w", path, err)
	}
	w, err = audio.Clean(w, p.cfg.CleanConfig())
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("clean %s: %w", path, err)
	}
	if w, err = p.augment(w); err != nil {
		return audio.Waveform{}, fmt.Errorf("augment %s: %w", path, err)
	}
	p.log.WithFields(logrus.Fields{
		"audio":    path,
		"duration": w.Duration(),
		"rate":     w.SampleRate,
	}).Info("audio loaded")
	return w, nil
}

func (p *Pipeline) augment(w audio.Waveform) (audio.Waveform, error) {
	f := p.cfg.Features
	var err error
	if f.Stretch > 0 && f.Stretch != 1 {
		if w.Samples, err = audio.TimeStretch(w.Samples, f.Stretch); err != nil {
			return w, err
		}
	}
	if f.PitchSteps != 0 {
		if w.Samples, err = audio.PitchShift(w.Samples, f.PitchSteps); err != nil {
			return w, err
		}
	}
	if lvl := f.NoiseLevel; lvl > 0 {
		w.Samples = audio.AddNoise(w.Samples, lvl, p.cfg.Clustering.Seed)
	}
	return w, nil
}

// Extract runs chunk-level feature extraction.
func (p *Pipeline) Extract(ctx context.Context, w audio.Waveform) (features.Matrix, features.Report, error) {
	ext, err := features.New(p.cfg.FeatureConfig(), p.log)
	if err != nil {
		return features.Matrix{}, features.Report{}, err
	}
	return ext.ExtractFeatures(ctx, w)
}

// ExtractFrames returns MFCC, delta and delta-delta rows, one per STFT frame.
func (p *Pipeline) ExtractFrames(w audio.Waveform) ([][]float64, error) {
	ext, err := features.New(p.cfg.FeatureConfig(), p.log)
	if err != nil {
		return nil, err
	}
	return ext.ExtractDeltaFeatures(w)
}

// Cluster groups feature rows with the configured k-means.
func (p *Pipeline) Cluster(rows [][]float64) (cluster.Assignment, error) {
	asg, err := cluster.Cluster(rows, p.cfg.ClusterConfig())
	if err != nil {
		return cluster.Assignment{}, err
	}
	p.log.WithFields(logrus.Fields{
		"rows":    len(rows),
		"k":       asg.K,
		"inertia": asg.Inertia,
		"sizes":   asg.Sizes(),
	}).Info("clustering finished")
	return asg, nil
}

// Diarize parses a transcript file and aligns it.
func (p *Pipeline) Diarize(path string) (*transcript.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := transcript.Parse(f)
	if err != nil {
		return nil, err
	}
	res := transcript.Diarize(t, p.log.WithField("transcript", path))
	p.log.WithFields(logrus.Fields{
		"transcript": path,
		"utterances": len(res.Utterances),
		"gaps":       len(res.Gaps),
	}).Info("diarization finished")
	return &res, nil
}

// Run processes one recording end to end and writes the session files under
// paths.outputs. transcriptPath may be empty.
func (p *Pipeline) Run(ctx context.Context, audioPath, transcriptPath string) (*Result, error) {
	w, err := p.LoadAudio(audioPath)
	if err != nil {
		return nil, err
	}
	m, report, err := p.Extract(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}
	asg, err := p.Cluster(m.Rows())
	if err != nil {
		return nil, err
	}

	res := &Result{Duration: w.Duration(), Features: m, Report: report, Clusters: asg}
	var utts []transcript.Utterance
	if transcriptPath != "" {
		if res.Diarization, err = p.Diarize(transcriptPath); err != nil {
			return nil, err
		}
		utts = res.Diarization.Utterances
		res.Share = transcript.SpeakerTrack(utts, trackRate).Share()
	}

	res.Windows = p.window(report.Chunks, m, asg, utts)
	for i := range res.Windows {
		aggregate(&res.Windows[i])
	}

	if err := persist(p.cfg.Paths.Outputs, audioPath, transcriptPath, res, p.now()); err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}
	log := p.log.WithField("session", res.SessionID)
	log.WithField("dir", res.Dir).Info("session written")

	if url := p.cfg.Services.Visualization.URL; url != "" {
		p.visualize(ctx, log, url, res)
	}
	return res, nil
}

// visualize asks the renderer for a timeline and, with a transcript, a
// speaking-share radar. Failures are logged; the session is already saved.
func (p *Pipeline) visualize(ctx context.Context, log logrus.FieldLogger, url string, res *Result) {
	ts, clusters, speakers := timeline(res.Windows)
	if res.Diarization == nil {
		speakers = nil
	}
	tl, err := p.http.GenerateTimeline(ctx, url, clients.TimelineReq{
		Timestamps: ts,
		Clusters:   clusters,
		Speakers:   speakers,
		OutputDir:  res.Dir,
	})
	if err != nil {
		log.WithError(err).Warn("timeline rendering failed")
	} else {
		log.WithField("path", tl.Path).Info("timeline rendered")
	}

	if len(res.Share) == 0 {
		return
	}
	req := clients.RadarReq{Title: "speaking share", OutputDir: res.Dir}
	for s := range res.Share {
		req.Categories = append(req.Categories, s)
	}
	slices.Sort(req.Categories)
	for _, s := range req.Categories {
		req.Values = append(req.Values, res.Share[s])
	}
	radar, err := p.http.GenerateRadar(ctx, url, req)
	if err != nil {
		log.WithError(err).Warn("radar rendering failed")
		return
	}
	log.WithField("path", radar.Path).Info("radar rendered")
}
