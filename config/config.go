package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ekjot25/Audio-Analysis/audio"
	"github.com/ekjot25/Audio-Analysis/cluster"
	"github.com/ekjot25/Audio-Analysis/features"
)

// EnvPrefix prefixes every environment override, e.g.
// AUDIO_ANALYSIS_CLUSTERING_K=4.
const EnvPrefix = "AUDIO_ANALYSIS"

type Service struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Timeout int    `mapstructure:"timeout" yaml:"timeout"`
}
type Services struct {
	Visualization Service `mapstructure:"visualization" yaml:"visualization"`
}
type Pipeline struct {
	Name      string `mapstructure:"name" yaml:"name"`
	Version   string `mapstructure:"version" yaml:"version"`
	LogLvl    string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}
type Audio struct {
	SampleRate int `mapstructure:"sample_rate" yaml:"sample_rate"`
}
type Denoise struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Threshold  float64 `mapstructure:"threshold_db" yaml:"threshold_db"`
	Stride     float64 `mapstructure:"stride" yaml:"stride"`
	MinSilence float64 `mapstructure:"min_silence" yaml:"min_silence"`
}
type Filter struct {
	Order  int     `mapstructure:"order" yaml:"order"`
	Cutoff float64 `mapstructure:"cutoff" yaml:"cutoff"`
}
type Features struct {
	ChunkSeconds    float64 `mapstructure:"chunk_seconds" yaml:"chunk_seconds"`
	NMfcc           int     `mapstructure:"n_mfcc" yaml:"n_mfcc"`
	IncludeChroma   bool    `mapstructure:"include_chroma" yaml:"include_chroma"`
	IncludeContrast bool    `mapstructure:"include_contrast" yaml:"include_contrast"`
	Workers         int     `mapstructure:"workers" yaml:"workers"`
	NFFT            int     `mapstructure:"n_fft" yaml:"n_fft"`
	Hop             int     `mapstructure:"hop" yaml:"hop"`
	NMels           int     `mapstructure:"n_mels" yaml:"n_mels"`
	ContrastBands   int     `mapstructure:"contrast_bands" yaml:"contrast_bands"`
	NoiseLevel      float64 `mapstructure:"augment_noise" yaml:"augment_noise"`
	// Stretch is a tempo factor; 0 and 1 leave the audio alone.
	Stretch    float64 `mapstructure:"augment_stretch" yaml:"augment_stretch"`
	PitchSteps float64 `mapstructure:"augment_pitch" yaml:"augment_pitch"`
}
type Clustering struct {
	K         int     `mapstructure:"k" yaml:"k"`
	Seed      uint64  `mapstructure:"seed" yaml:"seed"`
	MaxIter   int     `mapstructure:"max_iter" yaml:"max_iter"`
	NInit     int     `mapstructure:"n_init" yaml:"n_init"`
	Tolerance float64 `mapstructure:"tolerance" yaml:"tolerance"`
}
type Paths struct {
	Data    string `mapstructure:"data" yaml:"data"`
	Outputs string `mapstructure:"outputs" yaml:"outputs"`
}
type Root struct {
	Pipeline   Pipeline   `mapstructure:"pipeline" yaml:"pipeline"`
	Audio      Audio      `mapstructure:"audio" yaml:"audio"`
	Denoise    Denoise    `mapstructure:"denoise" yaml:"denoise"`
	Filter     Filter     `mapstructure:"filter" yaml:"filter"`
	Features   Features   `mapstructure:"features" yaml:"features"`
	Clustering Clustering `mapstructure:"clustering" yaml:"clustering"`
	Services   Services   `mapstructure:"services" yaml:"services"`
	Paths      Paths      `mapstructure:"paths" yaml:"paths"`

	// File is the config file that was read, empty when running on defaults.
	File string `mapstructure:"-" yaml:"-"`
}

// Default returns the configuration used when no file is found.
func Default() *Root {
	gate := audio.DefaultGateConfig()
	filter := audio.DefaultFilterConfig()
	feat := features.DefaultConfig()
	clu := cluster.DefaultConfig()
	return &Root{
		Pipeline: Pipeline{Name: "audio-analysis", Version: "0.1.0", LogLvl: "info", LogFormat: "text"},
		Audio:    Audio{SampleRate: audio.TargetRate},
		Denoise: Denoise{
			Enabled:    true,
			Threshold:  gate.Threshold,
			Stride:     gate.Stride,
			MinSilence: gate.MinSilence,
		},
		Filter: Filter{Order: filter.Order, Cutoff: filter.Cutoff},
		Features: Features{
			ChunkSeconds:    feat.ChunkSeconds,
			NMfcc:           feat.NMfcc,
			IncludeChroma:   feat.IncludeChroma,
			IncludeContrast: feat.IncludeContrast,
			Workers:         0,
			NFFT:            feat.NFFT,
			Hop:             feat.Hop,
			NMels:           feat.NMels,
			ContrastBands:   feat.ContrastBands,
		},
		Clustering: Clustering{
			K:         clu.K,
			Seed:      clu.Seed,
			MaxIter:   clu.MaxIter,
			NInit:     clu.NInit,
			Tolerance: clu.Tolerance,
		},
		Services: Services{Visualization: Service{Timeout: 60}},
		Paths:    Paths{Data: "data", Outputs: "outputs"},
	}
}

// SearchPaths lists the files Load tries when no explicit path is given.
func SearchPaths() []string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return []string{
		filepath.Join("config", env, "config.yaml"),
		filepath.Join("src", "shared", "config.yaml"),
	}
}

// Load reads path, or the first existing file from SearchPaths when path is
// empty, on top of the defaults. Environment variables prefixed with
// EnvPrefix override file values. No file at all is not an error.
func Load(path string) (*Root, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := path
	if file == "" {
		for _, p := range SearchPaths() {
			if _, err := os.Stat(p); err == nil {
				file = p
				break
			}
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = file
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so that environment overrides reach
// Unmarshal even when the file leaves the key out.
func setDefaults(v *viper.Viper, def *Root) {
	raw, _ := yaml.Marshal(def)
	var tree map[string]any
	_ = yaml.Unmarshal(raw, &tree)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]any); ok {
				walk(key, sub)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
}

// Validate checks the ranges the components cannot recover from.
func (c *Root) Validate() error {
	var errs []error
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Filter.Order < 1 {
		errs = append(errs, fmt.Errorf("filter.order must be at least 1, got %d", c.Filter.Order))
	}
	if c.Filter.Cutoff <= 0 || c.Filter.Cutoff >= float64(c.Audio.SampleRate)/2 {
		errs = append(errs, fmt.Errorf("filter.cutoff must be in (0, %d), got %v", c.Audio.SampleRate/2, c.Filter.Cutoff))
	}
	if c.Denoise.Enabled && (c.Denoise.Stride <= 0 || c.Denoise.MinSilence <= 0) {
		errs = append(errs, errors.New("denoise.stride and denoise.min_silence must be positive"))
	}
	if c.Features.ChunkSeconds <= 0 {
		errs = append(errs, fmt.Errorf("features.chunk_seconds must be positive, got %v", c.Features.ChunkSeconds))
	}
	if c.Features.NMfcc < 1 {
		errs = append(errs, fmt.Errorf("features.n_mfcc must be positive, got %d", c.Features.NMfcc))
	}
	if c.Features.NoiseLevel < 0 {
		errs = append(errs, fmt.Errorf("features.augment_noise must not be negative, got %v", c.Features.NoiseLevel))
	}
	if c.Features.Stretch < 0 {
		errs = append(errs, fmt.Errorf("features.augment_stretch must not be negative, got %v", c.Features.Stretch))
	}
	if c.Clustering.K < 1 {
		errs = append(errs, fmt.Errorf("clustering.k must be positive, got %d", c.Clustering.K))
	}
	if c.Paths.Outputs == "" {
		errs = append(errs, errors.New("paths.outputs is required"))
	}
	return errors.Join(errs...)
}

// CleanConfig returns the denoising stages for the audio package.
func (c *Root) CleanConfig() audio.CleanConfig {
	gate := audio.DefaultGateConfig()
	gate.Threshold = c.Denoise.Threshold
	gate.Stride = c.Denoise.Stride
	gate.MinSilence = c.Denoise.MinSilence
	return audio.CleanConfig{
		Gate:     gate,
		Filter:   audio.FilterConfig{Order: c.Filter.Order, Cutoff: c.Filter.Cutoff},
		SkipGate: !c.Denoise.Enabled,
	}
}

// FeatureConfig returns the extractor configuration. Chunks are filtered
// with the same low-pass as the cleaning stage.
func (c *Root) FeatureConfig() features.Config {
	f := c.Features
	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return features.Config{
		SampleRate:      c.Audio.SampleRate,
		ChunkSeconds:    f.ChunkSeconds,
		NMfcc:           f.NMfcc,
		IncludeChroma:   f.IncludeChroma,
		IncludeContrast: f.IncludeContrast,
		RetainBlocks:    true,
		Workers:         workers,
		LowPass:         audio.FilterConfig{Order: c.Filter.Order, Cutoff: c.Filter.Cutoff},
		NFFT:            f.NFFT,
		Hop:             f.Hop,
		NMels:           f.NMels,
		ContrastBands:   f.ContrastBands,
	}
}

// ClusterConfig returns the k-means configuration.
func (c *Root) ClusterConfig() cluster.Config {
	k := c.Clustering
	return cluster.Config{K: k.K, Seed: k.Seed, MaxIter: k.MaxIter, NInit: k.NInit, Tolerance: k.Tolerance}
}

// Write stores cfg as YAML at path, creating parent directories.
func Write(path string, cfg *Root) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
