package orchestrator

import (
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	cfg "github.com/ekjot25/Audio-Analysis/config"
	"github.com/ekjot25/Audio-Analysis/transcript"
)

// writeWAV writes seconds of 16 kHz mono audio whose pitch changes halfway.
func writeWAV(t *testing.T, dir string, seconds int) string {
	t.Helper()
	const rate = 16000
	r := rand.New(rand.NewPCG(1, 2))
	n := seconds * rate
	data := make([]int, n)
	for i := range data {
		freq := 300.0
		if i >= n/2 {
			freq = 1200
		}
		v := 0.4*math.Sin(2*math.Pi*freq*float64(i)/rate) + 0.02*r.NormFloat64()
		data[i] = int(v * math.MaxInt16)
	}

	path := filepath.Join(dir, "session.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

const transcriptDoc = `{"results": {
  "transcripts": [{"transcript": "Good morning. Nice weather today!"}],
  "items": [
    {"type": "pronunciation", "alternatives": [{"content": "Good"}], "start_time": "0.2", "end_time": "0.6", "speaker_label": "spk_0"},
    {"type": "pronunciation", "alternatives": [{"content": "morning"}], "start_time": "0.6", "end_time": "1.5", "speaker_label": "spk_0"},
    {"type": "punctuation", "alternatives": [{"content": "."}]},
    {"type": "pronunciation", "alternatives": [{"content": "Nice"}], "start_time": "2.1", "end_time": "2.5", "speaker_label": "spk_1"},
    {"type": "pronunciation", "alternatives": [{"content": "weather"}], "start_time": "2.5", "end_time": "3.0", "speaker_label": "spk_1"},
    {"type": "pronunciation", "alternatives": [{"content": "today"}], "start_time": "3.0", "end_time": "3.8", "speaker_label": "spk_1"},
    {"type": "punctuation", "alternatives": [{"content": "!"}]}
  ]
}}`

func testPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	c := cfg.Default()
	c.Paths.Outputs = filepath.Join(dir, "outputs")
	c.Features.ChunkSeconds = 1
	c.Features.Workers = 2
	c.Clustering.K = 2
	return NewPipeline(c, nil), dir
}

func TestRunWritesSession(t *testing.T) {
	p, dir := testPipeline(t)
	audioPath := writeWAV(t, dir, 4)
	trPath := filepath.Join(dir, "transcript.json")
	if err := os.WriteFile(trPath, []byte(transcriptDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := p.Run(context.Background(), audioPath, trPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.HasPrefix(res.SessionID, "session_") || filepath.Dir(res.Dir) != p.cfg.Paths.Outputs {
		t.Errorf("session %q in %q", res.SessionID, res.Dir)
	}
	for _, name := range []string{"features.json", "clusters.json", "diarization.json"} {
		if _, err := os.Stat(filepath.Join(res.Dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	if res.Report.Chunks != 4 || len(res.Windows) != 4 {
		t.Fatalf("chunks=%d windows=%d, want 4", res.Report.Chunks, len(res.Windows))
	}
	if len(res.Clusters.Labels) != len(res.Features.Frames) {
		t.Errorf("%d labels for %d rows", len(res.Clusters.Labels), len(res.Features.Frames))
	}
	wantSpeakers := []string{"spk_0", "spk_0", "spk_1", "spk_1"}
	for i, w := range res.Windows {
		if w.Speaker != wantSpeakers[i] {
			t.Errorf("window %d speaker = %q, want %q", i, w.Speaker, wantSpeakers[i])
		}
		if w.Cluster < -1 || w.Cluster >= 2 {
			t.Errorf("window %d cluster = %d", i, w.Cluster)
		}
	}
	if len(res.Diarization.Utterances) != 2 {
		t.Errorf("utterances = %+v", res.Diarization.Utterances)
	}

	raw, err := os.ReadFile(filepath.Join(res.Dir, "clusters.json"))
	if err != nil {
		t.Fatal(err)
	}
	var bundle PersistBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		t.Fatal(err)
	}
	if bundle.SessionID != res.SessionID || bundle.AudioPath != audioPath || len(bundle.Windows) != 4 || bundle.K != 2 {
		t.Errorf("bundle = %+v", bundle)
	}
}

func TestRunWithoutTranscript(t *testing.T) {
	p, dir := testPipeline(t)
	res, err := p.Run(context.Background(), writeWAV(t, dir, 3), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Diarization != nil || res.Share != nil {
		t.Error("diarization present without transcript")
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "diarization.json")); !os.IsNotExist(err) {
		t.Errorf("diarization.json stat err = %v, want not exist", err)
	}
}

func TestRunPostsToVisualization(t *testing.T) {
	var (
		mu   sync.Mutex
		hits = map[string]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		_, _ = w.Write([]byte(`{"Status": "ok", "Path": "out.png"}`))
	}))
	defer srv.Close()

	p, dir := testPipeline(t)
	p.cfg.Services.Visualization.URL = srv.URL
	trPath := filepath.Join(dir, "transcript.json")
	if err := os.WriteFile(trPath, []byte(transcriptDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), writeWAV(t, dir, 2), trPath); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if hits["/generate-timeline"] != 1 || hits["/generate-radar"] != 1 {
		t.Errorf("hits = %v", hits)
	}
}

func TestRunErrors(t *testing.T) {
	p, dir := testPipeline(t)
	notAudio := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notAudio, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	badTranscript := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(badTranscript, []byte(`{"results": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	audioPath := writeWAV(t, dir, 2)

	tests := []struct {
		name       string
		audio, trn string
	}{
		{"missing audio", filepath.Join(dir, "nope.wav"), ""},
		{"not audio", notAudio, ""},
		{"bad transcript", audioPath, badTranscript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Run(context.Background(), tt.audio, tt.trn); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadAudioAugments(t *testing.T) {
	p, dir := testPipeline(t)
	path := writeWAV(t, dir, 2)

	plain, err := p.LoadAudio(path)
	if err != nil {
		t.Fatal(err)
	}
	p.cfg.Features.Stretch = 0.8
	p.cfg.Features.PitchSteps = -3
	p.cfg.Features.NoiseLevel = 0.01
	aug, err := p.LoadAudio(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := int(math.Round(float64(len(plain.Samples)) / 0.8)); len(aug.Samples) != want {
		t.Errorf("augmented len = %d, want %d", len(aug.Samples), want)
	}
	if aug.SampleRate != plain.SampleRate {
		t.Errorf("rate = %d, want %d", aug.SampleRate, plain.SampleRate)
	}

	p.cfg.Features.Stretch = math.Inf(1)
	if _, err := p.LoadAudio(path); err == nil {
		t.Error("expected error for infinite stretch")
	}
}

func TestAggregate(t *testing.T) {
	w := Window{
		T0: 0, T1: 10,
		Utts: []transcript.Utterance{
			{Speaker: "a", Start: -2, End: 4},
			{Speaker: "b", Start: 3, End: 6},
			{Speaker: "a", Start: 6, End: 8},
		},
	}
	aggregate(&w)
	// a speaks 4+2 s, b 3 s, overlap [3, 4)
	if math.Abs(w.SpeakingShare["a"]-6.0/9) > 1e-12 || math.Abs(w.SpeakingShare["b"]-3.0/9) > 1e-12 {
		t.Errorf("share = %v", w.SpeakingShare)
	}
	if math.Abs(w.OverlapRate-0.1) > 1e-12 {
		t.Errorf("overlap = %v, want 0.1", w.OverlapRate)
	}

	empty := Window{T0: 0, T1: 1}
	aggregate(&empty)
	if empty.SpeakingShare != nil || empty.OverlapRate != 0 {
		t.Errorf("empty window aggregated: %+v", empty)
	}
}
