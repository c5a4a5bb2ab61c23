package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ekjot25/Audio-Analysis/features"
	"github.com/ekjot25/Audio-Analysis/transcript"
)

type PersistBundle struct {
	SessionID   string             `json:"session_id"`
	AudioPath   string             `json:"audio_path"`
	GeneratedAt time.Time          `json:"generated_at"`
	Duration    float64            `json:"duration_sec"`
	Windows     []Window           `json:"windows"`
	Clusters    []int              `json:"clusters"`
	K           int                `json:"k"`
	Centroids   [][]float64        `json:"centroids"`
	Inertia     float64            `json:"inertia"`
	Share       map[string]float64 `json:"speaking_share,omitempty"`
}

type featureBundle struct {
	SessionID string          `json:"session_id"`
	Matrix    features.Matrix `json:"matrix"`
	Report    features.Report `json:"report"`
}

type diarizationBundle struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	transcript.Result
}

func mkSessionDir(outputsRoot string, now time.Time) (string, string, error) {
	ts := now.Format("20060102-150405")
	sid := "session_" + ts + "_" + uuid.NewString()[:8]
	dir := filepath.Join(outputsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return sid, dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// persist writes features.json, clusters.json and, when a transcript was
// aligned, diarization.json into a fresh session directory.
func persist(outputsRoot, audioPath, transcriptPath string, res *Result, now time.Time) error {
	sid, outDir, err := mkSessionDir(outputsRoot, now)
	if err != nil {
		return err
	}
	res.SessionID, res.Dir = sid, outDir

	if err = writeJSON(filepath.Join(outDir, "features.json"), featureBundle{
		SessionID: sid,
		Matrix:    res.Features,
		Report:    res.Report,
	}); err != nil {
		return err
	}

	bundle := PersistBundle{
		SessionID:   sid,
		AudioPath:   audioPath,
		GeneratedAt: now,
		Duration:    res.Duration,
		Windows:     res.Windows,
		Clusters:    res.Clusters.Labels,
		K:           res.Clusters.K,
		Centroids:   res.Clusters.Centroids,
		Inertia:     res.Clusters.Inertia,
		Share:       res.Share,
	}
	if err = writeJSON(filepath.Join(outDir, "clusters.json"), bundle); err != nil {
		return err
	}

	if res.Diarization != nil {
		if err = writeJSON(filepath.Join(outDir, "diarization.json"), diarizationBundle{
			SessionID:      sid,
			TranscriptPath: transcriptPath,
			Result:         *res.Diarization,
		}); err != nil {
			return err
		}
	}
	return nil
}
