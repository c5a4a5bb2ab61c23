package orchestrator

import (
	"github.com/ekjot25/Audio-Analysis/cluster"
	"github.com/ekjot25/Audio-Analysis/features"
	"github.com/ekjot25/Audio-Analysis/transcript"
)

// Window is one feature chunk on the session timeline.
type Window struct {
	Chunk   int                    `json:"chunk"`
	T0      float64                `json:"t0"`      // sec
	T1      float64                `json:"t1"`      // sec
	Cluster int                    `json:"cluster"` // -1 when the chunk was dropped
	Speaker string                 `json:"speaker,omitempty"`
	Utts    []transcript.Utterance `json:"-"`
	// Aggregates
	SpeakingShare map[string]float64 `json:"speaking_share,omitempty"` // per speaker %
	OverlapRate   float64            `json:"overlap_rate"`
}

// Result is everything one Run produced.
type Result struct {
	SessionID   string
	Dir         string
	Duration    float64
	Features    features.Matrix
	Report      features.Report
	Clusters    cluster.Assignment
	Diarization *transcript.Result
	Windows     []Window
	// Share is the speaking share over the whole session.
	Share map[string]float64
}
