package clients

import (
	"context"
	"strings"
)

// --- Visualization ---

// TimelineReq is one point per chunk: its start time, cluster id and the
// speaker who dominated it ("" when unknown).
type TimelineReq struct {
	Timestamps []float64 `json:"timestamps"`
	Clusters   []int     `json:"clusters"`
	Speakers   []string  `json:"speakers,omitempty"`
	OutputDir  string    `json:"output_dir,omitempty"`
}

type TimelineResp struct{ Status, Path string }

func (h *HTTP) GenerateTimeline(ctx context.Context, url string, req TimelineReq) (*TimelineResp, error) {
	var out TimelineResp
	if err := h.postJSON(ctx, endpoint(url, "generate-timeline"), "viz timeline", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RadarReq plots one value per category, e.g. the speaking share of every
// speaker in a session.
type RadarReq struct {
	Categories []string  `json:"categories"`
	Values     []float64 `json:"values"`
	Title      string    `json:"title"`
	OutputDir  string    `json:"output_dir,omitempty"`
}
type RadarResp struct{ Status, Path string }

func (h *HTTP) GenerateRadar(ctx context.Context, url string, req RadarReq) (*RadarResp, error) {
	var out RadarResp
	if err := h.postJSON(ctx, endpoint(url, "generate-radar"), "viz radar", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + path
}
