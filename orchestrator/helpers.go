package orchestrator

import (
	"math"
	"sort"

	"github.com/ekjot25/Audio-Analysis/cluster"
	"github.com/ekjot25/Audio-Analysis/features"
	"github.com/ekjot25/Audio-Analysis/transcript"
)

// trackRate is the resolution, in labels per second, of the speaker track
// used to find the dominant speaker of a chunk.
const trackRate = 100

// window lays the chunks out on the timeline and attaches the cluster label
// of every kept chunk and the utterances overlapping it.
func (p *Pipeline) window(chunks int, m features.Matrix, asg cluster.Assignment, utts []transcript.Utterance) []Window {
	if chunks == 0 {
		return nil
	}
	labels := map[int]int{}
	for row, idx := range m.Indices() {
		labels[idx] = asg.Labels[row]
	}
	track := transcript.SpeakerTrack(utts, trackRate)
	step := p.cfg.Features.ChunkSeconds

	out := make([]Window, 0, chunks)
	for i := 0; i < chunks; i++ {
		t0 := float64(i) * step
		t1 := t0 + step
		w := Window{Chunk: i, T0: t0, T1: t1, Cluster: -1}
		if l, ok := labels[i]; ok {
			w.Cluster = l
		}
		w.Speaker, _ = track.Dominant(t0, t1)
		for _, u := range utts {
			if u.End <= t0 || u.Start >= t1 {
				continue
			}
			w.Utts = append(w.Utts, u)
		}
		out = append(out, w)
	}
	return out
}

// aggregate fills the speaking share and the overlap rate of w from the
// utterances clipped to the window.
func aggregate(w *Window) {
	if len(w.Utts) == 0 {
		return
	}
	total := 0.0
	w.SpeakingShare = map[string]float64{}
	type edge struct {
		t     float64
		delta int
	}
	var edges []edge
	for _, u := range w.Utts {
		s, e := math.Max(u.Start, w.T0), math.Min(u.End, w.T1)
		d := math.Max(0, e-s)
		total += d
		w.SpeakingShare[u.Speaker] += d
		edges = append(edges, edge{t: s, delta: +1}, edge{t: e, delta: -1})
	}
	// ends sort before starts at the same instant so touching utterances
	// do not count as overlap
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].t != edges[j].t {
			return edges[i].t < edges[j].t
		}
		return edges[i].delta < edges[j].delta
	})
	active := 0
	last := edges[0].t
	overlap := 0.0
	for _, e := range edges {
		if active > 1 {
			overlap += e.t - last
		}
		active += e.delta
		last = e.t
	}
	if total > 0 {
		for k := range w.SpeakingShare {
			w.SpeakingShare[k] /= total
		}
	}
	winDur := w.T1 - w.T0
	if winDur > 0 {
		w.OverlapRate = overlap / winDur
	}
}

// timeline flattens the windows into the visualization request columns.
func timeline(windows []Window) (ts []float64, clusters []int, speakers []string) {
	for _, w := range windows {
		ts = append(ts, w.T0)
		clusters = append(clusters, w.Cluster)
		speakers = append(speakers, w.Speaker)
	}
	return ts, clusters, speakers
}
