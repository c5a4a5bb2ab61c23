package transcript

import (
	"math"
	"slices"
)

// Track is a speaker id per sample, built from utterances. Speakers holds
// the labels sorted, so Labels[i] indexes into it; -1 marks uncovered
// samples.
type Track struct {
	Speakers   []string
	Labels     []int
	SampleRate int
}

// SpeakerTrack rasterises utterances at sampleRate samples per second. The
// track ends at the latest utterance end. Where utterances overlap the later
// one wins.
func SpeakerTrack(utts []Utterance, sampleRate int) Track {
	t := Track{SampleRate: sampleRate}
	if sampleRate <= 0 || len(utts) == 0 {
		return t
	}

	ids := map[string]int{}
	var last float64
	for _, u := range utts {
		ids[u.Speaker] = 0
		last = math.Max(last, u.End)
	}
	for s := range ids {
		t.Speakers = append(t.Speakers, s)
	}
	slices.Sort(t.Speakers)
	for i, s := range t.Speakers {
		ids[s] = i
	}

	t.Labels = make([]int, int(last*float64(sampleRate)))
	for i := range t.Labels {
		t.Labels[i] = -1
	}
	for _, u := range utts {
		lo, hi := t.span(u.Start, u.End)
		for i := lo; i < hi; i++ {
			t.Labels[i] = ids[u.Speaker]
		}
	}
	return t
}

// span converts a time window to a clamped sample range.
func (t Track) span(t0, t1 float64) (int, int) {
	lo := max(int(t0*float64(t.SampleRate)), 0)
	hi := min(int(t1*float64(t.SampleRate)), len(t.Labels))
	return lo, max(lo, hi)
}

// Dominant returns the speaker covering most samples in [t0, t1). It
// reports false when no utterance covers the window. Ties go to the speaker
// that sorts first.
func (t Track) Dominant(t0, t1 float64) (string, bool) {
	lo, hi := t.span(t0, t1)
	if lo >= hi {
		return "", false
	}
	counts := make([]int, len(t.Speakers))
	for _, l := range t.Labels[lo:hi] {
		if l >= 0 {
			counts[l]++
		}
	}
	best := slices.Index(counts, slices.Max(counts))
	if counts[best] == 0 {
		return "", false
	}
	return t.Speakers[best], true
}

// Share returns the fraction of covered samples attributed to each speaker.
func (t Track) Share() map[string]float64 {
	counts := make([]int, len(t.Speakers))
	var covered int
	for _, l := range t.Labels {
		if l >= 0 {
			counts[l]++
			covered++
		}
	}
	share := make(map[string]float64, len(t.Speakers))
	for i, s := range t.Speakers {
		if covered > 0 {
			share[s] = float64(counts[i]) / float64(covered)
		} else {
			share[s] = 0
		}
	}
	return share
}
