// Package cluster groups feature vectors with seeded k-means. It has no notion
// of speakers; labels only mean "acoustically similar".
package cluster

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// Config fixes the cluster count and makes runs reproducible.
type Config struct {
	K         int
	Seed      uint64
	MaxIter   int
	NInit     int
	Tolerance float64
}

// DefaultConfig returns three clusters seeded with 42.
func DefaultConfig() Config {
	return Config{K: 3, Seed: 42, MaxIter: 300, NInit: 10, Tolerance: 1e-4}
}

// Assignment maps every input row to a cluster id in [0, K).
type Assignment struct {
	Labels    []int       `json:"labels"`
	K         int         `json:"k"`
	Centroids [][]float64 `json:"centroids"`
	Inertia   float64     `json:"inertia"`
	Iter      int         `json:"iterations"`
}

// Sizes returns the number of rows in each cluster.
func (a Assignment) Sizes() []int {
	sizes := make([]int, a.K)
	for _, l := range a.Labels {
		sizes[l]++
	}
	return sizes
}

// ClusteringError reports input that k-means cannot partition.
type ClusteringError struct {
	Reason string
}

func (e *ClusteringError) Error() string {
	return "clustering: " + e.Reason
}

// Cluster partitions rows into cfg.K groups. It runs NInit k-means++ seeded
// restarts and keeps the one with the lowest inertia. The same rows and seed
// always produce the same labels.
func Cluster(rows [][]float64, cfg Config) (Assignment, error) {
	if err := validate(rows, cfg.K); err != nil {
		return Assignment{}, err
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = DefaultConfig().MaxIter
	}
	if cfg.NInit <= 0 {
		cfg.NInit = 1
	}

	scale := tolerance(rows, cfg.Tolerance)
	r := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d))

	var best Assignment
	for run := 0; run < cfg.NInit; run++ {
		a := lloyd(rows, seedCentroids(rows, cfg.K, r), cfg.MaxIter, scale)
		if run == 0 || a.Inertia < best.Inertia {
			best = a
		}
	}
	return best, nil
}

func validate(rows [][]float64, k int) error {
	if k < 1 {
		return &ClusteringError{Reason: fmt.Sprintf("cluster count must be positive, got %d", k)}
	}
	if len(rows) == 0 {
		return &ClusteringError{Reason: "empty feature matrix"}
	}
	width := len(rows[0])
	if width == 0 {
		return &ClusteringError{Reason: "feature rows are empty"}
	}
	distinct := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		if len(row) != width {
			return &ClusteringError{Reason: fmt.Sprintf("row %d has %d values, want %d", i, len(row), width)}
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &ClusteringError{Reason: fmt.Sprintf("row %d has non-finite values", i)}
			}
		}
		if len(distinct) < k {
			distinct[rowKey(row)] = struct{}{}
		}
	}
	if len(distinct) < k {
		return &ClusteringError{Reason: fmt.Sprintf("%d distinct rows, need at least %d", len(distinct), k)}
	}
	return nil
}

func rowKey(row []float64) string {
	b := make([]byte, 0, len(row)*8)
	for _, v := range row {
		b = strconv.AppendUint(b, math.Float64bits(v), 36)
		b = append(b, ',')
	}
	return string(b)
}

// tolerance scales the relative tolerance by the mean per-column variance.
func tolerance(rows [][]float64, tol float64) float64 {
	width := len(rows[0])
	n := float64(len(rows))
	mean := make([]float64, width)
	for _, row := range rows {
		floats.Add(mean, row)
	}
	floats.Scale(1/n, mean)
	var variance float64
	for _, row := range rows {
		for j, v := range row {
			d := v - mean[j]
			variance += d * d
		}
	}
	return tol * variance / (n * float64(width))
}

// seedCentroids picks k starting centroids with k-means++: each next centre is
// drawn with probability proportional to its squared distance to the closest
// centre chosen so far.
func seedCentroids(rows [][]float64, k int, r *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := rows[r.IntN(len(rows))]
	centroids = append(centroids, append([]float64(nil), first...))

	closest := make([]float64, len(rows))
	for i, row := range rows {
		closest[i] = sqDist(row, first)
	}
	for len(centroids) < k {
		total := floats.Sum(closest)
		pick := -1
		if total > 0 {
			target := r.Float64() * total
			for i, d := range closest {
				target -= d
				if target < 0 && d > 0 {
					pick = i
					break
				}
			}
		}
		if pick < 0 {
			// rounding left nothing picked; take the farthest row
			pick = floats.MaxIdx(closest)
		}
		c := append([]float64(nil), rows[pick]...)
		centroids = append(centroids, c)
		for i, row := range rows {
			closest[i] = math.Min(closest[i], sqDist(row, c))
		}
	}
	return centroids
}

func lloyd(rows [][]float64, centroids [][]float64, maxIter int, tol float64) Assignment {
	k := len(centroids)
	width := len(rows[0])
	labels := make([]int, len(rows))
	for i := range labels {
		labels[i] = -1
	}

	iter := 0
	for iter < maxIter {
		iter++
		changed := false
		for i, row := range rows {
			if l := nearest(row, centroids); l != labels[i] {
				labels[i] = l
				changed = true
			}
		}

		next := make([][]float64, k)
		counts := make([]int, k)
		for c := range next {
			next[c] = make([]float64, width)
		}
		for i, row := range rows {
			floats.Add(next[labels[i]], row)
			counts[labels[i]]++
		}
		var taken []int
		for c := range next {
			if counts[c] == 0 {
				// empty cluster: restart it on the row worst served by its centre
				far := farthest(rows, labels, centroids, taken)
				taken = append(taken, far)
				copy(next[c], rows[far])
				labels[far] = c
				changed = true
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}

		var shift float64
		for c := range next {
			shift += sqDist(next[c], centroids[c])
		}
		centroids = next
		if !changed || shift <= tol {
			break
		}
	}

	// final assignment against the settled centroids
	var inertia float64
	for i, row := range rows {
		labels[i] = nearest(row, centroids)
		inertia += sqDist(row, centroids[labels[i]])
	}
	return Assignment{Labels: labels, K: k, Centroids: centroids, Inertia: inertia, Iter: iter}
}

func nearest(row []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centre := range centroids {
		if d := sqDist(row, centre); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// farthest skips rows equal to one already used to restart a cluster in the
// same pass.
func farthest(rows [][]float64, labels []int, centroids [][]float64, taken []int) int {
	far, farDist := 0, -1.0
rows:
	for i, row := range rows {
		for _, j := range taken {
			if sqDist(row, rows[j]) == 0 {
				continue rows
			}
		}
		if d := sqDist(row, centroids[labels[i]]); d > farDist {
			far, farDist = i, d
		}
	}
	return far
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
