package sqlitevec

import (
	"fmt"
	"math"
	"sort"
)

// ivfIndex is an inverted-file index over unit-normalized vectors. Vectors
// are clustered with spherical k-means; a query probes only the partitions
// whose centroids score best, trading a little recall for a large reduction
// in scanned rows.
//
// The index is an immutable snapshot: builtAt records the newest created_at
// it covers, and the store scans newer rows exactly.
type ivfIndex struct {
	dimensions int
	centroids  [][]float32
	lists      [][]int
	ids        []string
	vectors    [][]float32
	builtAt    int64
}

// ivfHit is one candidate returned by an index probe.
type ivfHit struct {
	ID    string
	Score float32
}

const kmeansIterations = 10

// buildIVF clusters the given vectors into partitions and returns a ready
// index. Vectors are normalized once at build time so that dot product
// equals cosine similarity during probes.
func buildIVF(dimensions, partitions int, ids []string, vectors [][]float32, builtAt int64) (*ivfIndex, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("ids/vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("cannot build index over empty corpus")
	}
	if partitions < 1 || partitions > len(vectors) {
		return nil, fmt.Errorf("invalid partition count %d for %d vectors", partitions, len(vectors))
	}

	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dimensions {
			return nil, fmt.Errorf("vector %d has %d dimensions, want %d", i, len(v), dimensions)
		}
		normalized[i] = normalize(v)
	}

	centroids := kmeans(normalized, partitions, dimensions)

	lists := make([][]int, len(centroids))
	for i, v := range normalized {
		c := nearestCentroid(v, centroids)
		lists[c] = append(lists[c], i)
	}

	return &ivfIndex{
		dimensions: dimensions,
		centroids:  centroids,
		lists:      lists,
		ids:        ids,
		vectors:    normalized,
		builtAt:    builtAt,
	}, nil
}

// search probes the best-scoring partitions and returns up to k hits ordered
// by descending cosine similarity.
func (x *ivfIndex) search(query []float32, k int) []ivfHit {
	if len(query) != x.dimensions || k <= 0 {
		return nil
	}
	q := normalize(query)

	// Rank partitions by centroid similarity.
	type centroidScore struct {
		index int
		score float32
	}
	scores := make([]centroidScore, len(x.centroids))
	for i, c := range x.centroids {
		scores[i] = centroidScore{index: i, score: dot(q, c)}
	}
	sort.Slice(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	probes := x.nprobe()
	var hits []ivfHit
	for _, cs := range scores[:probes] {
		for _, entry := range x.lists[cs.index] {
			hits = append(hits, ivfHit{
				ID:    x.ids[entry],
				Score: dot(q, x.vectors[entry]),
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// nprobe scales the probed partition count with the partition count, always
// probing at least one list.
func (x *ivfIndex) nprobe() int {
	n := 1
	for n*n < len(x.centroids) {
		n++
	}
	if n > len(x.centroids) {
		n = len(x.centroids)
	}
	return n
}

// kmeans runs spherical k-means: centroids are re-normalized after every
// update so assignment by dot product stays a cosine assignment.
func kmeans(vectors [][]float32, k, dimensions int) [][]float32 {
	// Seed centroids from evenly spaced samples. Deterministic seeding keeps
	// index builds reproducible for the same corpus.
	centroids := make([][]float32, k)
	step := len(vectors) / k
	for i := range centroids {
		centroids[i] = append([]float32(nil), vectors[i*step]...)
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, v := range vectors {
			c := nearestCentroid(v, centroids)
			if assignments[i] != c {
				assignments[i] = c
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float32, dimensions)
		}
		for i, v := range vectors {
			c := assignments[i]
			counts[c]++
			for d, val := range v {
				sums[c][d] += val
			}
		}
		for i := range centroids {
			if counts[i] == 0 {
				// Empty cluster keeps its previous centroid.
				continue
			}
			centroids[i] = normalize(sums[i])
		}
	}

	return centroids
}

// nearestCentroid returns the index of the centroid with the highest dot
// product against v.
func nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestScore := float32(math.Inf(-1))
	for i, c := range centroids {
		if s := dot(v, c); s > bestScore {
			best = i
			bestScore = s
		}
	}
	return best
}

// normalize returns a unit-length copy of v. A zero vector is returned
// unchanged so it scores 0 against everything.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
