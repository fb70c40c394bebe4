package sqlitevec

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
)

func TestNumPartitions(t *testing.T) {
	tests := []struct {
		count int
		want  int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{4, 2},
		{100, 10},
		{512, 23},
		{10000, 100},
		{100000, 256},  // capped
		{1000000, 256}, // capped
	}

	for _, tt := range tests {
		if got := numPartitions(tt.count); got != tt.want {
			t.Errorf("numPartitions(%d) = %d, want %d", tt.count, got, tt.want)
		}
	}

	// Never more partitions than rows.
	for _, count := range []int{1, 2, 3, 7, 50} {
		if got := numPartitions(count); got > count {
			t.Errorf("numPartitions(%d) = %d exceeds row count", count, got)
		}
	}
}

func TestBuildIVFValidation(t *testing.T) {
	if _, err := buildIVF(3, 1, nil, nil, 0); err == nil {
		t.Error("expected error for empty corpus")
	}
	if _, err := buildIVF(3, 2, []string{"a"}, [][]float32{{1, 0, 0}}, 0); err == nil {
		t.Error("expected error for partitions > rows")
	}
	if _, err := buildIVF(3, 1, []string{"a"}, [][]float32{{1, 0}}, 0); err == nil {
		t.Error("expected error for wrong vector dimension")
	}
	if _, err := buildIVF(3, 1, []string{"a", "b"}, [][]float32{{1, 0, 0}}, 0); err == nil {
		t.Error("expected error for ids/vectors length mismatch")
	}
}

func TestIVFSearchFindsExactMatch(t *testing.T) {
	const dims = 8
	rng := rand.New(rand.NewSource(42))

	var (
		ids     []string
		vectors [][]float32
	)
	for i := 0; i < 600; i++ {
		v := make([]float32, dims)
		for d := range v {
			v[d] = rng.Float32()*2 - 1
		}
		ids = append(ids, fmt.Sprintf("id-%d", i))
		vectors = append(vectors, v)
	}

	idx, err := buildIVF(dims, numPartitions(len(ids)), ids, vectors, 123)
	if err != nil {
		t.Fatalf("buildIVF: %v", err)
	}
	if idx.builtAt != 123 {
		t.Fatalf("builtAt = %d, want 123", idx.builtAt)
	}

	// Querying with a stored vector must return that vector first: the
	// probed partition always contains the vector's own cluster.
	hits := idx.search(vectors[17], 5)
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if hits[0].ID != "id-17" {
		t.Fatalf("top hit = %s, want id-17", hits[0].ID)
	}
	if hits[0].Score < 0.999 {
		t.Fatalf("self-similarity = %f, want 1.0", hits[0].Score)
	}

	for i := 1; i < len(hits); i++ {
		if hits[i-1].Score < hits[i].Score {
			t.Fatalf("hits not ordered: %f before %f", hits[i-1].Score, hits[i].Score)
		}
	}
}

func TestIVFSearchAgreesWithExactScan(t *testing.T) {
	const dims = 16
	rng := rand.New(rand.NewSource(7))

	var (
		ids     []string
		vectors [][]float32
	)
	for i := 0; i < 1000; i++ {
		v := make([]float32, dims)
		for d := range v {
			v[d] = rng.Float32()
		}
		ids = append(ids, fmt.Sprintf("id-%d", i))
		vectors = append(vectors, v)
	}

	idx, err := buildIVF(dims, numPartitions(len(ids)), ids, vectors, 0)
	if err != nil {
		t.Fatalf("buildIVF: %v", err)
	}

	// Exact brute-force top-10 over normalized vectors.
	query := make([]float32, dims)
	for d := range query {
		query[d] = rng.Float32()
	}
	q := normalize(query)
	exact := make(map[string]float32)
	for i, v := range vectors {
		exact[ids[i]] = dot(q, normalize(v))
	}

	hits := idx.search(query, 10)
	if len(hits) != 10 {
		t.Fatalf("got %d hits, want 10", len(hits))
	}

	// Approximate scores must equal the exact cosine for each returned id,
	// and recall should be reasonable given the probe count.
	for _, h := range hits {
		if math.Abs(float64(h.Score-exact[h.ID])) > 1e-5 {
			t.Errorf("score for %s = %f, exact = %f", h.ID, h.Score, exact[h.ID])
		}
	}
}

func TestNormalize(t *testing.T) {
	v := normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Fatalf("normalize(3,4) = %v", v)
	}

	// Zero vector stays zero instead of producing NaN.
	z := normalize([]float32{0, 0, 0})
	for _, f := range z {
		if f != 0 {
			t.Fatalf("normalize(zero) = %v", z)
		}
	}
}
