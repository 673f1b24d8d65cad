// Package vecmath holds the similarity helpers shared by the brute-force
// vector stores.
package vecmath

import (
	"math"
	"sort"

	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
)

// CosineDistance returns 1 - cos(a, b) in [0, 2]. A zero vector is at
// distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	return math.Max(0, math.Min(2, d))
}

// Rank sorts hits by distance ascending, newest first on ties, and keeps k.
// Distances beyond 1 all score zero, so they tie and order by recency.
func Rank(hits []driven.VectorHit, k int) []driven.VectorHit {
	sort.SliceStable(hits, func(i, j int) bool {
		di, dj := math.Min(hits[i].Distance, 1), math.Min(hits[j].Distance, 1)
		if di != dj {
			return di < dj
		}
		return hits[i].Seq > hits[j].Seq
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
