// Package vecindex provides the in-process nearest-neighbor index over
// question embeddings, scoped per contest, plus the pending-entry tracker
// and snapshot persistence that keep it reconciled with storage.
package vecindex

import (
	"errors"
	"math"
	"sort"
	"sync"
)

// Index errors.
var (
	ErrDimensionMismatch = errors.New("vector has wrong dimensions")
	ErrEmptyVector       = errors.New("vector has zero magnitude")
)

// Match is a nearest-neighbor search hit.
type Match struct {
	QuestionID string
	Similarity float64 // cosine similarity in [-1, 1]
}

// Index is a thread-safe flat cosine-similarity index. Vectors are
// normalized on insert so queries reduce to dot products. Exhaustive scan is
// deliberate: a contest holds thousands of questions, not millions, and a
// flat scan at that scale is faster than maintaining graph structures.
type Index struct {
	mu       sync.RWMutex
	dims     int
	contests map[string]map[string][]float32 // contestID -> questionID -> unit vector
	owner    map[string]string               // questionID -> contestID
}

// New creates an empty index for vectors of the given dimensionality.
func New(dims int) *Index {
	return &Index{
		dims:     dims,
		contests: make(map[string]map[string][]float32),
		owner:    make(map[string]string),
	}
}

// Upsert inserts or replaces the vector for a question within a contest.
func (x *Index) Upsert(contestID, questionID string, vector []float32) error {
	if len(vector) != x.dims {
		return ErrDimensionMismatch
	}
	unit, ok := normalize(vector)
	if !ok {
		return ErrEmptyVector
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// A re-embedded question stays in its original contest; drop any stale
	// entry before inserting.
	if prev, exists := x.owner[questionID]; exists && prev != contestID {
		delete(x.contests[prev], questionID)
	}
	if x.contests[contestID] == nil {
		x.contests[contestID] = make(map[string][]float32)
	}
	x.contests[contestID][questionID] = unit
	x.owner[questionID] = contestID
	return nil
}

// Remove deletes a question's vector, if present.
func (x *Index) Remove(questionID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	contestID, ok := x.owner[questionID]
	if !ok {
		return
	}
	delete(x.contests[contestID], questionID)
	delete(x.owner, questionID)
	if len(x.contests[contestID]) == 0 {
		delete(x.contests, contestID)
	}
}

// Query returns the k most similar questions in the contest, ordered by
// similarity descending with question id as the deterministic tie-break.
func (x *Index) Query(contestID string, vector []float32, k int) ([]Match, error) {
	if len(vector) != x.dims {
		return nil, ErrDimensionMismatch
	}
	unit, ok := normalize(vector)
	if !ok {
		return nil, ErrEmptyVector
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	entries := x.contests[contestID]
	matches := make([]Match, 0, len(entries))
	for id, v := range entries {
		matches = append(matches, Match{QuestionID: id, Similarity: dot(unit, v)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].QuestionID < matches[j].QuestionID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Size returns the number of indexed vectors for a contest.
func (x *Index) Size(contestID string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.contests[contestID])
}

// TotalSize returns the number of indexed vectors across all contests.
func (x *Index) TotalSize() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.owner)
}

func normalize(v []float32) ([]float32, bool) {
	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		return nil, false
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out, true
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
