package nn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Embedding is a word-embedding table shared by reference across model
// components: every component that holds a *Embedding sees the same backing
// weights, so an update applied through one holder is visible to all.
type Embedding struct {
	// Weights is the table data, (VocabSize, Dim) row-major.
	Weights []float64
	// VocabSize is the number of rows.
	VocabSize int
	// Dim is the width of each row.
	Dim int
	// PadID is the token id whose row is pinned to the zero vector.
	PadID int32
}

// NewEmbedding wraps a pretrained weight table. The row for padID is zeroed
// so that padded positions embed to the zero vector and cannot distort
// bag-of-subtoken sums; pass a negative padID to skip the pinning.
func NewEmbedding(weights []float64, vocabSize, dim int, padID int32) (*Embedding, error) {
	if len(weights) != vocabSize*dim {
		return nil, fmt.Errorf("embedding weights have %d values, want %d (%d x %d)",
			len(weights), vocabSize*dim, vocabSize, dim)
	}
	e := &Embedding{
		Weights:   weights,
		VocabSize: vocabSize,
		Dim:       dim,
		PadID:     padID,
	}
	e.ZeroPadRow()
	return e, nil
}

// ZeroPadRow re-pins the padding row to the zero vector. Call after bulk
// overwriting Weights (e.g. when loading a checkpoint).
func (e *Embedding) ZeroPadRow() {
	if e.PadID < 0 {
		return
	}
	row := e.Row(e.PadID)
	for i := range row {
		row[i] = 0.0
	}
}

// Row returns the embedding vector for id as a view into the table.
func (e *Embedding) Row(id int32) []float64 {
	return e.Weights[int(id)*e.Dim : int(id)*e.Dim+e.Dim]
}

// EmbedForward copies the embedding row of each id into out (len(ids), Dim).
func (e *Embedding) EmbedForward(out []float64, ids []int32) {
	for n, id := range ids {
		copy(out[n*e.Dim:n*e.Dim+e.Dim], e.Row(id))
	}
}

// BagSumForward embeds each group of groupSize sub-token ids and reduces the
// group by summation: ids is (n, groupSize), out is (n, Dim). The sum makes
// the result invariant to sub-token order within a group, while groups keep
// their slot order. Padding ids inside a group add the zero vector.
func (e *Embedding) BagSumForward(out []float64, ids []int32, n, groupSize int) {
	for g := 0; g < n; g++ {
		dst := out[g*e.Dim : g*e.Dim+e.Dim]
		for i := range dst {
			dst[i] = 0.0
		}
		for s := 0; s < groupSize; s++ {
			floats.Add(dst, e.Row(ids[g*groupSize+s]))
		}
	}
}
