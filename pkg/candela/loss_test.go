package candela

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceLossUniformReadouts(t *testing.T) {
	// Uniform scores give every valid position a loss of log(typeCnt), and
	// the token-weighted mean keeps that value regardless of batch
	// composition.
	B, T, V := 2, 3, 5
	readouts := make([]float64, B*T*V)
	targets := []int32{1, 2, 3, 4, 0, 0}
	seqLen := []int{3, 1}
	loss := SequenceLoss(readouts, targets, seqLen, V)
	assert.InDelta(t, math.Log(5), loss, 1e-12)
}

func TestSequenceLossPaddingInvariance(t *testing.T) {
	B, T, V := 2, 4, 6
	rng := rand.New(rand.NewSource(7))
	readouts := make([]float64, B*T*V)
	for i := range readouts {
		readouts[i] = rng.NormFloat64()
	}
	targets := make([]int32, B*T)
	for i := range targets {
		targets[i] = int32(rng.Intn(V))
	}
	seqLen := []int{3, 2}
	want := SequenceLoss(readouts, targets, seqLen, V)

	// Scribble over everything beyond each example's true length.
	for b := 0; b < B; b++ {
		for pos := seqLen[b]; pos < T; pos++ {
			targets[b*T+pos] = int32(rng.Intn(V))
			for v := 0; v < V; v++ {
				readouts[(b*T+pos)*V+v] = rng.NormFloat64() * 100
			}
		}
	}
	got := SequenceLoss(readouts, targets, seqLen, V)
	assert.Equal(t, want, got)
}

func TestSequenceLossTokenWeighted(t *testing.T) {
	// One example with a certain prediction, one with a uniform one: the
	// normalizer is the total valid token count, not the example count.
	V := 2
	readouts := []float64{
		50, 0, // b=0, t=0: near-certain class 0
		0, 0, // b=0, t=1: padding
		0, 0, // b=1, t=0: uniform
		0, 0, // b=1, t=1: uniform
	}
	targets := []int32{0, 0, 0, 0}
	loss := SequenceLoss(readouts, targets, []int{1, 2}, V)
	want := (0.0 + 2*math.Log(2)) / 3.0
	assert.InDelta(t, want, loss, 1e-9)
}

func TestPhraseAttentionLossExactMatch(t *testing.T) {
	// Probabilities exactly equal to the binary targets give zero loss.
	ind := []float64{1, 0, 0, 1}
	probs := []float64{1, 0, 0, 1}
	mask := []float64{1, 1, 1, 1}
	assert.InDelta(t, 0.0, PhraseAttentionLoss(ind, probs, mask), 1e-12)
}

func TestPhraseAttentionLossKnownValue(t *testing.T) {
	ind := []float64{1, 0}
	probs := []float64{0.5, 0.25}
	mask := []float64{1, 1}
	want := (-math.Log(0.5) - math.Log(0.75)) / 2
	assert.InDelta(t, want, PhraseAttentionLoss(ind, probs, mask), 1e-12)
}

func TestPhraseAttentionLossMaskZeroesInvalidPairs(t *testing.T) {
	ind := []float64{1, 0, 1, 1}
	probs := []float64{0.5, 0.25, 0.0, 0.0} // masked pairs hold garbage
	mask := []float64{1, 1, 0, 0}
	want := (-math.Log(0.5) - math.Log(0.75)) / 2
	assert.InDelta(t, want, PhraseAttentionLoss(ind, probs, mask), 1e-12)
}

func TestPerplexityUniformReadouts(t *testing.T) {
	B, T, V := 2, 3, 5
	readouts := make([]float64, B*T*V)
	targets := make([]int32, B*T)
	ppl := Perplexity(readouts, targets, []int{3, 2}, V)
	assert.InDelta(t, 5.0, ppl, 1e-9)
}

func TestPerplexityClampsAdversarialReadouts(t *testing.T) {
	// The target class gets a huge negative score: without the clamp the
	// per-example value would overflow any sensible average.
	B, T, V := 1, 1, 5
	readouts := make([]float64, B*T*V)
	readouts[2] = -1e6
	targets := []int32{2}
	ppl := Perplexity(readouts, targets, []int{1}, V)
	assert.InDelta(t, math.Exp(PPLClampCeiling), ppl, 1e-9)
}

func TestPerplexityBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	B, T, V := 4, 6, 9
	readouts := make([]float64, B*T*V)
	for i := range readouts {
		readouts[i] = rng.NormFloat64() * 1e4
	}
	targets := make([]int32, B*T)
	for i := range targets {
		targets[i] = int32(rng.Intn(V))
	}
	ppl := Perplexity(readouts, targets, []int{6, 3, 1, 5}, V)
	require.False(t, math.IsNaN(ppl))
	assert.GreaterOrEqual(t, ppl, 1.0)
	assert.LessOrEqual(t, ppl, math.Exp(PPLClampCeiling))
}

func TestPerplexityRejectsZeroLengthByContract(t *testing.T) {
	// A zero-length example is a caller-guaranteed-nonzero precondition of
	// the metric itself; the batch contract is where it is enforced.
	batch := validTestBatch()
	batch.DecInputLen[0] = 0
	require.Error(t, batch.Validate())
}
