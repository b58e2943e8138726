package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, Sigmoid(0), 1e-12)
	assert.InDelta(t, 1.0, Sigmoid(50), 1e-12)
	assert.InDelta(t, 0.0, Sigmoid(-50), 1e-12)
}

func TestLinearForward(t *testing.T) {
	// out = inp * W^T + b with W = [[1,2],[3,4]], b = [0.5,-0.5], inp = [1,1].
	out := make([]float64, 2)
	LinearForward(out, []float64{1, 1}, []float64{1, 2, 3, 4}, []float64{0.5, -0.5}, 1, 2, 2)
	assert.InDelta(t, 3.5, out[0], 1e-12)
	assert.InDelta(t, 6.5, out[1], 1e-12)
}

func TestLinearForwardNilBias(t *testing.T) {
	out := make([]float64, 1)
	LinearForward(out, []float64{2, 3}, []float64{4, 5}, nil, 1, 2, 1)
	assert.InDelta(t, 23.0, out[0], 1e-12)
}

func TestGRUForwardZeroWeights(t *testing.T) {
	// With all weights and biases zero, both gates sit at 0.5 and the
	// candidate state is tanh(0) = 0, so hNext = 0.5 * hPrev.
	B, I, H := 1, 2, 2
	zeroWI := make([]float64, H*I)
	zeroWH := make([]float64, H*H)
	zeroB := make([]float64, H)
	hPrev := []float64{1.0, -2.0}
	hNext := make([]float64, H)
	GRUForward(hNext, []float64{3, 4}, hPrev,
		zeroWI, zeroWH, zeroB,
		zeroWI, zeroWH, zeroB,
		zeroWI, zeroWH, zeroB,
		B, I, H)
	assert.InDelta(t, 0.5, hNext[0], 1e-12)
	assert.InDelta(t, -1.0, hNext[1], 1e-12)
}

func TestMaskedSoftmaxForward(t *testing.T) {
	// Only the first two slots are valid; the huge score in the padded slot
	// must not leak into the normalizer.
	probs := make([]float64, 3)
	MaskedSoftmaxForward(probs, []float64{0, 0, 50}, []int{2}, 1, 3)
	assert.InDelta(t, 0.5, probs[0], 1e-12)
	assert.InDelta(t, 0.5, probs[1], 1e-12)
	assert.Equal(t, 0.0, probs[2])
}

func TestMaskedSoftmaxForwardSumsToOne(t *testing.T) {
	scores := []float64{1.5, -2.0, 0.25, 3.0, 0.5, 1.0, -1.0, 2.0}
	probs := make([]float64, len(scores))
	MaskedSoftmaxForward(probs, scores, []int{3, 4}, 2, 4)
	var sum0, sum1 float64
	for k := 0; k < 4; k++ {
		sum0 += probs[k]
		sum1 += probs[4+k]
	}
	assert.InDelta(t, 1.0, sum0, 1e-12)
	assert.InDelta(t, 1.0, sum1, 1e-12)
	assert.Equal(t, 0.0, probs[3])
}

func TestBilinearScoreForward(t *testing.T) {
	// Identity weight reduces the general score to a plain dot product.
	identity := []float64{1, 0, 0, 1}
	memory := []float64{1, 0, 0, 1, 2, 2} // (1, 3, 2)
	query := []float64{3, 4}
	scores := make([]float64, 3)
	BilinearScoreForward(scores, query, memory, identity, 1, 3, 2, 2)
	assert.InDelta(t, 3.0, scores[0], 1e-12)
	assert.InDelta(t, 4.0, scores[1], 1e-12)
	assert.InDelta(t, 14.0, scores[2], 1e-12)
}

func TestAttnContextForward(t *testing.T) {
	memory := []float64{1, 0, 0, 1} // (1, 2, 2)
	probs := []float64{0.25, 0.75}
	ctx := make([]float64, 2)
	AttnContextForward(ctx, probs, memory, 1, 2, 2)
	assert.InDelta(t, 0.25, ctx[0], 1e-12)
	assert.InDelta(t, 0.75, ctx[1], 1e-12)
}

func TestGRUForwardDeterministic(t *testing.T) {
	B, I, H := 2, 3, 4
	wi := make([]float64, H*I)
	wh := make([]float64, H*H)
	bias := make([]float64, H)
	for i := range wi {
		wi[i] = math.Sin(float64(i))
	}
	for i := range wh {
		wh[i] = math.Cos(float64(i))
	}
	x := []float64{1, 2, 3, 4, 5, 6}
	hPrev := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
	a := make([]float64, B*H)
	b := make([]float64, B*H)
	GRUForward(a, x, hPrev, wi, wh, bias, wi, wh, bias, wi, wh, bias, B, I, H)
	GRUForward(b, x, hPrev, wi, wh, bias, wi, wh, bias, wi, wh, bias, B, I, H)
	require.Equal(t, a, b)
}
