package nn

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Sigmoid returns the logistic function of x.
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// LinearForward computes out = inp * weight^T + bias for a batch of rows.
//
// Parameters:
//   - out: output matrix (B, OC)
//   - inp: input matrix (B, C)
//   - weight: weight matrix (OC, C)
//   - bias: bias vector (OC), may be nil
//   - B: batch size
//   - C: input dimension (number of features)
//   - OC: number of output channels
func LinearForward(out, inp, weight, bias []float64, B, C, OC int) {
	var wg sync.WaitGroup
	for b := 0; b < B; b++ {
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			inpB := inp[b*C : b*C+C]
			outB := out[b*OC : b*OC+OC]
			for o := 0; o < OC; o++ {
				var val float64
				if bias != nil {
					val = bias[o]
				}
				val += floats.Dot(weight[o*C:o*C+C], inpB)
				outB[o] = val
			}
		}(b)
	}
	wg.Wait()
}

// GRUForward advances a batch of GRU states by one step.
//
// x is the step input (B, I), hPrev the previous state (B, H) and hNext the
// new state (B, H). hNext must not alias hPrev. wz/wr/wh are (H, I) input
// weights, uz/ur/uh are (H, H) recurrent weights and bz/br/bh are (H) biases
// for the update gate, reset gate and candidate state respectively.
func GRUForward(hNext, x, hPrev, wz, uz, bz, wr, ur, br, wh, uh, bh []float64, B, I, H int) {
	var wg sync.WaitGroup
	for b := 0; b < B; b++ {
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			xB := x[b*I : b*I+I]
			hB := hPrev[b*H : b*H+H]
			outB := hNext[b*H : b*H+H]
			z := make([]float64, H)
			r := make([]float64, H)
			for j := 0; j < H; j++ {
				z[j] = Sigmoid(floats.Dot(wz[j*I:j*I+I], xB) + floats.Dot(uz[j*H:j*H+H], hB) + bz[j])
				r[j] = Sigmoid(floats.Dot(wr[j*I:j*I+I], xB) + floats.Dot(ur[j*H:j*H+H], hB) + br[j])
			}
			rh := make([]float64, H)
			floats.MulTo(rh, r, hB)
			for j := 0; j < H; j++ {
				cand := math.Tanh(floats.Dot(wh[j*I:j*I+I], xB) + floats.Dot(uh[j*H:j*H+H], rh) + bh[j])
				outB[j] = (1.0-z[j])*cand + z[j]*hB[j]
			}
		}(b)
	}
	wg.Wait()
}

// BilinearScoreForward fills scores (B, K) with the general attention score
// between each query and memory entry: scores[b,k] = query[b] . (weight @ memory[b,k]).
//
// Parameters:
//   - scores: output scores (B, K), raw (pre-softmax)
//   - query: query vectors (B, H)
//   - memory: memory entries (B, K, M)
//   - weight: bilinear weight (H, M)
func BilinearScoreForward(scores, query, memory, weight []float64, B, K, H, M int) {
	var wg sync.WaitGroup
	for b := 0; b < B; b++ {
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			qB := query[b*H : b*H+H]
			proj := make([]float64, H)
			for k := 0; k < K; k++ {
				mem := memory[b*K*M+k*M : b*K*M+k*M+M]
				for j := 0; j < H; j++ {
					proj[j] = floats.Dot(weight[j*M:j*M+M], mem)
				}
				scores[b*K+k] = floats.Dot(qB, proj)
			}
		}(b)
	}
	wg.Wait()
}

// MaskedSoftmaxForward normalizes each row of scores (B, K) over its first
// validLen[b] entries. Entries at or past the valid length get probability
// zero, so each row sums to one over the valid prefix only.
//
// Every validLen[b] must be at least 1; a zero-length row has no valid
// normalizer and is a caller-guaranteed precondition.
func MaskedSoftmaxForward(probs, scores []float64, validLen []int, B, K int) {
	for b := 0; b < B; b++ {
		n := validLen[b]
		row := scores[b*K : b*K+K]
		out := probs[b*K : b*K+K]
		// Shift by the max for numerical stability.
		maxval := floats.Max(row[:n])
		var sum float64
		for i := 0; i < n; i++ {
			out[i] = math.Exp(row[i] - maxval)
			sum += out[i]
		}
		if sum != 0 {
			floats.Scale(1.0/sum, out[:n])
		}
		for i := n; i < K; i++ {
			out[i] = 0.0
		}
	}
}

// AttnContextForward fills ctx (B, M) with the probability-weighted sum of
// memory entries: ctx[b] = sum_k probs[b,k] * memory[b,k]. Entries with zero
// probability (masked slots) contribute nothing.
func AttnContextForward(ctx, probs, memory []float64, B, K, M int) {
	for b := 0; b < B; b++ {
		out := ctx[b*M : b*M+M]
		for i := range out {
			out[i] = 0.0
		}
		for k := 0; k < K; k++ {
			floats.AddScaled(out, probs[b*K+k], memory[b*K*M+k*M:b*K*M+k*M+M])
		}
	}
}
