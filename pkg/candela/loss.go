package candela

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SequenceLoss computes the length-normalized negative log-likelihood of
// integer class targets under per-position score readouts.
//
// readouts is (B, T, typeCnt) raw scores, targets is (B, T) class ids and
// seqLen the true length per example. Positions at or past an example's
// length never enter the sum; the total is divided by the count of valid
// positions across the whole batch, a token-weighted mean rather than a
// per-example mean. Reused for the word loss (typeCnt = vocabulary size) and
// the sentence-type loss (typeCnt = SentenceTypeCount).
//
// The loss is not clamped: a pathological readout may legitimately produce a
// very large value. Callers guarantee at least one valid position per batch.
func SequenceLoss(readouts []float64, targets []int32, seqLen []int, typeCnt int) float64 {
	B := len(seqLen)
	T := len(targets) / B
	var total float64
	var valid int
	for b := 0; b < B; b++ {
		for t := 0; t < seqLen[b]; t++ {
			row := readouts[(b*T+t)*typeCnt : (b*T+t+1)*typeCnt]
			total += floats.LogSumExp(row) - row[targets[b*T+t]]
		}
		valid += seqLen[b]
	}
	return total / float64(valid)
}

// PhraseAttentionLoss computes the masked binary cross-entropy between the
// gold phrase-selection indicators and the planner's attention probabilities,
// supervising the attention distribution directly against a gold alignment.
//
// selInd and mask are 0/1 over (step, slot) pairs; probs are probabilities in
// [0,1], not logits. Invalid pairs are zeroed by the mask and the sum is
// normalized by the count of valid pairs. Like SequenceLoss, the result is
// not clamped, so a probability of exactly 0 or 1 on the wrong side of the
// target yields +Inf. Callers guarantee at least one valid pair.
func PhraseAttentionLoss(selInd, probs, mask []float64) float64 {
	var total, denom float64
	for i, m := range mask {
		if m == 0 {
			continue
		}
		y, p := selInd[i], probs[i]
		var l float64
		if y > 0 {
			l -= y * math.Log(p)
		}
		if y < 1 {
			l -= (1 - y) * math.Log(1-p)
		}
		total += l
		denom += m
	}
	return total / denom
}

// Perplexity computes the masked, clamped per-example perplexity of the word
// readouts and averages it across the batch.
//
// The per-position negative log-likelihood is computed as in SequenceLoss,
// but summed within each example and divided by that example's own length.
// Each per-example mean is clamped to PPLClampCeiling before exponentiation,
// so one example with a near-zero target probability cannot blow up the batch
// average. Report-only: the value never participates in gradients.
func Perplexity(readouts []float64, targets []int32, seqLen []int, vocabSize int) float64 {
	B := len(seqLen)
	T := len(targets) / B
	ppl := make([]float64, B)
	for b := 0; b < B; b++ {
		var sum float64
		for t := 0; t < seqLen[b]; t++ {
			row := readouts[(b*T+t)*vocabSize : (b*T+t+1)*vocabSize]
			sum += floats.LogSumExp(row) - row[targets[b*T+t]]
		}
		mean := sum / float64(seqLen[b])
		if mean > PPLClampCeiling {
			mean = PPLClampCeiling
		}
		ppl[b] = math.Exp(mean)
	}
	return stat.Mean(ppl, nil)
}
