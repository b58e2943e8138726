package candela

import "github.com/candlelight-ml/candela/pkg/nn"

// WordDecoder is the lower-level decoder. It generates per-token vocabulary
// readouts conditioned on the planner step that governs each token, routed
// through the sentence-id template, and attends over the encoder memory bank.
type WordDecoder struct {
	emb       *nn.Embedding
	hidden    int
	vocabSize int
	state     []float64 // (B, H), seeded by InitState before each Forward.
	Params    DecoderParams
}

// NewWordDecoder builds a word decoder over the shared embedding table.
func NewWordDecoder(emb *nn.Embedding, hiddenSize, vocabSize int) *WordDecoder {
	wd := &WordDecoder{emb: emb, hidden: hiddenSize, vocabSize: vocabSize}
	wd.Params.Init(emb.Dim, hiddenSize, vocabSize)
	return wd
}

// InitState seeds the decoder's recurrent state from the encoder summary.
func (wd *WordDecoder) InitState(encoderFinal []float64) {
	wd.state = append(wd.state[:0], encoderFinal...)
}

// Forward runs the decoder over decInputs (B, Tw) with teacher forcing.
//
// Each step input is the word embedding of the current token concatenated
// with the planner state routed by sentID (B, Tw) and gated by sentMask
// (B, Tw, 0/1). encMemory is the encoder memory bank (B, Ts, H) masked by
// encLen; plannerOuts is (B, Tp, H). Positions past an example's decLen still
// produce readouts, which downstream losses mask out.
//
// Returns per-token states (B, Tw, H), vocabulary readouts (B, Tw, V) and
// encoder attention probabilities (B, Tw, Ts).
func (wd *WordDecoder) Forward(decInputs []int32, decLen []int, encMemory []float64, encLen []int, plannerOuts []float64, sentID []int32, sentMask []float64, B, Tw, Ts, Tp int) (states, readouts, attn []float64) {
	D, H, V := wd.emb.Dim, wd.hidden, wd.vocabSize
	if len(wd.state) != B*H {
		panic("word decoder state not initialized for this batch")
	}
	I := D + H
	states = make([]float64, B*Tw*H)
	readouts = make([]float64, B*Tw*V)
	attn = make([]float64, B*Tw*Ts)

	xt := make([]float64, B*I)
	ht := make([]float64, B*H)
	emb := make([]float64, B*D)
	ids := make([]int32, B)
	scores := make([]float64, B*Ts)
	probs := make([]float64, B*Ts)
	ctx := make([]float64, B*H)
	cat := make([]float64, B*2*H)
	out := make([]float64, B*V)
	p := &wd.Params
	for t := 0; t < Tw; t++ {
		for b := 0; b < B; b++ {
			ids[b] = decInputs[b*Tw+t]
		}
		wd.emb.EmbedForward(emb, ids)
		for b := 0; b < B; b++ {
			copy(xt[b*I:b*I+D], emb[b*D:b*D+D])
			sid := int(sentID[b*Tw+t])
			gate := sentMask[b*Tw+t]
			plan := plannerOuts[b*Tp*H+sid*H : b*Tp*H+sid*H+H]
			for j := 0; j < H; j++ {
				xt[b*I+D+j] = gate * plan[j]
			}
		}
		gruStep(ht, xt, wd.state, &p.GRU, B, I, H)
		copy(wd.state, ht)
		nn.BilinearScoreForward(scores, wd.state, encMemory, p.AttnW.data, B, Ts, H, H)
		nn.MaskedSoftmaxForward(probs, scores, encLen, B, Ts)
		nn.AttnContextForward(ctx, probs, encMemory, B, Ts, H)
		for b := 0; b < B; b++ {
			copy(cat[b*2*H:b*2*H+H], wd.state[b*H:b*H+H])
			copy(cat[b*2*H+H:b*2*H+2*H], ctx[b*H:b*H+H])
		}
		nn.LinearForward(out, cat, p.OutW.data, p.OutB.data, B, 2*H, V)
		for b := 0; b < B; b++ {
			copy(states[b*Tw*H+t*H:b*Tw*H+t*H+H], wd.state[b*H:b*H+H])
			copy(attn[b*Tw*Ts+t*Ts:b*Tw*Ts+t*Ts+Ts], probs[b*Ts:b*Ts+Ts])
			copy(readouts[b*Tw*V+t*V:b*Tw*V+t*V+V], out[b*V:b*V+V])
		}
	}
	return states, readouts, attn
}
