package candela

import "github.com/candlelight-ml/candela/pkg/nn"

// SentencePlanner is the higher-level decoder. Teacher-forced over the
// phrase-selection sequence, it attends over the phrase bank at each planning
// step, emits a sentence-type readout, and exposes its per-step state for the
// word decoder to condition on.
type SentencePlanner struct {
	emb    *nn.Embedding
	hidden int
	state  []float64 // (B, H), seeded by InitState before each Forward.
	Params PlannerParams
}

// NewSentencePlanner builds a planner over the shared embedding table.
func NewSentencePlanner(emb *nn.Embedding, hiddenSize int) *SentencePlanner {
	sp := &SentencePlanner{emb: emb, hidden: hiddenSize}
	sp.Params.Init(emb.Dim, hiddenSize)
	return sp
}

// InitState seeds the planner's recurrent state from the encoder summary.
func (sp *SentencePlanner) InitState(encoderFinal []float64) {
	sp.state = append(sp.state[:0], encoderFinal...)
}

// Forward teacher-forces the planner over the phrase-selection sequence.
//
// phraseSel is (B, Tp) gold phrase-slot indices, bankEmb the phrase-bank
// embedding matrix (B, K, D) and bankLen the number of valid slots per
// example. Attention is masked by bankLen before normalization; the raw
// scores are exposed unmasked for the supervision loss.
//
// Returns per-step states (B, Tp, H), attention probabilities (B, Tp, K),
// raw attention scores (B, Tp, K) and sentence-type readouts
// (B, Tp, SentenceTypeCount).
func (sp *SentencePlanner) Forward(phraseSel []int32, bankEmb []float64, bankLen []int, B, Tp, K int) (outs, attnProbs, attnScores, stReadouts []float64) {
	D, H, S := sp.emb.Dim, sp.hidden, SentenceTypeCount
	if len(sp.state) != B*H {
		panic("planner state not initialized for this batch")
	}
	outs = make([]float64, B*Tp*H)
	attnProbs = make([]float64, B*Tp*K)
	attnScores = make([]float64, B*Tp*K)
	stReadouts = make([]float64, B*Tp*S)

	xt := make([]float64, B*D)
	ht := make([]float64, B*H)
	scores := make([]float64, B*K)
	probs := make([]float64, B*K)
	ctx := make([]float64, B*D)
	cat := make([]float64, B*(H+D))
	st := make([]float64, B*S)
	p := &sp.Params
	for t := 0; t < Tp; t++ {
		for b := 0; b < B; b++ {
			sel := int(phraseSel[b*Tp+t])
			copy(xt[b*D:b*D+D], bankEmb[b*K*D+sel*D:b*K*D+sel*D+D])
		}
		gruStep(ht, xt, sp.state, &p.GRU, B, D, H)
		copy(sp.state, ht)
		nn.BilinearScoreForward(scores, sp.state, bankEmb, p.AttnW.data, B, K, H, D)
		nn.MaskedSoftmaxForward(probs, scores, bankLen, B, K)
		nn.AttnContextForward(ctx, probs, bankEmb, B, K, D)
		for b := 0; b < B; b++ {
			copy(cat[b*(H+D):b*(H+D)+H], sp.state[b*H:b*H+H])
			copy(cat[b*(H+D)+H:b*(H+D)+H+D], ctx[b*D:b*D+D])
		}
		nn.LinearForward(st, cat, p.StOutW.data, p.StOutB.data, B, H+D, S)
		for b := 0; b < B; b++ {
			copy(outs[b*Tp*H+t*H:b*Tp*H+t*H+H], sp.state[b*H:b*H+H])
			copy(attnProbs[b*Tp*K+t*K:b*Tp*K+t*K+K], probs[b*K:b*K+K])
			copy(attnScores[b*Tp*K+t*K:b*Tp*K+t*K+K], scores[b*K:b*K+K])
			copy(stReadouts[b*Tp*S+t*S:b*Tp*S+t*S+S], st[b*S:b*S+S])
		}
	}
	return outs, attnProbs, attnScores, stReadouts
}
