package candela

import "github.com/candlelight-ml/candela/pkg/nn"

// EncoderRNN reads the padded source sequence and produces one memory-bank
// vector per position plus a final-state summary used to seed both decoders.
type EncoderRNN struct {
	emb    *nn.Embedding
	hidden int
	Params EncoderParams
}

// NewEncoderRNN builds an encoder over the shared embedding table.
func NewEncoderRNN(emb *nn.Embedding, hiddenSize int) *EncoderRNN {
	enc := &EncoderRNN{emb: emb, hidden: hiddenSize}
	enc.Params.Init(emb.Dim, hiddenSize)
	return enc
}

// Forward runs the GRU over src (B, T) honoring srcLen: states stop updating
// past an example's true length, so the final state is the state at position
// srcLen[b]-1 and memory-bank rows past the length stay zero.
//
// Returns the memory bank (B, T, H) and the final state (B, H).
func (enc *EncoderRNN) Forward(src []int32, srcLen []int, B, T int) (memoryBank, finalState []float64) {
	D, H := enc.emb.Dim, enc.hidden
	memoryBank = make([]float64, B*T*H)
	finalState = make([]float64, B*H)
	xt := make([]float64, B*D)
	ht := make([]float64, B*H)
	ids := make([]int32, B)
	for t := 0; t < T; t++ {
		for b := 0; b < B; b++ {
			ids[b] = src[b*T+t]
		}
		enc.emb.EmbedForward(xt, ids)
		gruStep(ht, xt, finalState, &enc.Params.GRU, B, D, H)
		for b := 0; b < B; b++ {
			if t >= srcLen[b] {
				continue
			}
			copy(finalState[b*H:b*H+H], ht[b*H:b*H+H])
			copy(memoryBank[b*T*H+t*H:b*T*H+t*H+H], ht[b*H:b*H+H])
		}
	}
	return memoryBank, finalState
}
