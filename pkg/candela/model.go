// Package candela implements a hierarchical planner/realizer sequence model:
// a sentence planner selects key phrases from a per-example phrase bank and
// assigns a discourse type to each sentence, and a word decoder generates the
// actual target tokens conditioned on the plan. The package covers the
// training-time forward pass and the multi-task loss/metric arithmetic;
// optimization and batching live outside.
package candela

import (
	"github.com/candlelight-ml/candela/pkg/nn"
)

const (
	// HiddenSize is the recurrent state width shared by the encoder, the
	// sentence planner and the word decoder.
	HiddenSize = 512
	// SentenceTypeCount is the number of discourse-role classes the planner
	// predicts per sentence.
	SentenceTypeCount = 3
	// PPLClampCeiling bounds each example's mean negative log-likelihood
	// before exponentiation in Perplexity. Fixed for metric comparability
	// across implementations.
	PPLClampCeiling = 100.0
)

// Model owns the encoder, sentence planner and word decoder and wires their
// tensors together in the forward pass. The word embedding table is shared by
// reference across all three components: an update through any path is
// visible everywhere.
type Model struct {
	// WordVocabSize is the vocabulary size of the word decoder readout.
	WordVocabSize int
	// GlobalSteps counts forward passes for external bookkeeping. It never
	// feeds back into the computation.
	GlobalSteps int
	// Embedding is the shared word-embedding table.
	Embedding *nn.Embedding
	// Enc is the source-sequence encoder.
	Enc *EncoderRNN
	// SpDec is the sentence planner.
	SpDec *SentencePlanner
	// WdDec is the word decoder.
	WdDec *WordDecoder
}

// NewModel builds the three sub-components around one shared embedding table.
// Vocabulary size and embedding width come from the table itself.
func NewModel(wordEmb *nn.Embedding) *Model {
	return &Model{
		WordVocabSize: wordEmb.VocabSize,
		Embedding:     wordEmb,
		Enc:           NewEncoderRNN(wordEmb, HiddenSize),
		SpDec:         NewSentencePlanner(wordEmb, HiddenSize),
		WdDec:         NewWordDecoder(wordEmb, HiddenSize, wordEmb.VocabSize),
	}
}

// ForwardOutput is the four output streams of one forward pass.
type ForwardOutput struct {
	// SentTypeReadouts is the per-step sentence-type logits
	// (B, PlanSteps, SentenceTypeCount).
	SentTypeReadouts []float64
	// WordReadouts is the per-token vocabulary logits (B, WordMaxLen, V).
	WordReadouts []float64
	// PhraseAttnProbs is the planner's normalized attention over the phrase
	// bank (B, PlanSteps, BankSize); each step sums to 1 over valid slots.
	PhraseAttnProbs []float64
	// PhraseAttnScores is the raw pre-normalization attention scores
	// (B, PlanSteps, BankSize), used by the supervision loss.
	PhraseAttnScores []float64
}

// Forward runs encoder, sentence planner and word decoder over one batch.
//
// Both decoders are seeded from the same encoder final state, the phrase bank
// is embedded as a bag of sub-tokens (summed along the sub-token axis), and
// each word position is routed to its governing planning step via the
// sentence-id template. The call is deterministic: identical inputs and
// parameters produce identical outputs.
func (m *Model) Forward(batch *Batch) (*ForwardOutput, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	encOuts, encoderFinal := m.Enc.Forward(batch.SrcTokens, batch.SrcLen, batch.B, batch.SrcMaxLen)
	m.SpDec.InitState(encoderFinal)
	m.WdDec.InitState(encoderFinal)

	bankEmb := make([]float64, batch.B*batch.BankSize*m.Embedding.Dim)
	m.Embedding.BagSumForward(bankEmb, batch.PhraseBank, batch.B*batch.BankSize, batch.PhraseLen)

	spOuts, attnProbs, attnScores, stReadouts := m.SpDec.Forward(
		batch.PhraseSel, bankEmb, batch.PhraseBankLen,
		batch.B, batch.PlanSteps, batch.BankSize)

	_, wdReadouts, _ := m.WdDec.Forward(
		batch.DecInputs, batch.DecInputLen,
		encOuts, batch.SrcLen,
		spOuts, batch.DecSentID, batch.DecMask,
		batch.B, batch.WordMaxLen, batch.SrcMaxLen, batch.PlanSteps)

	m.GlobalSteps++
	return &ForwardOutput{
		SentTypeReadouts: stReadouts,
		WordReadouts:     wdReadouts,
		PhraseAttnProbs:  attnProbs,
		PhraseAttnScores: attnScores,
	}, nil
}
