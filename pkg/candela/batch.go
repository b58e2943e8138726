package candela

import "fmt"

// PadID is the token id reserved for padding. Its embedding row is pinned to
// the zero vector.
const PadID int32 = 0

// Batch is one padded group of training examples. All tensors are row-major
// flat slices; the dimension fields give the padded shapes and the *Len
// fields the true per-example lengths.
type Batch struct {
	// B is the number of examples.
	B int
	// SrcMaxLen is the padded source length.
	SrcMaxLen int
	// BankSize is the padded number of phrase-bank slots per example.
	BankSize int
	// PhraseLen is the padded number of sub-tokens per phrase slot.
	PhraseLen int
	// PlanSteps is the padded number of planning steps (sentences).
	PlanSteps int
	// WordMaxLen is the padded word-decoder length.
	WordMaxLen int

	// SrcTokens is the source token ids (B, SrcMaxLen).
	SrcTokens []int32
	// SrcLen is the true source length per example.
	SrcLen []int
	// PhraseBank is the phrase-bank sub-token ids (B, BankSize, PhraseLen).
	PhraseBank []int32
	// PhraseBankLen is the number of valid phrase slots per example.
	PhraseBankLen []int
	// PhraseSel is the gold phrase-slot index chosen at each planning step
	// (B, PlanSteps).
	PhraseSel []int32
	// DecInputs is the word-decoder input tokens (B, WordMaxLen).
	DecInputs []int32
	// DecInputLen is the true word-decoder length per example.
	DecInputLen []int
	// DecSentID maps each word position to its governing planning step
	// (B, WordMaxLen).
	DecSentID []int32
	// DecMask is 1 where DecSentID is valid, 0 on padding (B, WordMaxLen).
	DecMask []float64
	// SentTypes is the sentence-type targets (B, PlanSteps).
	SentTypes []int32
	// SentLen is the true number of planning steps per example.
	SentLen []int
	// WordTargets is the word-id targets (B, WordMaxLen).
	WordTargets []int32
	// PhraseSelInd is the binary gold attention indicator
	// (B, PlanSteps, BankSize).
	PhraseSelInd []float64
	// PhraseAttnMask is 1 on valid (step, slot) pairs, 0 on padding
	// (B, PlanSteps, BankSize).
	PhraseAttnMask []float64
}

// Validate checks every field against the declared dimensions and length
// invariants. A batch that fails here would silently corrupt gradients or
// metrics downstream, so violations are fatal and never recovered locally.
// Zero-length examples are rejected: every normalizing denominator in the
// loss arithmetic requires at least one valid position.
func (b *Batch) Validate() error {
	if b.B <= 0 {
		return fmt.Errorf("batch has no examples")
	}
	type sized struct {
		name string
		got  int
		want int
	}
	checks := []sized{
		{"SrcTokens", len(b.SrcTokens), b.B * b.SrcMaxLen},
		{"SrcLen", len(b.SrcLen), b.B},
		{"PhraseBank", len(b.PhraseBank), b.B * b.BankSize * b.PhraseLen},
		{"PhraseBankLen", len(b.PhraseBankLen), b.B},
		{"PhraseSel", len(b.PhraseSel), b.B * b.PlanSteps},
		{"DecInputs", len(b.DecInputs), b.B * b.WordMaxLen},
		{"DecInputLen", len(b.DecInputLen), b.B},
		{"DecSentID", len(b.DecSentID), b.B * b.WordMaxLen},
		{"DecMask", len(b.DecMask), b.B * b.WordMaxLen},
		{"SentTypes", len(b.SentTypes), b.B * b.PlanSteps},
		{"SentLen", len(b.SentLen), b.B},
		{"WordTargets", len(b.WordTargets), b.B * b.WordMaxLen},
		{"PhraseSelInd", len(b.PhraseSelInd), b.B * b.PlanSteps * b.BankSize},
		{"PhraseAttnMask", len(b.PhraseAttnMask), b.B * b.PlanSteps * b.BankSize},
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("batch field %s has %d values, want %d", c.name, c.got, c.want)
		}
	}
	lengths := []struct {
		name string
		vals []int
		max  int
	}{
		{"SrcLen", b.SrcLen, b.SrcMaxLen},
		{"PhraseBankLen", b.PhraseBankLen, b.BankSize},
		{"DecInputLen", b.DecInputLen, b.WordMaxLen},
		{"SentLen", b.SentLen, b.PlanSteps},
	}
	for _, l := range lengths {
		for i, v := range l.vals {
			if v < 1 || v > l.max {
				return fmt.Errorf("batch length %s[%d] = %d out of range [1, %d]", l.name, i, v, l.max)
			}
		}
	}
	for i, sel := range b.PhraseSel {
		if sel < 0 || int(sel) >= b.BankSize {
			return fmt.Errorf("batch PhraseSel[%d] = %d out of range [0, %d)", i, sel, b.BankSize)
		}
	}
	for i, sid := range b.DecSentID {
		if sid < 0 || int(sid) >= b.PlanSteps {
			return fmt.Errorf("batch DecSentID[%d] = %d out of range [0, %d)", i, sid, b.PlanSteps)
		}
	}
	for i, m := range b.DecMask {
		if m != 0 && m != 1 {
			return fmt.Errorf("batch DecMask[%d] = %v is not 0/1", i, m)
		}
	}
	for i, m := range b.PhraseAttnMask {
		if m != 0 && m != 1 {
			return fmt.Errorf("batch PhraseAttnMask[%d] = %v is not 0/1", i, m)
		}
		if ind := b.PhraseSelInd[i]; ind != 0 && ind != 1 {
			return fmt.Errorf("batch PhraseSelInd[%d] = %v is not 0/1", i, ind)
		}
	}
	return nil
}
