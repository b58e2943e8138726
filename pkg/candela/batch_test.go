package candela

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedBatch(t *testing.T) {
	require.NoError(t, validTestBatch().Validate())
}

func TestValidateRejectsZeroLengths(t *testing.T) {
	for _, tamper := range []func(*Batch){
		func(b *Batch) { b.SrcLen[0] = 0 },
		func(b *Batch) { b.PhraseBankLen[1] = 0 },
		func(b *Batch) { b.DecInputLen[0] = 0 },
		func(b *Batch) { b.SentLen[1] = 0 },
	} {
		b := validTestBatch()
		tamper(b)
		require.Error(t, b.Validate())
	}
}

func TestValidateRejectsOverlongLengths(t *testing.T) {
	b := validTestBatch()
	b.SrcLen[0] = b.SrcMaxLen + 1
	require.Error(t, b.Validate())
}

func TestValidateRejectsMisshapenFields(t *testing.T) {
	b := validTestBatch()
	b.WordTargets = b.WordTargets[:len(b.WordTargets)-1]
	require.Error(t, b.Validate())
}

func TestValidateRejectsOutOfRangeRouting(t *testing.T) {
	b := validTestBatch()
	b.DecSentID[0] = int32(b.PlanSteps)
	require.Error(t, b.Validate())

	b = validTestBatch()
	b.PhraseSel[1] = int32(b.BankSize)
	require.Error(t, b.Validate())
}

func TestValidateRejectsNonBinaryMasks(t *testing.T) {
	b := validTestBatch()
	b.DecMask[2] = 0.5
	require.Error(t, b.Validate())

	b = validTestBatch()
	b.PhraseAttnMask[0] = 2
	require.Error(t, b.Validate())

	b = validTestBatch()
	b.PhraseSelInd[0] = -1
	require.Error(t, b.Validate())
}
