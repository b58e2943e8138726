package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlelight-ml/candela/pkg/candela"
)

func TestTokenizerSplit(t *testing.T) {
	tok := NewTokenizer()
	got := tok.Split("Hello, world! It's 42.")
	want := []string{"Hello", ",", "world", "!", "It", "'s", "42", "."}
	assert.Equal(t, want, got)
}

func TestTokenizerSplitEmpty(t *testing.T) {
	tok := NewTokenizer()
	assert.Empty(t, tok.Split(""))
	assert.Empty(t, tok.Split("   "))
}

func TestVocabReservedTokens(t *testing.T) {
	_, err := NewVocab([]string{"the", "cat"})
	require.Error(t, err)

	v, err := NewVocab([]string{PadToken, UnkToken, "the", "cat"})
	require.NoError(t, err)
	assert.Equal(t, candela.PadID, v.ID(PadToken))
	assert.Equal(t, int32(1), v.ID("never-seen"))
	assert.Equal(t, int32(3), v.ID("cat"))
	assert.Equal(t, 4, v.Size())
	assert.Equal(t, "the", v.Token(2))
}

func TestVocabRejectsDuplicates(t *testing.T) {
	_, err := NewVocab([]string{PadToken, UnkToken, "the", "the"})
	require.Error(t, err)
}

func writeTestCorpus(t *testing.T) (corpusPath, vocabPath string) {
	t.Helper()
	dir := t.TempDir()
	corpusPath = filepath.Join(dir, "corpus.jsonl")
	vocabPath = filepath.Join(dir, "vocab.txt")
	corpus := `{"source":"the cat sat","phrases":["cat","mat"],"sentences":[{"text":"the cat","type":0,"phrases":[0]},{"text":"sat down","type":1,"phrases":[1]}]}
{"source":"dogs bark","phrases":["dogs"],"sentences":[{"text":"dogs bark loud","type":2,"phrases":[0]}]}
`
	vocab := "<pad>\n<unk>\nthe\ncat\nsat\ndown\nmat\ndogs\nbark\nloud\n"
	require.NoError(t, os.WriteFile(corpusPath, []byte(corpus), 0o644))
	require.NoError(t, os.WriteFile(vocabPath, []byte(vocab), 0o644))
	return corpusPath, vocabPath
}

func TestLoaderNextBatch(t *testing.T) {
	corpusPath, vocabPath := writeTestCorpus(t)
	vocab, err := LoadVocab(vocabPath)
	require.NoError(t, err)
	loader, err := NewLoader(corpusPath, vocab, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.NumBatches())

	batch, err := loader.NextBatch()
	require.NoError(t, err)
	require.NoError(t, batch.Validate())

	assert.Equal(t, 2, batch.B)
	assert.Equal(t, 3, batch.SrcMaxLen)
	assert.Equal(t, []int{3, 2}, batch.SrcLen)
	assert.Equal(t, 2, batch.BankSize)
	assert.Equal(t, []int{2, 1}, batch.PhraseBankLen)
	assert.Equal(t, 2, batch.PlanSteps)
	assert.Equal(t, []int{2, 1}, batch.SentLen)

	// "the cat" + "sat down" yields words [the cat sat down]: inputs are the
	// first three, targets the next word at each position.
	assert.Equal(t, 3, batch.WordMaxLen)
	assert.Equal(t, []int{3, 2}, batch.DecInputLen)
	the, cat, sat, down := vocab.ID("the"), vocab.ID("cat"), vocab.ID("sat"), vocab.ID("down")
	assert.Equal(t, []int32{the, cat, sat}, batch.DecInputs[:3])
	assert.Equal(t, []int32{cat, sat, down}, batch.WordTargets[:3])
	assert.Equal(t, []int32{0, 0, 1}, batch.DecSentID[:3])
	assert.Equal(t, []float64{1, 1, 1}, batch.DecMask[:3])
	assert.Equal(t, []float64{1, 1, 0}, batch.DecMask[3:])

	// Gold attention indicators: sentence 0 uses slot 0, sentence 1 slot 1.
	assert.Equal(t, []float64{1, 0, 0, 1}, batch.PhraseSelInd[:4])
	assert.Equal(t, []int32{0, 1}, batch.PhraseSel[:2])
	assert.Equal(t, []int32{0, 2}, []int32{batch.SentTypes[0], batch.SentTypes[2]})
}

func TestLoaderWrapsAround(t *testing.T) {
	corpusPath, vocabPath := writeTestCorpus(t)
	vocab, err := LoadVocab(vocabPath)
	require.NoError(t, err)
	loader, err := NewLoader(corpusPath, vocab, 2)
	require.NoError(t, err)
	first, err := loader.NextBatch()
	require.NoError(t, err)
	second, err := loader.NextBatch()
	require.NoError(t, err)
	assert.Equal(t, first.SrcTokens, second.SrcTokens)
}

func TestLoaderRejectsShortCorpus(t *testing.T) {
	corpusPath, vocabPath := writeTestCorpus(t)
	vocab, err := LoadVocab(vocabPath)
	require.NoError(t, err)
	_, err = NewLoader(corpusPath, vocab, 3)
	require.Error(t, err)
}

func TestLoaderRejectsMalformedExample(t *testing.T) {
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "corpus.jsonl")
	// A sentence that references a phrase slot outside the bank.
	corpus := `{"source":"a","phrases":["a"],"sentences":[{"text":"a b","type":0,"phrases":[5]}]}
`
	require.NoError(t, os.WriteFile(corpusPath, []byte(corpus), 0o644))
	vocab, err := NewVocab([]string{PadToken, UnkToken, "a", "b"})
	require.NoError(t, err)
	loader, err := NewLoader(corpusPath, vocab, 1)
	require.NoError(t, err)
	_, err = loader.NextBatch()
	require.Error(t, err)
}
