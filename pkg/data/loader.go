// Package data turns a JSONL corpus into padded candela.Batch bundles. The
// core model makes no assumption about how batches are produced; this package
// is the reference producer used by the evaluation command and tests.
package data

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/candlelight-ml/candela/pkg/candela"
)

// Sentence is one target sentence with its discourse type and the phrase-bank
// slots it draws on.
type Sentence struct {
	Text    string `json:"text"`
	Type    int32  `json:"type"`
	Phrases []int  `json:"phrases"`
}

// Example is one training instance as stored in the corpus, one JSON object
// per line.
type Example struct {
	Source    string     `json:"source"`
	Phrases   []string   `json:"phrases"`
	Sentences []Sentence `json:"sentences"`
}

// built is one example converted to ids, before batch padding.
type built struct {
	src     []int32
	bank    [][]int32 // sub-token ids per phrase slot
	sel     []int32   // first gold slot per planning step
	gold    [][]int   // all gold slots per planning step
	types   []int32
	inputs  []int32 // word-decoder inputs
	targets []int32 // next-token targets, aligned with inputs
	sentIDs []int32 // governing planning step per input position
}

// Loader batches a JSONL corpus into padded candela.Batch bundles. Batches
// wrap around at the end of the corpus, like the training loaders it
// replaces.
type Loader struct {
	examples  []Example
	vocab     *Vocab
	tok       *Tokenizer
	batchSize int
	cur       int
}

// NewLoader reads the corpus at path and prepares batches of batchSize.
func NewLoader(path string, vocab *Vocab, batchSize int) (*Loader, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size %d is not positive", batchSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var examples []Example
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<16), 1<<22)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ex Example
		if err := json.Unmarshal(raw, &ex); err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", line, err)
		}
		examples = append(examples, ex)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(examples) < batchSize {
		return nil, fmt.Errorf("corpus has %d examples, fewer than batch size %d", len(examples), batchSize)
	}
	return &Loader{
		examples:  examples,
		vocab:     vocab,
		tok:       NewTokenizer(),
		batchSize: batchSize,
	}, nil
}

// NumBatches returns the number of whole batches per epoch.
func (l *Loader) NumBatches() int {
	return len(l.examples) / l.batchSize
}

// Reset rewinds the loader to the beginning of the corpus.
func (l *Loader) Reset() {
	l.cur = 0
}

// NextBatch builds the next padded batch, wrapping to the start of the corpus
// when fewer than batchSize examples remain.
func (l *Loader) NextBatch() (*candela.Batch, error) {
	if l.cur+l.batchSize > len(l.examples) {
		l.Reset()
	}
	bs := make([]built, l.batchSize)
	for i := range bs {
		b, err := l.build(l.examples[l.cur+i])
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", l.cur+i, err)
		}
		bs[i] = b
	}
	l.cur += l.batchSize
	return pad(bs), nil
}

// ids tokenizes text and maps each token through the vocabulary.
func (l *Loader) ids(text string) []int32 {
	toks := l.tok.Split(text)
	out := make([]int32, len(toks))
	for i, tok := range toks {
		out[i] = l.vocab.ID(tok)
	}
	return out
}

func (l *Loader) build(ex Example) (built, error) {
	var b built
	b.src = l.ids(ex.Source)
	if len(b.src) == 0 {
		return b, fmt.Errorf("empty source")
	}
	if len(ex.Phrases) == 0 {
		return b, fmt.Errorf("empty phrase bank")
	}
	for _, ph := range ex.Phrases {
		sub := l.ids(ph)
		if len(sub) == 0 {
			return b, fmt.Errorf("empty phrase %q", ph)
		}
		b.bank = append(b.bank, sub)
	}
	if len(ex.Sentences) == 0 {
		return b, fmt.Errorf("no sentences")
	}
	var words []int32
	var wordSent []int32
	for step, sent := range ex.Sentences {
		for _, slot := range sent.Phrases {
			if slot < 0 || slot >= len(ex.Phrases) {
				return b, fmt.Errorf("sentence %d references phrase slot %d of %d", step, slot, len(ex.Phrases))
			}
		}
		sel := int32(0)
		if len(sent.Phrases) > 0 {
			sel = int32(sent.Phrases[0])
		}
		b.sel = append(b.sel, sel)
		b.gold = append(b.gold, sent.Phrases)
		b.types = append(b.types, sent.Type)
		toks := l.ids(sent.Text)
		if len(toks) == 0 {
			return b, fmt.Errorf("sentence %d is empty", step)
		}
		words = append(words, toks...)
		for range toks {
			wordSent = append(wordSent, int32(step))
		}
	}
	if len(words) < 2 {
		return b, fmt.Errorf("need at least two target words for teacher forcing")
	}
	// Teacher forcing: inputs are the words, targets the next word.
	b.inputs = words[:len(words)-1]
	b.targets = words[1:]
	b.sentIDs = wordSent[:len(words)-1]
	return b, nil
}

// pad assembles per-example id sequences into one padded Batch.
func pad(bs []built) *candela.Batch {
	batch := &candela.Batch{B: len(bs)}
	for _, b := range bs {
		batch.SrcMaxLen = max(batch.SrcMaxLen, len(b.src))
		batch.BankSize = max(batch.BankSize, len(b.bank))
		for _, sub := range b.bank {
			batch.PhraseLen = max(batch.PhraseLen, len(sub))
		}
		batch.PlanSteps = max(batch.PlanSteps, len(b.sel))
		batch.WordMaxLen = max(batch.WordMaxLen, len(b.inputs))
	}
	B := batch.B
	batch.SrcTokens = make([]int32, B*batch.SrcMaxLen)
	batch.SrcLen = make([]int, B)
	batch.PhraseBank = make([]int32, B*batch.BankSize*batch.PhraseLen)
	batch.PhraseBankLen = make([]int, B)
	batch.PhraseSel = make([]int32, B*batch.PlanSteps)
	batch.DecInputs = make([]int32, B*batch.WordMaxLen)
	batch.DecInputLen = make([]int, B)
	batch.DecSentID = make([]int32, B*batch.WordMaxLen)
	batch.DecMask = make([]float64, B*batch.WordMaxLen)
	batch.SentTypes = make([]int32, B*batch.PlanSteps)
	batch.SentLen = make([]int, B)
	batch.WordTargets = make([]int32, B*batch.WordMaxLen)
	batch.PhraseSelInd = make([]float64, B*batch.PlanSteps*batch.BankSize)
	batch.PhraseAttnMask = make([]float64, B*batch.PlanSteps*batch.BankSize)
	for i, b := range bs {
		copy(batch.SrcTokens[i*batch.SrcMaxLen:], b.src)
		batch.SrcLen[i] = len(b.src)
		for k, sub := range b.bank {
			copy(batch.PhraseBank[(i*batch.BankSize+k)*batch.PhraseLen:], sub)
		}
		batch.PhraseBankLen[i] = len(b.bank)
		copy(batch.PhraseSel[i*batch.PlanSteps:], b.sel)
		copy(batch.DecInputs[i*batch.WordMaxLen:], b.inputs)
		batch.DecInputLen[i] = len(b.inputs)
		copy(batch.DecSentID[i*batch.WordMaxLen:], b.sentIDs)
		for t := range b.inputs {
			batch.DecMask[i*batch.WordMaxLen+t] = 1.0
		}
		copy(batch.SentTypes[i*batch.PlanSteps:], b.types)
		batch.SentLen[i] = len(b.sel)
		copy(batch.WordTargets[i*batch.WordMaxLen:], b.targets)
		for t := range b.sel {
			base := (i*batch.PlanSteps + t) * batch.BankSize
			for k := 0; k < len(b.bank); k++ {
				batch.PhraseAttnMask[base+k] = 1.0
			}
			for _, slot := range b.gold[t] {
				batch.PhraseSelInd[base+slot] = 1.0
			}
		}
	}
	return batch
}
