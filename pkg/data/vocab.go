package data

import (
	"bufio"
	"fmt"
	"os"

	"github.com/candlelight-ml/candela/pkg/candela"
)

const (
	// PadToken is the reserved padding token; it must be the first vocabulary
	// entry so its id equals candela.PadID.
	PadToken = "<pad>"
	// UnkToken is the reserved unknown token; it must be the second entry.
	UnkToken = "<unk>"
)

// Vocab maps tokens to ids. Id 0 is padding and id 1 is the unknown token.
type Vocab struct {
	tokens []string
	index  map[string]int32
}

// NewVocab builds a vocabulary from an ordered token list. The first two
// entries must be PadToken and UnkToken.
func NewVocab(tokens []string) (*Vocab, error) {
	if len(tokens) < 2 || tokens[0] != PadToken || tokens[1] != UnkToken {
		return nil, fmt.Errorf("vocabulary must start with %q, %q", PadToken, UnkToken)
	}
	v := &Vocab{
		tokens: tokens,
		index:  make(map[string]int32, len(tokens)),
	}
	for i, tok := range tokens {
		if _, dup := v.index[tok]; dup {
			return nil, fmt.Errorf("vocabulary repeats token %q", tok)
		}
		v.index[tok] = int32(i)
	}
	if v.index[PadToken] != candela.PadID {
		return nil, fmt.Errorf("pad token id %d does not match reserved pad id %d", v.index[PadToken], candela.PadID)
	}
	return v, nil
}

// LoadVocab reads a vocabulary file with one token per line.
func LoadVocab(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tokens []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewVocab(tokens)
}

// ID returns the id of tok, or the unknown id if tok is out of vocabulary.
func (v *Vocab) ID(tok string) int32 {
	if id, ok := v.index[tok]; ok {
		return id
	}
	return v.index[UnkToken]
}

// Size returns the number of vocabulary entries.
func (v *Vocab) Size() int {
	return len(v.tokens)
}

// Token returns the token string for id.
func (v *Vocab) Token(id int32) string {
	return v.tokens[id]
}
