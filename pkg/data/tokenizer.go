package data

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// splitPattern is the GPT-2 token splitting pattern: contractions, words,
// numbers, punctuation runs and residual whitespace. The negative lookahead
// requires the regexp2 engine.
const splitPattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// Tokenizer splits raw text into surface tokens to be looked up in a Vocab.
type Tokenizer struct {
	re *regexp2.Regexp
}

// NewTokenizer compiles the splitting pattern.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{re: regexp2.MustCompile(splitPattern, regexp2.None)}
}

// Split breaks text into tokens, dropping pure-whitespace pieces.
func (t *Tokenizer) Split(text string) []string {
	var out []string
	m, err := t.re.FindStringMatch(text)
	for err == nil && m != nil {
		tok := strings.TrimSpace(m.String())
		if tok != "" {
			out = append(out, tok)
		}
		m, err = t.re.FindNextMatch(m)
	}
	return out
}
