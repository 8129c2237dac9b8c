package tokenizer

import (
	"strings"
	"unicode"
)

// Estimator approximates LLM token counts without loading a model
// vocabulary. Chunk sizing and context budgeting only need a stable
// upper-bound estimate, not exact BPE counts, so a word/character
// heuristic is sufficient and keeps the hot ingestion path allocation-free.
type Estimator struct {
	// CharsPerToken is the average characters-per-token ratio used for
	// long unbroken runs (URLs, code, non-Latin scripts). Defaults to 4.
	CharsPerToken int
}

// New creates an Estimator with default ratios
func New() *Estimator {
	return &Estimator{CharsPerToken: 4}
}

// Estimate returns an approximate token count for text. Empty or
// whitespace-only text counts as zero tokens. Punctuation attached to a
// word is counted as part of that word; each word contributes at least
// one token, with an extra token per CharsPerToken characters beyond the
// first run.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}

	charsPerToken := e.CharsPerToken
	if charsPerToken <= 0 {
		charsPerToken = 4
	}

	tokens := 0
	fields := strings.FieldsFunc(text, unicode.IsSpace)
	for _, f := range fields {
		n := len([]rune(f))
		// One token per word, plus one per extra charsPerToken run for
		// long words that tokenizers would split.
		tokens += 1 + (n-1)/charsPerToken
	}
	return tokens
}

// EstimateAll returns the summed estimate for multiple spans
func (e *Estimator) EstimateAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += e.Estimate(t)
	}
	return total
}
