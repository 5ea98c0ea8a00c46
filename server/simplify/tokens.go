package simplify

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates prompt sizes using the tiktoken encoding for the
// configured model. Estimates feed logs and metrics only; they never gate a
// request.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter creates a token counter for the specified model.
func NewTokenCounter(model string) (*TokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("no encoding for model %s: %w", model, err)
	}
	return &TokenCounter{encoding: encoding}, nil
}

// Count returns the number of tokens in text.
func (t *TokenCounter) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}
