package chat

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Token budget for one tutor completion, shared between the history window,
// the rolling summary and the user message.
const (
	TotalModelTokens      = 8000
	SystemPromptTokens    = 200
	SummaryMaxTokens      = 500
	UserMaxTokens         = 2000
	ResponseReserveTokens = 1000

	// MaxWindowTokens is what remains for raw conversation history.
	MaxWindowTokens = TotalModelTokens - SystemPromptTokens - SummaryMaxTokens - UserMaxTokens - ResponseReserveTokens
)

// TokenCounter measures and clips text in model tokens.
type TokenCounter interface {
	Count(text string) int
	// Truncate clips text to at most maxTokens tokens, appending "..." when it
	// had to cut.
	Truncate(text string, maxTokens int) string
}

// encodingName matches the tokenizer of the gpt-4o model family.
const encodingName = "o200k_base"

// TiktokenCounter is the production TokenCounter.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter() (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", encodingName, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) Truncate(text string, maxTokens int) string {
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.enc.Decode(tokens[:maxTokens]) + "..."
}
