package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of an LLM conversation. ImageURL, when set on a user
// turn, is a data URL attached alongside the text.
type Turn struct {
	Role     string
	Content  string
	ImageURL string
}

// Completer produces one assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, turns []Turn, maxTokens int) (string, error)
}

// OpenAICompleter is the production Completer.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float64
}

func NewOpenAICompleter(client *openai.Client, model string, temperature float64) *OpenAICompleter {
	return &OpenAICompleter{
		client:      client,
		model:       model,
		temperature: temperature,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, turns []Turn, maxTokens int) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, turn := range turns {
		msg := openai.ChatCompletionMessage{Role: turn.Role}
		if turn.ImageURL == "" {
			msg.Content = turn.Content
		} else {
			// Multimodal turns carry text and image as separate parts.
			if turn.Content != "" {
				msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: turn.Content,
				})
			}
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: turn.ImageURL},
			})
		}
		messages = append(messages, msg)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
