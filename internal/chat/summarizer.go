package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/avenika/study-helper/internal/models"
)

const summarySystemPrompt = `You are a chat memory assistant. Update the running summary of a conversation by incorporating the new messages below into the previous summary.
- Keep the summary concise (max 500 tokens)
- Only include key facts, questions, and answers
- Do not repeat information
- Use neutral, factual language
- If the previous summary is empty, create a new summary
- If the new messages are trivial, you may keep the summary unchanged`

// Summarizer maintains the rolling per-session summary that stands in for
// conversation history that no longer fits the token window.
type Summarizer struct {
	completer Completer
	counter   TokenCounter
}

func NewSummarizer(completer Completer, counter TokenCounter) *Summarizer {
	return &Summarizer{completer: completer, counter: counter}
}

// Summarize folds newMessages into lastSummary and returns the updated summary
// together with the ID of the last message it now covers. With no new
// messages the previous values come back unchanged.
func (s *Summarizer) Summarize(ctx context.Context, lastSummary string, lastSummaryID int64, newMessages []*models.ChatMessage) (string, int64, error) {
	if len(newMessages) == 0 {
		return lastSummary, lastSummaryID, nil
	}

	lines := make([]string, 0, len(newMessages))
	for _, m := range newMessages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Sender, PreprocessText(m.Content)))
	}

	prev := lastSummary
	if prev == "" {
		prev = "[empty]"
	}
	prompt := fmt.Sprintf(
		"Previous summary:\n%s\n\nNew messages:\n%s\n\nUpdate the summary to include the new messages. Limit to 3-5 sentences.",
		prev, strings.Join(lines, "\n"))

	out, err := s.completer.Complete(ctx, []Turn{
		{Role: RoleSystem, Content: summarySystemPrompt},
		{Role: RoleUser, Content: prompt},
	}, SummaryMaxTokens)
	if err != nil {
		return "", 0, fmt.Errorf("summarize: %w", err)
	}

	summary := s.counter.Truncate(strings.TrimSpace(out), SummaryMaxTokens)
	return summary, newMessages[len(newMessages)-1].ID, nil
}
