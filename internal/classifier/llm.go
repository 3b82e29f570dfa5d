package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/avenika/study-helper/internal/models"
)

// maxClassifyChars bounds how much of the message is sent to the model; the
// opening of a question carries the subject.
const maxClassifyChars = 500

type classification struct {
	Subject string `json:"subject"`
	Concept string `json:"concept"`
}

// LLMClassifier asks a chat model for a {subject, concept} JSON object. Any
// request or parse failure degrades to the keyword classifier, so Classify
// never fails.
type LLMClassifier struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
	fallback    *KeywordClassifier
}

func NewLLMClassifier(client *openai.Client, model string, maxTokens int, temperature float64, logger *zap.Logger) *LLMClassifier {
	return &LLMClassifier{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
		fallback:    NewKeywordClassifier(),
	}
}

func (c *LLMClassifier) Classify(ctx context.Context, content string) (models.Subject, string) {
	if runes := []rune(content); len(runes) > maxClassifyChars {
		content = string(runes[:maxClassifyChars])
	}

	prompt := fmt.Sprintf(`Classify this student message into exactly one subject: Math, Science, English, or General.
Also name the specific concept the message is about, in at most 32 characters.

Return the response as a JSON object with this structure:
{
    "subject": "Math|Science|English|General",
    "concept": "short concept name"
}

Message: %s`, content)

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: float32(c.temperature),
		},
	)
	if err != nil {
		c.logger.Error("Failed to get classification response", zap.Error(err))
		return c.fallback.Classify(ctx, content)
	}

	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	subject, concept, err := parseClassification(response)
	if err != nil {
		c.logger.Error("Failed to parse classification response",
			zap.Error(err),
			zap.String("response", response))
		return c.fallback.Classify(ctx, content)
	}

	return subject, concept
}

// jsonObjectPattern tolerates prose or markdown fences around the object.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func parseClassification(raw string) (models.Subject, string, error) {
	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return models.SubjectGeneral, "", fmt.Errorf("no JSON object in response")
	}

	var parsed classification
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return models.SubjectGeneral, "", fmt.Errorf("error parsing classification: %v", err)
	}

	return models.ParseSubject(strings.TrimSpace(parsed.Subject)), strings.TrimSpace(parsed.Concept), nil
}
