package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avenika/study-helper/internal/models"
)

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier()
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
		subject models.Subject
	}{
		{"math", "How do I solve this equation with a fraction?", models.SubjectMath},
		{"science", "Why does gravity make things fall with the same velocity?", models.SubjectScience},
		{"english", "Can you check the grammar in my essay?", models.SubjectEnglish},
		{"general", "What should I have for lunch?", models.SubjectGeneral},
		{"case insensitive", "EXPLAIN PHOTOSYNTHESIS", models.SubjectScience},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, _ := c.Classify(ctx, tt.content)
			assert.Equal(t, tt.subject, subject)
		})
	}
}

func TestKeywordClassifierConceptName(t *testing.T) {
	c := NewKeywordClassifier()

	subject, concept := c.Classify(context.Background(), "I keep mixing up algebra rules")
	assert.Equal(t, models.SubjectMath, subject)
	assert.Equal(t, "Algebra", concept)

	_, concept = c.Classify(context.Background(), "hello there")
	assert.Empty(t, concept)
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		subject models.Subject
		concept string
		wantErr bool
	}{
		{
			name:    "plain object",
			raw:     `{"subject": "Math", "concept": "Fractions"}`,
			subject: models.SubjectMath,
			concept: "Fractions",
		},
		{
			name:    "object wrapped in prose and fences",
			raw:     "Sure! Here you go:\n```json\n{\"subject\": \"Science\", \"concept\": \"Photosynthesis\"}\n```",
			subject: models.SubjectScience,
			concept: "Photosynthesis",
		},
		{
			name:    "unknown subject falls back to General",
			raw:     `{"subject": "History", "concept": "WW2"}`,
			subject: models.SubjectGeneral,
			concept: "WW2",
		},
		{
			name:    "whitespace trimmed",
			raw:     `{"subject": " English ", "concept": " Thesis statements "}`,
			subject: models.SubjectEnglish,
			concept: "Thesis statements",
		},
		{
			name:    "missing concept",
			raw:     `{"subject": "English"}`,
			subject: models.SubjectEnglish,
			concept: "",
		},
		{
			name:    "no JSON at all",
			raw:     "Math",
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			raw:     `{"subject": Math}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, concept, err := parseClassification(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.subject, subject)
			assert.Equal(t, tt.concept, concept)
		})
	}
}
