package classifier

import (
	"context"
	"strings"
	"unicode"

	"github.com/avenika/study-helper/internal/models"
)

// Classifier assigns a student message to one subject and names the concept
// it is about. The concept name may be empty. Implementations are total: on
// any upstream failure they fall back to a keyword match or General rather
// than returning an error.
type Classifier interface {
	Classify(ctx context.Context, content string) (models.Subject, string)
}

// KeywordClassifier is the offline implementation: keyword lookup per
// subject, General when nothing matches. It also serves as the fallback for
// the LLM classifier.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var subjectKeywords = map[models.Subject][]string{
	models.SubjectMath: {
		"equation", "algebra", "fraction", "geometry", "calculus", "derivative",
		"integral", "polynomial", "theorem", "angle", "triangle", "probability",
		"exponent", "logarithm", "matrix", "solve for",
	},
	models.SubjectScience: {
		"atom", "molecule", "chemistry", "physics", "biology", "photosynthesis",
		"gravity", "velocity", "energy", "cell", "electron", "reaction",
		"ecosystem", "evolution", "newton", "periodic table",
	},
	models.SubjectEnglish: {
		"essay", "grammar", "metaphor", "paragraph", "thesis", "noun", "verb",
		"adjective", "poem", "shakespeare", "literature", "punctuation",
		"synonym", "spelling", "vocabulary",
	},
}

func (c *KeywordClassifier) Classify(_ context.Context, content string) (models.Subject, string) {
	lowered := strings.ToLower(content)

	bestSubject := models.SubjectGeneral
	bestHits := 0
	bestKeyword := ""
	for _, subject := range models.AllSubjects {
		hits := 0
		first := ""
		for _, keyword := range subjectKeywords[subject] {
			if strings.Contains(lowered, keyword) {
				hits++
				if first == "" {
					first = keyword
				}
			}
		}
		if hits > bestHits {
			bestSubject = subject
			bestHits = hits
			bestKeyword = first
		}
	}

	return bestSubject, capitalize(bestKeyword)
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
