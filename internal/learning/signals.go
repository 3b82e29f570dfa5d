package learning

import (
	"regexp"

	"github.com/avenika/study-helper/internal/models"
)

// SignalExtractor detects behavioral learning cues in raw message text. It is
// an optional pipeline capability: a nil extractor disables the stage.
// Implementations must be pure text matching with no external calls, so the
// stage can never block the pipeline.
type SignalExtractor interface {
	Extract(text string) []models.SignalKind
}

// RegexExtractor is the keyword/regex implementation of SignalExtractor. Each
// signal kind is reported at most once per message regardless of how many
// phrases matched.
type RegexExtractor struct {
	patterns map[models.SignalKind]*regexp.Regexp
}

// NewRegexExtractor compiles the cue patterns once; the extractor is safe for
// concurrent use.
func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{
		patterns: map[models.SignalKind]*regexp.Regexp{
			models.SignalFollowUp: regexp.MustCompile(
				`(?i)\b(what about|what if|but why|why does|why is|how come|can you explain|tell me more|and then what|follow[- ]?up)\b`),
			models.SignalSelfCorrection: regexp.MustCompile(
				`(?i)\b(oh wait|wait,? no|i was wrong|i meant|my mistake|actually,? no|i mixed (it|that|them) up|never ?mind,? i (see|get) it)\b`),
			models.SignalCrossTopic: regexp.MustCompile(
				`(?i)\b(like in|similar to|just like (in|with)|reminds me of|same as (in|with)|like we did (in|with))\b`),
		},
	}
}

// Extract returns the detected signal kinds in a stable order.
func (e *RegexExtractor) Extract(text string) []models.SignalKind {
	if text == "" {
		return nil
	}
	var kinds []models.SignalKind
	for _, k := range []models.SignalKind{models.SignalFollowUp, models.SignalSelfCorrection, models.SignalCrossTopic} {
		if e.patterns[k].MatchString(text) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
