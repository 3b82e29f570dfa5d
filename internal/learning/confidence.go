package learning

import (
	"math"
	"time"

	"github.com/avenika/study-helper/internal/models"
)

// Scoring constants. Scores live in [0, MaxConfidence]; the decay/reinforcement
// dynamics model a forgetting curve with a spaced-repetition sweet spot.
const (
	// SimilarityThreshold is the strict lower bound a match must exceed for a
	// message to reinforce an existing cluster instead of creating a new one.
	SimilarityThreshold = 0.85

	// DecayPerDay is subtracted per whole elapsed day since a cluster was last
	// seen, floored at zero, before any reinforcement applies.
	DecayPerDay = 0.1

	// MaxConfidence caps scores so repeated trivial interactions cannot
	// inflate mastery without bound.
	MaxConfidence = 6.0

	// RevisitBonus rewards returning to a concept at all; SimilarityWeight
	// scales the extra reward for how close the revisit actually is.
	RevisitBonus     = 0.5
	SimilarityWeight = 0.8

	// SpacingBonus is granted when the revisit gap lands in the
	// retention-optimal window, rewarding spaced review over cramming
	// (gap < SpacingMinDays) or neglect (gap > SpacingMaxDays).
	SpacingBonus   = 1.0
	SpacingMinDays = 2
	SpacingMaxDays = 14

	// BaseScore and InitialSimilarityWeight set a new cluster's starting
	// score: near-misses below the match threshold start warmer than cold
	// concepts because the best sub-threshold similarity is kept.
	BaseScore               = 0.5
	InitialSimilarityWeight = 0.5

	// MaxSignalGain caps the per-message reinforcement from interaction
	// signals, mirroring the cap role RevisitBonus+SimilarityWeight play in
	// the similarity path.
	MaxSignalGain = 2.5
)

// signalWeights scores each behavioral cue. Self-correction is weighted
// highest: noticing and fixing one's own mistake is the strongest evidence of
// active learning.
var signalWeights = map[models.SignalKind]float64{
	models.SignalFollowUp:       1.0,
	models.SignalSelfCorrection: 2.0,
	models.SignalCrossTopic:     1.0,
}

// ScoreToLevel buckets a confidence score into its categorical label. Total
// over all reals: score < 3 is Weak, 3 <= score < 5 is Improving, score >= 5
// is Strong.
func ScoreToLevel(score float64) models.ConfidenceLevel {
	if score < 3 {
		return models.ConfidenceWeak
	}
	if score < 5 {
		return models.ConfidenceImproving
	}
	return models.ConfidenceStrong
}

// elapsedDays returns the whole days between last and now, clamped at zero so
// clock skew can never produce negative decay.
func elapsedDays(last, now time.Time) int {
	days := int(now.Sub(last).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Reinforce applies the pattern-based confidence update for a revisit matched
// by similarity: time decay, then the revisit bonus plus a similarity-weighted
// term, then the spacing bonus when the gap falls in the sweet spot. The score
// is clamped to [0, MaxConfidence], the label invariant is restored, the delta
// fields record the net change of this update, and LastSeen advances to now
// regardless of which bonuses applied.
func Reinforce(c *models.ConceptCluster, similarity float64, now time.Time) {
	reinforce(c, RevisitBonus+similarity*SimilarityWeight, now)
}

// ReinforceWithSignals is the update variant used when interaction-signal
// extraction is enabled and at least one signal fired: the reinforcement term
// is the summed signal weights capped at MaxSignalGain, replacing the
// revisit+similarity term. Decay, spacing, clamping and bookkeeping are
// identical to Reinforce.
func ReinforceWithSignals(c *models.ConceptCluster, kinds []models.SignalKind, now time.Time) {
	var gain float64
	for _, k := range kinds {
		gain += signalWeights[k]
	}
	reinforce(c, math.Min(gain, MaxSignalGain), now)
}

func reinforce(c *models.ConceptCluster, gain float64, now time.Time) {
	pre := c.ConfidenceScore
	prevSeen := c.LastSeen

	days := elapsedDays(c.LastSeen, now)
	score := math.Max(0, c.ConfidenceScore-DecayPerDay*float64(days))

	score += gain
	if days >= SpacingMinDays && days <= SpacingMaxDays {
		score += SpacingBonus
	}

	c.ConfidenceScore = math.Min(score, MaxConfidence)
	c.Confidence = ScoreToLevel(c.ConfidenceScore)
	c.ConfidenceDelta = c.ConfidenceScore - pre
	c.DeltaSince = prevSeen
	c.LastSeen = now
}

// InitialScore is the starting confidence for a cluster created because no
// existing cluster exceeded the similarity threshold. The best sub-threshold
// similarity still contributes, so near-misses start warmer than genuinely new
// concepts. Clamped into [0, MaxConfidence].
func InitialScore(bestSimilarity float64) float64 {
	score := BaseScore + bestSimilarity*InitialSimilarityWeight
	return math.Min(math.Max(score, 0), MaxConfidence)
}

// maxNameLen bounds the human-readable cluster label.
const maxNameLen = 32

// NewCluster builds a concept cluster for a first-seen concept. The embedding
// must already be unit-normalized; name falls back to "Concept" and is
// truncated to 32 characters. The label invariant holds on the returned value.
func NewCluster(userID int64, subject models.Subject, name string, embedding []float32, bestSimilarity float64, now time.Time) *models.ConceptCluster {
	if name == "" {
		name = "Concept"
	}
	if runes := []rune(name); len(runes) > maxNameLen {
		name = string(runes[:maxNameLen])
	}
	score := InitialScore(bestSimilarity)
	return &models.ConceptCluster{
		UserID:          userID,
		Subject:         subject,
		Embedding:       EncodeVector(embedding),
		Name:            name,
		ConfidenceScore: score,
		Confidence:      ScoreToLevel(score),
		ConfidenceDelta: score,
		DeltaSince:      now,
		LastSeen:        now,
	}
}
