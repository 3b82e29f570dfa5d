package learning

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avenika/study-helper/internal/models"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func seenCluster(score float64, lastSeen time.Time) *models.ConceptCluster {
	return &models.ConceptCluster{
		Name:            "Fractions",
		ConfidenceScore: score,
		Confidence:      ScoreToLevel(score),
		LastSeen:        lastSeen,
	}
}

func TestScoreToLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  models.ConfidenceLevel
	}{
		{0, models.ConfidenceWeak},
		{2.99, models.ConfidenceWeak},
		{3.0, models.ConfidenceImproving},
		{4.99, models.ConfidenceImproving},
		{5.0, models.ConfidenceStrong},
		{6.0, models.ConfidenceStrong},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ScoreToLevel(tt.score), "score %v", tt.score)
	}
}

func TestReinforceSameDay(t *testing.T) {
	c := seenCluster(1.0, baseTime)

	Reinforce(c, 0.9, baseTime)

	// No decay, no spacing bonus: 1.0 + 0.5 + 0.9*0.8.
	assert.InDelta(t, 2.22, c.ConfidenceScore, 1e-9)
	assert.Equal(t, models.ConfidenceWeak, c.Confidence)
	assert.InDelta(t, 1.22, c.ConfidenceDelta, 1e-9)
	assert.Equal(t, baseTime, c.DeltaSince)
	assert.Equal(t, baseTime, c.LastSeen)
}

func TestReinforceAppliesDecayThenSpacing(t *testing.T) {
	// Three days since last seen: decay 0.3, spacing bonus applies.
	c := seenCluster(0.5, baseTime.Add(-72*time.Hour))

	Reinforce(c, 1.0, baseTime)

	// 0.5 - 0.3 + 0.5 + 0.8 + 1.0.
	assert.InDelta(t, 2.5, c.ConfidenceScore, 1e-9)
	assert.Equal(t, models.ConfidenceWeak, c.Confidence)
	assert.InDelta(t, 2.0, c.ConfidenceDelta, 1e-9)
	assert.Equal(t, baseTime.Add(-72*time.Hour), c.DeltaSince)
	assert.Equal(t, baseTime, c.LastSeen)
}

func TestReinforceDecayFloorsAtZero(t *testing.T) {
	// Thirty days of decay would drive 0.2 negative; it floors at 0 before
	// the gain is added, and the gap is too long for the spacing bonus.
	c := seenCluster(0.2, baseTime.Add(-30*24*time.Hour))

	Reinforce(c, 0, baseTime)

	assert.InDelta(t, 0.5, c.ConfidenceScore, 1e-9)
}

func TestReinforceCapsAtMaxConfidence(t *testing.T) {
	c := seenCluster(5.9, baseTime.Add(-48*time.Hour))

	Reinforce(c, 1.0, baseTime)

	assert.InDelta(t, MaxConfidence, c.ConfidenceScore, 1e-9)
	assert.Equal(t, models.ConfidenceStrong, c.Confidence)
	assert.InDelta(t, 0.1, c.ConfidenceDelta, 1e-9)
}

func TestReinforceSpacingWindow(t *testing.T) {
	tests := []struct {
		name  string
		days  int
		bonus bool
	}{
		{"one day too soon", 1, false},
		{"lower edge", 2, true},
		{"upper edge", 14, true},
		{"fifteen days too late", 15, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := seenCluster(3.0, baseTime.Add(-time.Duration(tt.days)*24*time.Hour))

			Reinforce(c, 0, baseTime)

			want := 3.0 - DecayPerDay*float64(tt.days) + RevisitBonus
			if tt.bonus {
				want += SpacingBonus
			}
			assert.InDelta(t, want, c.ConfidenceScore, 1e-9)
		})
	}
}

func TestReinforceClockSkewClampsToZeroDays(t *testing.T) {
	// LastSeen in the future must not produce negative decay or a spacing
	// bonus.
	c := seenCluster(2.0, baseTime.Add(26*time.Hour))

	Reinforce(c, 0.5, baseTime)

	assert.InDelta(t, 2.0+RevisitBonus+0.5*SimilarityWeight, c.ConfidenceScore, 1e-9)
	assert.Equal(t, baseTime, c.LastSeen)
}

func TestReinforceWithSignals(t *testing.T) {
	tests := []struct {
		name  string
		kinds []models.SignalKind
		gain  float64
	}{
		{
			name:  "follow up",
			kinds: []models.SignalKind{models.SignalFollowUp},
			gain:  1.0,
		},
		{
			name:  "self correction weighs double",
			kinds: []models.SignalKind{models.SignalSelfCorrection},
			gain:  2.0,
		},
		{
			name:  "cross topic",
			kinds: []models.SignalKind{models.SignalCrossTopic},
			gain:  1.0,
		},
		{
			name: "all three capped",
			kinds: []models.SignalKind{
				models.SignalFollowUp,
				models.SignalSelfCorrection,
				models.SignalCrossTopic,
			},
			gain: MaxSignalGain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := seenCluster(1.0, baseTime)

			ReinforceWithSignals(c, tt.kinds, baseTime)

			assert.InDelta(t, 1.0+tt.gain, c.ConfidenceScore, 1e-9)
			assert.Equal(t, ScoreToLevel(c.ConfidenceScore), c.Confidence)
		})
	}
}

func TestReinforceWithSignalsStillDecays(t *testing.T) {
	c := seenCluster(4.0, baseTime.Add(-5*24*time.Hour))

	ReinforceWithSignals(c, []models.SignalKind{models.SignalFollowUp}, baseTime)

	// 4.0 - 0.5 decay + 1.0 signal + 1.0 spacing.
	assert.InDelta(t, 5.5, c.ConfidenceScore, 1e-9)
	assert.Equal(t, models.ConfidenceStrong, c.Confidence)
}

func TestInitialScore(t *testing.T) {
	assert.InDelta(t, 0.5, InitialScore(0), 1e-9)
	assert.InDelta(t, 0.75, InitialScore(0.5), 1e-9)
	assert.InDelta(t, 0.925, InitialScore(0.85), 1e-9)
}

func TestNewCluster(t *testing.T) {
	embedding := Normalize([]float32{1, 2, 3})

	c := NewCluster(7, models.SubjectMath, "Quadratic equations", embedding, 0.4, baseTime)

	require.NotNil(t, c)
	assert.Equal(t, int64(7), c.UserID)
	assert.Equal(t, models.SubjectMath, c.Subject)
	assert.Equal(t, "Quadratic equations", c.Name)
	assert.InDelta(t, 0.7, c.ConfidenceScore, 1e-9)
	assert.Equal(t, models.ConfidenceWeak, c.Confidence)
	assert.InDelta(t, c.ConfidenceScore, c.ConfidenceDelta, 1e-9)
	assert.Equal(t, baseTime, c.DeltaSince)
	assert.Equal(t, baseTime, c.LastSeen)

	decoded, err := DecodeVector(c.Embedding, len(embedding))
	require.NoError(t, err)
	assert.Equal(t, embedding, decoded)
}

func TestNewClusterNameFallbackAndTruncation(t *testing.T) {
	c := NewCluster(1, models.SubjectGeneral, "", []float32{1}, 0, baseTime)
	assert.Equal(t, "Concept", c.Name)

	long := strings.Repeat("ab", 40)
	c = NewCluster(1, models.SubjectGeneral, long, []float32{1}, 0, baseTime)
	assert.Equal(t, long[:32], c.Name)
	assert.Len(t, c.Name, 32)
}
