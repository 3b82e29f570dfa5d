package learning

import (
	"time"

	"github.com/avenika/study-helper/internal/models"
)

// RecomputeSubject derives the subject-level mastery aggregate from the full
// set of concept clusters sharing that subject. The caller passes exactly the
// live cluster set, including any cluster created or updated this call, so
// nothing is double counted or omitted.
//
// When existing is nil a new SubjectCluster is created lazily; otherwise it is
// updated in place and returned. An empty cluster set is a no-op: the existing
// state (nil included) comes back unchanged, and the mean is never computed
// over zero clusters.
//
// Recomputation is idempotent for a fixed cluster set: the label always equals
// ScoreToLevel of the mean, and the delta fields only move when the mean does.
func RecomputeSubject(existing *models.SubjectCluster, clusters []*models.ConceptCluster, userID int64, subject models.Subject, now time.Time) *models.SubjectCluster {
	if len(clusters) == 0 {
		return existing
	}

	var sum float64
	for _, c := range clusters {
		sum += c.ConfidenceScore
	}
	mean := sum / float64(len(clusters))

	if existing == nil {
		return &models.SubjectCluster{
			UserID:        userID,
			Subject:       subject,
			LearningSkill: ScoreToLevel(mean),
			MeanScore:     mean,
			LearningDelta: mean,
			DeltaSince:    now,
			LastUpdated:   now,
		}
	}

	if mean != existing.MeanScore {
		existing.LearningDelta = mean - existing.MeanScore
		existing.DeltaSince = existing.LastUpdated
		existing.MeanScore = mean
	}
	existing.LearningSkill = ScoreToLevel(mean)
	existing.LastUpdated = now
	return existing
}
