package learning

import (
	"github.com/avenika/study-helper/internal/models"
)

// FindBestMatch returns the candidate cluster most similar to the query vector
// and its cosine similarity. Candidates are expected to be pre-scoped to one
// (user, subject) pair; the scan is linear in that subject's cluster count.
//
// The query must be unit-normalized. Stored embeddings are re-normalized
// before comparison; a stored vector that fails to decode or has zero
// magnitude scores 0 against everything. Ties are broken by the first
// candidate in stored order, which keeps results deterministic for a fixed
// candidate ordering.
//
// An empty candidate list returns (nil, 0.0). Pure function, no side effects.
func FindBestMatch(query []float32, clusters []*models.ConceptCluster) (*models.ConceptCluster, float64) {
	if len(clusters) == 0 {
		return nil, 0.0
	}

	var best *models.ConceptCluster
	bestSim := 0.0
	for _, c := range clusters {
		stored, err := DecodeVector(c.Embedding, len(query))
		if err != nil {
			// Incompatible row: it cannot win, but it must not block the scan.
			continue
		}
		sim := Cosine(query, Normalize(stored))
		if best == nil || sim > bestSim {
			best = c
			bestSim = sim
		}
	}
	if best == nil {
		// Every candidate was undecodable; treat as no match.
		return nil, 0.0
	}
	return best, bestSim
}
