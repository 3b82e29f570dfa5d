package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avenika/study-helper/internal/models"
	"github.com/avenika/study-helper/internal/storage"
)

type progressHandler struct {
	store storage.LearningStorage
}

type subjectProgress struct {
	*models.SubjectCluster
	Concepts []*models.ConceptCluster `json:"concepts"`
}

// get returns the caller's subject mastery with per-concept detail, the
// read-only view over what the learning pipeline maintains.
func (h *progressHandler) get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	subjects, err := h.store.SubjectClustersByUser(ctx, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	concepts, err := h.store.ConceptClustersByUser(ctx, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	bySubject := make(map[models.Subject][]*models.ConceptCluster)
	for _, concept := range concepts {
		bySubject[concept.Subject] = append(bySubject[concept.Subject], concept)
	}

	out := make([]subjectProgress, 0, len(subjects))
	for _, subject := range subjects {
		clusters := bySubject[subject.Subject]
		if clusters == nil {
			clusters = []*models.ConceptCluster{}
		}
		out = append(out, subjectProgress{SubjectCluster: subject, Concepts: clusters})
	}
	c.JSON(http.StatusOK, gin.H{"subjects": out})
}
