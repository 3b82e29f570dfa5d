package learning

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avenika/study-helper/internal/models"
)

// Embedder turns text into a unit-normalized vector of fixed dimensionality.
// Failures are reported as errors, never as zero vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Classifier maps text onto the closed subject enum plus an optional short
// concept name. It is total: implementations fall back to General internally
// rather than failing, because the underlying oracle output cannot be trusted.
type Classifier interface {
	Classify(ctx context.Context, text string) (models.Subject, string)
}

// Store is the persistence boundary the pipeline consumes. SubjectCluster
// returns (nil, nil) when no aggregate exists yet for the pair;
// ApplyLearningUpdate must be atomic: all writes commit or none do.
type Store interface {
	ConceptClusters(ctx context.Context, userID int64, subject models.Subject) ([]*models.ConceptCluster, error)
	SubjectCluster(ctx context.Context, userID int64, subject models.Subject) (*models.SubjectCluster, error)
	ApplyLearningUpdate(ctx context.Context, update *models.LearningUpdate) error
}

// SubjectSnapshot is what a pipeline invocation reports back to its caller:
// the post-update mastery view of the subject the message landed in.
type SubjectSnapshot struct {
	Subject       models.Subject         `json:"subject"`
	LearningSkill models.ConfidenceLevel `json:"learning_skill"`
	ConceptCount  int                    `json:"concept_count"`
	LastUpdated   time.Time              `json:"last_updated"`
}

type subjectKey struct {
	userID  int64
	subject models.Subject
}

// subjectLocks serializes pipeline invocations per (user, subject). Without
// this, two concurrent messages could both read the same cluster snapshot,
// both decide "no match", and insert duplicate clusters. Entries are never
// removed; growth is bounded by users x subjects.
type subjectLocks struct {
	mu    sync.Mutex
	locks map[subjectKey]*sync.Mutex
}

func newSubjectLocks() *subjectLocks {
	return &subjectLocks{locks: make(map[subjectKey]*sync.Mutex)}
}

func (l *subjectLocks) lock(userID int64, subject models.Subject) (unlock func()) {
	key := subjectKey{userID: userID, subject: subject}
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Pipeline sequences the learning update for each incoming user message:
// embed, classify, match, reinforce-or-create, aggregate, persist atomically.
// Safe for concurrent use across users; same-(user, subject) invocations are
// serialized internally.
type Pipeline struct {
	embedder   Embedder
	classifier Classifier
	store      Store
	extractor  SignalExtractor // optional; nil disables signal extraction
	metrics    *Metrics        // optional
	logger     *zap.Logger
	locks      *subjectLocks
}

// NewPipeline wires the learning pipeline. extractor and metrics may be nil.
func NewPipeline(embedder Embedder, classifier Classifier, store Store, extractor SignalExtractor, metrics *Metrics, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		embedder:   embedder,
		classifier: classifier,
		store:      store,
		extractor:  extractor,
		metrics:    metrics,
		logger:     logger,
		locks:      newSubjectLocks(),
	}
}

// ProcessMessage runs the full pipeline for one user-authored message.
// messageID links extracted signals to the originating chat message and may be
// zero. Empty or whitespace-only messages are a silent no-op returning
// (nil, nil). On any external-call or persistence failure nothing is
// persisted and the error is returned for the caller to treat as a non-fatal
// failure of the learning side-channel.
func (p *Pipeline) ProcessMessage(ctx context.Context, userID int64, text string, messageID int64) (*SubjectSnapshot, error) {
	if strings.TrimSpace(text) == "" {
		p.countMessage("skipped")
		return nil, nil
	}
	now := time.Now().UTC()

	embedding, err := p.embedder.Embed(ctx, text)
	if err != nil {
		// Without a vector no meaningful match is possible; the whole update
		// for this message is abandoned.
		p.countMessage("failed")
		p.logger.Error("learning update failed",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("stage", "embed"))
		return nil, fmt.Errorf("embed message: %w", err)
	}

	subject, conceptName := p.classifier.Classify(ctx, text)

	var kinds []models.SignalKind
	if p.extractor != nil {
		kinds = p.extractor.Extract(text)
	}

	// Steps below read, decide and write for one (user, subject) pair and must
	// not interleave with a concurrent invocation for the same pair.
	unlock := p.locks.lock(userID, subject)
	defer unlock()

	clusters, err := p.store.ConceptClusters(ctx, userID, subject)
	if err != nil {
		return nil, p.fail(userID, subject, "load clusters", err)
	}

	best, similarity := FindBestMatch(embedding, clusters)
	if len(clusters) > 0 && p.metrics != nil {
		p.metrics.MatchSimilarity.Observe(similarity)
	}

	var cluster *models.ConceptCluster
	if best != nil && similarity > SimilarityThreshold {
		if len(kinds) > 0 {
			ReinforceWithSignals(best, kinds, now)
		} else {
			Reinforce(best, similarity, now)
		}
		cluster = best
		p.countCluster("reinforced", subject)
	} else {
		cluster = NewCluster(userID, subject, conceptName, embedding, similarity, now)
		clusters = append(clusters, cluster)
		p.countCluster("created", subject)
	}

	subjectCluster, err := p.store.SubjectCluster(ctx, userID, subject)
	if err != nil {
		return nil, p.fail(userID, subject, "load subject", err)
	}
	subjectCluster = RecomputeSubject(subjectCluster, clusters, userID, subject, now)

	signals := make([]*models.InteractionSignal, 0, len(kinds))
	for _, kind := range kinds {
		signals = append(signals, &models.InteractionSignal{
			UserID:     userID,
			MessageID:  messageID,
			Kind:       kind,
			DetectedAt: now,
		})
		if p.metrics != nil {
			p.metrics.SignalsTotal.WithLabelValues(string(kind)).Inc()
		}
	}

	update := &models.LearningUpdate{Cluster: cluster, Subject: subjectCluster, Signals: signals}
	if err := p.store.ApplyLearningUpdate(ctx, update); err != nil {
		return nil, p.fail(userID, subject, "persist", err)
	}

	p.countMessage("processed")
	p.logger.Info("learning update",
		zap.Int64("user_id", userID),
		zap.String("subject", string(subject)),
		zap.String("concept", cluster.Name),
		zap.Float64("similarity", similarity),
		zap.Float64("score", cluster.ConfidenceScore))

	return &SubjectSnapshot{
		Subject:       subject,
		LearningSkill: subjectCluster.LearningSkill,
		ConceptCount:  len(clusters),
		LastUpdated:   subjectCluster.LastUpdated,
	}, nil
}

func (p *Pipeline) fail(userID int64, subject models.Subject, stage string, err error) error {
	p.countMessage("failed")
	p.logger.Error("learning update failed",
		zap.Error(err),
		zap.Int64("user_id", userID),
		zap.String("subject", string(subject)),
		zap.String("stage", stage))
	return fmt.Errorf("%s: %w", stage, err)
}

func (p *Pipeline) countMessage(result string) {
	if p.metrics != nil {
		p.metrics.MessagesTotal.WithLabelValues(result).Inc()
	}
}

func (p *Pipeline) countCluster(event string, subject models.Subject) {
	if p.metrics != nil {
		p.metrics.ClusterEvents.WithLabelValues(event, string(subject)).Inc()
	}
}
