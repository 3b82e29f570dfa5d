package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avenika/study-helper/internal/models"
)

func TestMemoryStorageUsers(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	user := &models.User{Email: "ada@example.com", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(ctx, user))
	assert.NotZero(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	got, err := s.UserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = s.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	dup := &models.User{Email: "ada@example.com"}
	assert.ErrorIs(t, s.CreateUser(ctx, dup), ErrAlreadyExists)

	got.GoogleID = "google-123"
	got.RefreshToken = "tok"
	require.NoError(t, s.UpdateUser(ctx, got))

	byGoogle, err := s.UserByGoogleID(ctx, "google-123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byGoogle.ID)

	byToken, err := s.UserByRefreshToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byToken.ID)

	// Empty lookups can never match the rows that have no google account or
	// token attached.
	_, err = s.UserByGoogleID(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.UserByRefreshToken(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorageUpdateMissingUser(t *testing.T) {
	s := NewMemoryStorage()

	err := s.UpdateUser(context.Background(), &models.User{ID: 42})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorageSessionsAndMessages(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	first := &models.ChatSession{UserID: 1}
	require.NoError(t, s.CreateSession(ctx, first))
	assert.Equal(t, "New Chat", first.Title)

	second := &models.ChatSession{UserID: 1, Title: "Algebra"}
	require.NoError(t, s.CreateSession(ctx, second))
	other := &models.ChatSession{UserID: 2, Title: "Not mine"}
	require.NoError(t, s.CreateSession(ctx, other))

	sessions, err := s.SessionsByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	require.NoError(t, s.RenameSession(ctx, first.ID, "Fractions"))
	got, err := s.Session(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fractions", got.Title)

	for i, content := range []string{"q1", "a1", "q2"} {
		sender := models.SenderUser
		if i%2 == 1 {
			sender = models.SenderAI
		}
		msg := &models.ChatMessage{UserID: 1, SessionID: first.ID, Sender: sender, Content: content}
		require.NoError(t, s.CreateMessage(ctx, msg))
		assert.NotZero(t, msg.ID)
	}

	messages, err := s.MessagesBySession(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "q1", messages[0].Content)
	assert.Equal(t, "q2", messages[2].Content)
	assert.True(t, messages[0].ID < messages[1].ID)

	require.NoError(t, s.UpdateSessionSummary(ctx, first.ID, "sum", messages[1].ID))
	got, err = s.Session(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "sum", got.Summary)
	assert.Equal(t, messages[1].ID, got.SummaryUpToMessageID)

	require.NoError(t, s.DeleteSession(ctx, first.ID))
	_, err = s.Session(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	messages, err = s.MessagesBySession(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	assert.ErrorIs(t, s.DeleteSession(ctx, first.ID), ErrNotFound)
}

func TestMemoryStorageLearningUpdateInsertAndUpdate(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now().UTC()

	cluster := &models.ConceptCluster{
		UserID:          1,
		Subject:         models.SubjectMath,
		Embedding:       []byte{1, 0, 0, 0},
		Name:            "Fractions",
		ConfidenceScore: 0.5,
		Confidence:      models.ConfidenceWeak,
		LastSeen:        now,
	}
	subject := &models.SubjectCluster{
		UserID:        1,
		Subject:       models.SubjectMath,
		LearningSkill: models.ConfidenceWeak,
		MeanScore:     0.5,
		LastUpdated:   now,
	}
	signal := &models.InteractionSignal{UserID: 1, MessageID: 9, Kind: models.SignalFollowUp, DetectedAt: now}

	err := s.ApplyLearningUpdate(ctx, &models.LearningUpdate{
		Cluster: cluster,
		Subject: subject,
		Signals: []*models.InteractionSignal{signal},
	})
	require.NoError(t, err)
	assert.NotZero(t, cluster.ID)
	assert.NotZero(t, subject.ID)
	assert.NotZero(t, signal.ID)

	clusters, err := s.ConceptClusters(ctx, 1, models.SubjectMath)
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	sc, err := s.SubjectCluster(ctx, 1, models.SubjectMath)
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.InDelta(t, 0.5, sc.MeanScore, 1e-9)

	require.Len(t, s.Signals(1), 1)

	// Second update reuses the cluster ID and upserts the subject row.
	cluster.ConfidenceScore = 1.8
	subject.MeanScore = 1.8
	err = s.ApplyLearningUpdate(ctx, &models.LearningUpdate{Cluster: cluster, Subject: subject})
	require.NoError(t, err)

	clusters, err = s.ConceptClusters(ctx, 1, models.SubjectMath)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.InDelta(t, 1.8, clusters[0].ConfidenceScore, 1e-9)

	sc, err = s.SubjectCluster(ctx, 1, models.SubjectMath)
	require.NoError(t, err)
	assert.Equal(t, subject.ID, sc.ID)
	assert.InDelta(t, 1.8, sc.MeanScore, 1e-9)
}

func TestMemoryStorageLearningUpdateUnknownCluster(t *testing.T) {
	s := NewMemoryStorage()

	err := s.ApplyLearningUpdate(context.Background(), &models.LearningUpdate{
		Cluster: &models.ConceptCluster{ID: 99, UserID: 1, Subject: models.SubjectMath},
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorageSubjectClusterAbsentIsNil(t *testing.T) {
	s := NewMemoryStorage()

	sc, err := s.SubjectCluster(context.Background(), 1, models.SubjectMath)
	require.NoError(t, err)
	assert.Nil(t, sc)
}

func TestMemoryStorageReadsReturnCopies(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	cluster := &models.ConceptCluster{
		UserID:    1,
		Subject:   models.SubjectMath,
		Embedding: []byte{1, 2, 3, 4},
		Name:      "Fractions",
	}
	require.NoError(t, s.ApplyLearningUpdate(ctx, &models.LearningUpdate{Cluster: cluster}))

	clusters, err := s.ConceptClusters(ctx, 1, models.SubjectMath)
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	// Mutating the returned copy must not leak into the store.
	clusters[0].Name = "Mutated"
	clusters[0].Embedding[0] = 0xFF

	again, err := s.ConceptClusters(ctx, 1, models.SubjectMath)
	require.NoError(t, err)
	assert.Equal(t, "Fractions", again[0].Name)
	assert.Equal(t, byte(1), again[0].Embedding[0])
}

func TestMemoryStorageIsolatesUsersAndSubjects(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	for _, c := range []*models.ConceptCluster{
		{UserID: 1, Subject: models.SubjectMath, Embedding: []byte{0, 0, 0, 0}},
		{UserID: 1, Subject: models.SubjectScience, Embedding: []byte{0, 0, 0, 0}},
		{UserID: 2, Subject: models.SubjectMath, Embedding: []byte{0, 0, 0, 0}},
	} {
		require.NoError(t, s.ApplyLearningUpdate(ctx, &models.LearningUpdate{Cluster: c}))
	}

	math1, err := s.ConceptClusters(ctx, 1, models.SubjectMath)
	require.NoError(t, err)
	assert.Len(t, math1, 1)

	all1, err := s.ConceptClustersByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all1, 2)

	all2, err := s.ConceptClustersByUser(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, all2, 1)
}
