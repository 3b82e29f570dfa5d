package storage

import (
	"context"
	"errors"

	"github.com/avenika/study-helper/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an insert collides with a uniqueness
// constraint, e.g. registering an email twice.
var ErrAlreadyExists = errors.New("already exists")

type UserStorage interface {
	// CreateUser inserts the user and fills in its ID and timestamps.
	CreateUser(ctx context.Context, user *models.User) error
	UserByID(ctx context.Context, id int64) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	UserByRefreshToken(ctx context.Context, token string) (*models.User, error)
	// UpdateUser persists every mutable user field by ID.
	UpdateUser(ctx context.Context, user *models.User) error
}

type ChatStorage interface {
	CreateSession(ctx context.Context, session *models.ChatSession) error
	Session(ctx context.Context, id int64) (*models.ChatSession, error)
	// SessionsByUser lists the user's sessions, newest first.
	SessionsByUser(ctx context.Context, userID int64) ([]*models.ChatSession, error)
	RenameSession(ctx context.Context, id int64, title string) error
	// UpdateSessionSummary stores the rolling summary together with the ID of
	// the last message it covers.
	UpdateSessionSummary(ctx context.Context, id int64, summary string, upToMessageID int64) error
	// DeleteSession removes the session and all of its messages.
	DeleteSession(ctx context.Context, id int64) error

	// CreateMessage appends a message and fills in its ID.
	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	// MessagesBySession lists a session's messages in ascending ID order.
	MessagesBySession(ctx context.Context, sessionID int64) ([]*models.ChatMessage, error)
}

// LearningStorage is the persistence surface of the learning engine. Cluster
// reads return independent copies scoped to one user; SubjectCluster returns
// (nil, nil) when no aggregate exists yet, since lazy creation is the normal
// path and not an error. ApplyLearningUpdate applies the whole update
// atomically.
type LearningStorage interface {
	ConceptClusters(ctx context.Context, userID int64, subject models.Subject) ([]*models.ConceptCluster, error)
	ConceptClustersByUser(ctx context.Context, userID int64) ([]*models.ConceptCluster, error)
	SubjectCluster(ctx context.Context, userID int64, subject models.Subject) (*models.SubjectCluster, error)
	SubjectClustersByUser(ctx context.Context, userID int64) ([]*models.SubjectCluster, error)
	ApplyLearningUpdate(ctx context.Context, update *models.LearningUpdate) error
}

type Storage interface {
	UserStorage
	ChatStorage
	LearningStorage
	Close() error
}
