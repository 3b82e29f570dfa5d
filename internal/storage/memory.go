package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avenika/study-helper/internal/models"
)

type userSubject struct {
	userID  int64
	subject models.Subject
}

// MemoryStorage is the in-memory Storage implementation, selected by
// database.use_in_memory and used as the test double. All reads return copies
// so callers can mutate results freely; writes only land through the
// corresponding methods, which keeps ApplyLearningUpdate all-or-nothing.
type MemoryStorage struct {
	mu       sync.RWMutex
	users    map[int64]*models.User
	sessions map[int64]*models.ChatSession
	messages []*models.ChatMessage
	clusters []*models.ConceptCluster
	subjects map[userSubject]*models.SubjectCluster
	signals  []*models.InteractionSignal
	nextID   int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[int64]*models.User),
		sessions: make(map[int64]*models.ChatSession),
		subjects: make(map[userSubject]*models.SubjectCluster),
	}
}

func (s *MemoryStorage) next() int64 {
	s.nextID++
	return s.nextID
}

func copyUser(u *models.User) *models.User {
	cp := *u
	return &cp
}

func copySession(sess *models.ChatSession) *models.ChatSession {
	cp := *sess
	return &cp
}

func copyMessage(m *models.ChatMessage) *models.ChatMessage {
	cp := *m
	return &cp
}

func copyConceptCluster(c *models.ConceptCluster) *models.ConceptCluster {
	cp := *c
	cp.Embedding = append([]byte(nil), c.Embedding...)
	return &cp
}

func copySubjectCluster(sc *models.SubjectCluster) *models.SubjectCluster {
	cp := *sc
	return &cp
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return ErrAlreadyExists
		}
	}

	now := time.Now().UTC()
	user.ID = s.next()
	user.CreatedAt = now
	user.LastActive = now
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *MemoryStorage) userWhere(match func(*models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.userWhere(func(u *models.User) bool { return u.ID == id })
}

func (s *MemoryStorage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.userWhere(func(u *models.User) bool { return u.Email == email })
}

func (s *MemoryStorage) UserByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	if googleID == "" {
		return nil, ErrNotFound
	}
	return s.userWhere(func(u *models.User) bool { return u.GoogleID == googleID })
}

func (s *MemoryStorage) UserByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.userWhere(func(u *models.User) bool { return u.RefreshToken == token })
}

func (s *MemoryStorage) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; !exists {
		return ErrNotFound
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *MemoryStorage) CreateSession(ctx context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.Title == "" {
		session.Title = "New Chat"
	}
	session.ID = s.next()
	session.CreatedAt = time.Now().UTC()
	s.sessions[session.ID] = copySession(session)
	return nil
}

func (s *MemoryStorage) Session(ctx context.Context, id int64) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copySession(session), nil
}

func (s *MemoryStorage) SessionsByUser(ctx context.Context, userID int64) ([]*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*models.ChatSession
	for _, session := range s.sessions {
		if session.UserID == userID {
			sessions = append(sessions, copySession(session))
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *MemoryStorage) RenameSession(ctx context.Context, id int64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return ErrNotFound
	}
	session.Title = title
	return nil
}

func (s *MemoryStorage) UpdateSessionSummary(ctx context.Context, id int64, summary string, upToMessageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return ErrNotFound
	}
	session.Summary = summary
	session.SummaryUpToMessageID = upToMessageID
	return nil
}

func (s *MemoryStorage) DeleteSession(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return ErrNotFound
	}
	delete(s.sessions, id)

	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.SessionID != id {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

func (s *MemoryStorage) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.ID = s.next()
	s.messages = append(s.messages, copyMessage(msg))
	return nil
}

func (s *MemoryStorage) MessagesBySession(ctx context.Context, sessionID int64) ([]*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []*models.ChatMessage
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			messages = append(messages, copyMessage(m))
		}
	}
	return messages, nil
}

func (s *MemoryStorage) ConceptClusters(ctx context.Context, userID int64, subject models.Subject) ([]*models.ConceptCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var clusters []*models.ConceptCluster
	for _, c := range s.clusters {
		if c.UserID == userID && c.Subject == subject {
			clusters = append(clusters, copyConceptCluster(c))
		}
	}
	return clusters, nil
}

func (s *MemoryStorage) ConceptClustersByUser(ctx context.Context, userID int64) ([]*models.ConceptCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var clusters []*models.ConceptCluster
	for _, c := range s.clusters {
		if c.UserID == userID {
			clusters = append(clusters, copyConceptCluster(c))
		}
	}
	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].Subject < clusters[j].Subject })
	return clusters, nil
}

func (s *MemoryStorage) SubjectCluster(ctx context.Context, userID int64, subject models.Subject) (*models.SubjectCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, exists := s.subjects[userSubject{userID, subject}]
	if !exists {
		return nil, nil
	}
	return copySubjectCluster(sc), nil
}

func (s *MemoryStorage) SubjectClustersByUser(ctx context.Context, userID int64) ([]*models.SubjectCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var clusters []*models.SubjectCluster
	for key, sc := range s.subjects {
		if key.userID == userID {
			clusters = append(clusters, copySubjectCluster(sc))
		}
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Subject < clusters[j].Subject })
	return clusters, nil
}

func (s *MemoryStorage) ApplyLearningUpdate(ctx context.Context, update *models.LearningUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.Cluster != nil {
		if update.Cluster.ID == 0 {
			update.Cluster.ID = s.next()
			s.clusters = append(s.clusters, copyConceptCluster(update.Cluster))
		} else {
			found := false
			for i, c := range s.clusters {
				if c.ID == update.Cluster.ID {
					s.clusters[i] = copyConceptCluster(update.Cluster)
					found = true
					break
				}
			}
			if !found {
				return ErrNotFound
			}
		}
	}

	if update.Subject != nil {
		key := userSubject{update.Subject.UserID, update.Subject.Subject}
		if existing, exists := s.subjects[key]; exists {
			update.Subject.ID = existing.ID
		} else if update.Subject.ID == 0 {
			update.Subject.ID = s.next()
		}
		s.subjects[key] = copySubjectCluster(update.Subject)
	}

	for _, sig := range update.Signals {
		sig.ID = s.next()
		cp := *sig
		s.signals = append(s.signals, &cp)
	}

	return nil
}

// Signals lists a user's recorded interaction signals, oldest first.
func (s *MemoryStorage) Signals(userID int64) []*models.InteractionSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.InteractionSignal
	for _, sig := range s.signals {
		if sig.UserID == userID {
			cp := *sig
			out = append(out, &cp)
		}
	}
	return out
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
