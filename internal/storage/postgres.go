package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/avenika/study-helper/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.LastActive = now

	query := `
		INSERT INTO users (email, password_hash, google_id, refresh_token, created_at, last_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		user.Email,
		user.PasswordHash,
		user.GoogleID,
		user.RefreshToken,
		user.CreatedAt,
		user.LastActive,
	).Scan(&user.ID)

	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("error creating user: %v", err)
	}

	return nil
}

func (s *PostgresStorage) userWhere(ctx context.Context, clause string, arg any) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, google_id, refresh_token, created_at, last_active
		FROM users
		WHERE ` + clause

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.GoogleID,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.LastActive,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %v", err)
	}

	return user, nil
}

func (s *PostgresStorage) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.userWhere(ctx, "id = $1", id)
}

func (s *PostgresStorage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.userWhere(ctx, "email = $1", email)
}

func (s *PostgresStorage) UserByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	if googleID == "" {
		return nil, ErrNotFound
	}
	return s.userWhere(ctx, "google_id = $1", googleID)
}

func (s *PostgresStorage) UserByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.userWhere(ctx, "refresh_token = $1", token)
}

func (s *PostgresStorage) UpdateUser(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET email = $1, password_hash = $2, google_id = $3, refresh_token = $4, last_active = $5
		WHERE id = $6`

	result, err := s.db.ExecContext(ctx, query,
		user.Email,
		user.PasswordHash,
		user.GoogleID,
		user.RefreshToken,
		user.LastActive,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating user: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStorage) CreateSession(ctx context.Context, session *models.ChatSession) error {
	if session.Title == "" {
		session.Title = "New Chat"
	}
	session.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO chat_sessions (user_id, title, summary, summary_up_to_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		session.UserID,
		session.Title,
		session.Summary,
		session.SummaryUpToMessageID,
		session.CreatedAt,
	).Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("error creating session: %v", err)
	}

	return nil
}

func (s *PostgresStorage) Session(ctx context.Context, id int64) (*models.ChatSession, error) {
	query := `
		SELECT id, user_id, title, summary, summary_up_to_message_id, created_at
		FROM chat_sessions
		WHERE id = $1`

	session := &models.ChatSession{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.Title,
		&session.Summary,
		&session.SummaryUpToMessageID,
		&session.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying session: %v", err)
	}

	return session, nil
}

func (s *PostgresStorage) SessionsByUser(ctx context.Context, userID int64) ([]*models.ChatSession, error) {
	query := `
		SELECT id, user_id, title, summary, summary_up_to_message_id, created_at
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying sessions: %v", err)
	}
	defer rows.Close()

	var sessions []*models.ChatSession
	for rows.Next() {
		session := &models.ChatSession{}
		err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.Title,
			&session.Summary,
			&session.SummaryUpToMessageID,
			&session.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning session: %v", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

func (s *PostgresStorage) RenameSession(ctx context.Context, id int64, title string) error {
	return s.execOnSession(ctx, "UPDATE chat_sessions SET title = $1 WHERE id = $2", title, id)
}

func (s *PostgresStorage) UpdateSessionSummary(ctx context.Context, id int64, summary string, upToMessageID int64) error {
	return s.execOnSession(ctx,
		"UPDATE chat_sessions SET summary = $1, summary_up_to_message_id = $2 WHERE id = $3",
		summary, upToMessageID, id)
}

func (s *PostgresStorage) DeleteSession(ctx context.Context, id int64) error {
	return s.execOnSession(ctx, "DELETE FROM chat_sessions WHERE id = $1", id)
}

func (s *PostgresStorage) execOnSession(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating session: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStorage) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO chat_messages (user_id, session_id, sender, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		msg.UserID,
		msg.SessionID,
		msg.Sender,
		msg.Content,
		msg.Timestamp,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("error creating message: %v", err)
	}

	return nil
}

func (s *PostgresStorage) MessagesBySession(ctx context.Context, sessionID int64) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, user_id, session_id, sender, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %v", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		msg := &models.ChatMessage{}
		err := rows.Scan(
			&msg.ID,
			&msg.UserID,
			&msg.SessionID,
			&msg.Sender,
			&msg.Content,
			&msg.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning message: %v", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (s *PostgresStorage) conceptClustersWhere(ctx context.Context, clause string, args ...any) ([]*models.ConceptCluster, error) {
	query := `
		SELECT id, user_id, subject, embedding, name, confidence_score, confidence, confidence_delta, delta_since, last_seen
		FROM concept_clusters
		WHERE ` + clause

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying concept clusters: %v", err)
	}
	defer rows.Close()

	var clusters []*models.ConceptCluster
	for rows.Next() {
		c := &models.ConceptCluster{}
		err := rows.Scan(
			&c.ID,
			&c.UserID,
			&c.Subject,
			&c.Embedding,
			&c.Name,
			&c.ConfidenceScore,
			&c.Confidence,
			&c.ConfidenceDelta,
			&c.DeltaSince,
			&c.LastSeen,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning concept cluster: %v", err)
		}
		clusters = append(clusters, c)
	}

	return clusters, rows.Err()
}

func (s *PostgresStorage) ConceptClusters(ctx context.Context, userID int64, subject models.Subject) ([]*models.ConceptCluster, error) {
	return s.conceptClustersWhere(ctx, "user_id = $1 AND subject = $2 ORDER BY id ASC", userID, subject)
}

func (s *PostgresStorage) ConceptClustersByUser(ctx context.Context, userID int64) ([]*models.ConceptCluster, error) {
	return s.conceptClustersWhere(ctx, "user_id = $1 ORDER BY subject ASC, id ASC", userID)
}

func (s *PostgresStorage) SubjectCluster(ctx context.Context, userID int64, subject models.Subject) (*models.SubjectCluster, error) {
	query := `
		SELECT id, user_id, subject, learning_skill, mean_score, learning_delta, delta_since, last_updated
		FROM subject_clusters
		WHERE user_id = $1 AND subject = $2`

	sc := &models.SubjectCluster{}
	err := s.db.QueryRowContext(ctx, query, userID, subject).Scan(
		&sc.ID,
		&sc.UserID,
		&sc.Subject,
		&sc.LearningSkill,
		&sc.MeanScore,
		&sc.LearningDelta,
		&sc.DeltaSince,
		&sc.LastUpdated,
	)
	if err == sql.ErrNoRows {
		// Lazily created by the first learning update; absence is not an error.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying subject cluster: %v", err)
	}

	return sc, nil
}

func (s *PostgresStorage) SubjectClustersByUser(ctx context.Context, userID int64) ([]*models.SubjectCluster, error) {
	query := `
		SELECT id, user_id, subject, learning_skill, mean_score, learning_delta, delta_since, last_updated
		FROM subject_clusters
		WHERE user_id = $1
		ORDER BY subject ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying subject clusters: %v", err)
	}
	defer rows.Close()

	var clusters []*models.SubjectCluster
	for rows.Next() {
		sc := &models.SubjectCluster{}
		err := rows.Scan(
			&sc.ID,
			&sc.UserID,
			&sc.Subject,
			&sc.LearningSkill,
			&sc.MeanScore,
			&sc.LearningDelta,
			&sc.DeltaSince,
			&sc.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning subject cluster: %v", err)
		}
		clusters = append(clusters, sc)
	}

	return clusters, rows.Err()
}

func (s *PostgresStorage) ApplyLearningUpdate(ctx context.Context, update *models.LearningUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	if update.Cluster != nil {
		if err := applyCluster(ctx, tx, update.Cluster); err != nil {
			return err
		}
	}
	if update.Subject != nil {
		if err := applySubject(ctx, tx, update.Subject); err != nil {
			return err
		}
	}
	for _, sig := range update.Signals {
		query := `
			INSERT INTO interaction_signals (user_id, message_id, kind, detected_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id`
		err := tx.QueryRowContext(ctx, query, sig.UserID, sig.MessageID, sig.Kind, sig.DetectedAt).Scan(&sig.ID)
		if err != nil {
			return fmt.Errorf("error inserting interaction signal: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing learning update: %v", err)
	}

	return nil
}

func applyCluster(ctx context.Context, tx *sql.Tx, c *models.ConceptCluster) error {
	if c.ID == 0 {
		query := `
			INSERT INTO concept_clusters (user_id, subject, embedding, name, confidence_score, confidence, confidence_delta, delta_since, last_seen)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`

		err := tx.QueryRowContext(ctx, query,
			c.UserID,
			c.Subject,
			c.Embedding,
			c.Name,
			c.ConfidenceScore,
			c.Confidence,
			c.ConfidenceDelta,
			c.DeltaSince,
			c.LastSeen,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("error inserting concept cluster: %v", err)
		}
		return nil
	}

	// The embedding stays the first-seen representative; reinforcement only
	// moves the score-related fields.
	query := `
		UPDATE concept_clusters
		SET confidence_score = $1, confidence = $2, confidence_delta = $3, delta_since = $4, last_seen = $5
		WHERE id = $6`

	result, err := tx.ExecContext(ctx, query,
		c.ConfidenceScore,
		c.Confidence,
		c.ConfidenceDelta,
		c.DeltaSince,
		c.LastSeen,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating concept cluster: %v", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func applySubject(ctx context.Context, tx *sql.Tx, sc *models.SubjectCluster) error {
	query := `
		INSERT INTO subject_clusters (user_id, subject, learning_skill, mean_score, learning_delta, delta_since, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, subject) DO UPDATE SET
			learning_skill = EXCLUDED.learning_skill,
			mean_score = EXCLUDED.mean_score,
			learning_delta = EXCLUDED.learning_delta,
			delta_since = EXCLUDED.delta_since,
			last_updated = EXCLUDED.last_updated
		RETURNING id`

	err := tx.QueryRowContext(ctx, query,
		sc.UserID,
		sc.Subject,
		sc.LearningSkill,
		sc.MeanScore,
		sc.LearningDelta,
		sc.DeltaSince,
		sc.LastUpdated,
	).Scan(&sc.ID)
	if err != nil {
		return fmt.Errorf("error upserting subject cluster: %v", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
