package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/avenika/study-helper/internal/learning"
	"github.com/avenika/study-helper/internal/models"
	"github.com/avenika/study-helper/internal/storage"
)

// MaxMessageChars caps a single user message.
const MaxMessageChars = 20000

var (
	ErrNoInput        = errors.New("no input provided")
	ErrMessageTooLong = errors.New("message too long")
)

const tutorSystemPrompt = `You are a helpful tutor.
Formatting rules:
- Inline math: $a^2 + b^2 = c^2$
- Display math: $$ E = mc^2 $$
- Never use \( \) or \[ \]
- Never bold math
- LaTeX must compile
- If no math is needed, answer normally`

// LearningDispatcher receives each user message after the tutor reply has been
// produced. The learning pipeline satisfies this directly.
type LearningDispatcher interface {
	ProcessMessage(ctx context.Context, userID int64, text string, messageID int64) (*learning.SubjectSnapshot, error)
}

// ImageAttachment is an optional picture sent with a question.
type ImageAttachment struct {
	Filename string
	MIME     string
	Data     []byte
}

// AskInput carries one tutoring request.
type AskInput struct {
	SessionID int64
	Message   string
	Image     *ImageAttachment
}

// Service owns the chat flow: session bookkeeping, the token-windowed tutor
// conversation, rolling summaries, and dispatching the learning side-channel.
type Service struct {
	store           storage.Storage
	completer       Completer
	summarizer      *Summarizer
	counter         TokenCounter
	learner         LearningDispatcher // optional
	learningTimeout time.Duration
	logger          *zap.Logger
}

func NewService(store storage.Storage, completer Completer, summarizer *Summarizer, counter TokenCounter, learner LearningDispatcher, learningTimeout time.Duration, logger *zap.Logger) *Service {
	if learningTimeout <= 0 {
		learningTimeout = 30 * time.Second
	}
	return &Service{
		store:           store,
		completer:       completer,
		summarizer:      summarizer,
		counter:         counter,
		learner:         learner,
		learningTimeout: learningTimeout,
		logger:          logger,
	}
}

// CreateSession starts a new chat session owned by the user.
func (s *Service) CreateSession(ctx context.Context, user *models.User, title string) (*models.ChatSession, error) {
	session := &models.ChatSession{UserID: user.ID, Title: title}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Sessions lists the user's sessions, newest first.
func (s *Service) Sessions(ctx context.Context, user *models.User) ([]*models.ChatSession, error) {
	return s.store.SessionsByUser(ctx, user.ID)
}

// RenameSession retitles one of the user's sessions.
func (s *Service) RenameSession(ctx context.Context, user *models.User, sessionID int64, title string) (*models.ChatSession, error) {
	session, err := s.ownedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.store.RenameSession(ctx, session.ID, title); err != nil {
		return nil, err
	}
	session.Title = title
	return session, nil
}

// DeleteSession removes one of the user's sessions with all its messages.
func (s *Service) DeleteSession(ctx context.Context, user *models.User, sessionID int64) error {
	session, err := s.ownedSession(ctx, user, sessionID)
	if err != nil {
		return err
	}
	return s.store.DeleteSession(ctx, session.ID)
}

// History returns a session's messages, oldest first.
func (s *Service) History(ctx context.Context, user *models.User, sessionID int64) ([]*models.ChatMessage, error) {
	if _, err := s.ownedSession(ctx, user, sessionID); err != nil {
		return nil, err
	}
	return s.store.MessagesBySession(ctx, sessionID)
}

// ownedSession loads a session and hides its existence from non-owners.
func (s *Service) ownedSession(ctx context.Context, user *models.User, sessionID int64) (*models.ChatSession, error) {
	session, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != user.ID {
		return nil, storage.ErrNotFound
	}
	return session, nil
}

// Ask runs one tutoring turn: it validates the input, assembles the
// token-budgeted conversation (system prompt, rolling summary, recent
// history, the new message and optional image), asks the tutor model,
// persists both sides of the exchange and hands the user message to the
// learning pipeline. Learning and summarization failures never fail the turn.
func (s *Service) Ask(ctx context.Context, user *models.User, input AskInput) (string, error) {
	if input.Message == "" && input.Image == nil {
		return "", ErrNoInput
	}
	if utf8.RuneCountInString(input.Message) > MaxMessageChars {
		return "", ErrMessageTooLong
	}

	user.LastActive = time.Now().UTC()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return "", fmt.Errorf("touch user: %w", err)
	}

	session, err := s.ownedSession(ctx, user, input.SessionID)
	if err != nil {
		return "", err
	}

	history, err := s.store.MessagesBySession(ctx, session.ID)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	window := s.selectWindow(history)
	s.updateSummary(ctx, session, history, window)

	turns := s.buildTurns(session, window, input)
	reply, err := s.completer.Complete(ctx, turns, ResponseReserveTokens)
	if err != nil {
		return "", fmt.Errorf("tutor completion: %w", err)
	}

	var userMsgID int64
	if input.Message != "" {
		msg := &models.ChatMessage{
			UserID:    user.ID,
			SessionID: session.ID,
			Sender:    models.SenderUser,
			Content:   input.Message,
		}
		if err := s.store.CreateMessage(ctx, msg); err != nil {
			return "", fmt.Errorf("save user message: %w", err)
		}
		userMsgID = msg.ID
	}
	if input.Image != nil && input.Image.Filename != "" {
		marker := &models.ChatMessage{
			UserID:    user.ID,
			SessionID: session.ID,
			Sender:    models.SenderUser,
			Content:   fmt.Sprintf("[Image uploaded: %s]", input.Image.Filename),
		}
		if err := s.store.CreateMessage(ctx, marker); err != nil {
			return "", fmt.Errorf("save image marker: %w", err)
		}
	}
	aiMsg := &models.ChatMessage{
		UserID:    user.ID,
		SessionID: session.ID,
		Sender:    models.SenderAI,
		Content:   reply,
	}
	if err := s.store.CreateMessage(ctx, aiMsg); err != nil {
		return "", fmt.Errorf("save reply: %w", err)
	}

	if input.Message != "" {
		s.dispatchLearning(user.ID, input.Message, userMsgID)
	}

	return reply, nil
}

// selectWindow walks the history newest-first until the token budget for raw
// history is spent, returning the selected suffix in chronological order.
func (s *Service) selectWindow(history []*models.ChatMessage) []*models.ChatMessage {
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		tokens := s.counter.Count(PreprocessText(history[i].Content))
		if total+tokens > MaxWindowTokens {
			break
		}
		total += tokens
		start = i
	}
	return history[start:]
}

// updateSummary folds every message that fell out of the window and is not
// yet covered by the stored summary into the session's rolling summary.
// Failures are logged and swallowed: a stale summary only costs context.
func (s *Service) updateSummary(ctx context.Context, session *models.ChatSession, history, window []*models.ChatMessage) {
	beforeWindow := history
	if len(window) > 0 {
		firstID := window[0].ID
		beforeWindow = nil
		for _, m := range history {
			if m.ID < firstID {
				beforeWindow = append(beforeWindow, m)
			}
		}
	}

	var fresh []*models.ChatMessage
	for _, m := range beforeWindow {
		if m.ID > session.SummaryUpToMessageID {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) == 0 {
		return
	}

	summary, upTo, err := s.summarizer.Summarize(ctx, session.Summary, session.SummaryUpToMessageID, fresh)
	if err != nil {
		s.logger.Warn("summarization failed", zap.Error(err), zap.Int64("session_id", session.ID))
		return
	}
	if err := s.store.UpdateSessionSummary(ctx, session.ID, summary, upTo); err != nil {
		s.logger.Warn("summary not persisted", zap.Error(err), zap.Int64("session_id", session.ID))
		return
	}
	session.Summary = summary
	session.SummaryUpToMessageID = upTo
}

// buildTurns assembles the model conversation for one Ask call.
func (s *Service) buildTurns(session *models.ChatSession, window []*models.ChatMessage, input AskInput) []Turn {
	summaryText := session.Summary
	if summaryText == "" {
		summaryText = "[empty]"
	}
	turns := []Turn{
		{Role: RoleSystem, Content: tutorSystemPrompt},
		{Role: RoleSystem, Content: "Summary of previous conversation: " + summaryText},
	}

	for _, m := range window {
		content := PreprocessText(m.Content)
		if content == "" {
			continue
		}
		role := RoleUser
		if m.Sender == models.SenderAI {
			role = RoleAssistant
		}
		turns = append(turns, Turn{Role: role, Content: content})
	}

	userTurn := Turn{Role: RoleUser}
	if msg := PreprocessText(input.Message); msg != "" {
		userTurn.Content = s.counter.Truncate(msg, UserMaxTokens)
	}
	if input.Image != nil {
		mime := input.Image.MIME
		if mime == "" {
			mime = "image/png"
		}
		userTurn.ImageURL = fmt.Sprintf("data:%s;base64,%s",
			mime, base64.StdEncoding.EncodeToString(input.Image.Data))
	}
	if userTurn.Content != "" || userTurn.ImageURL != "" {
		turns = append(turns, userTurn)
	}

	return turns
}

// dispatchLearning hands the user message to the learning pipeline without
// blocking or failing the chat reply. The request context may be gone by the
// time the pipeline runs, so the goroutine gets its own deadline.
func (s *Service) dispatchLearning(userID int64, message string, messageID int64) {
	if s.learner == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.learningTimeout)
		defer cancel()
		if _, err := s.learner.ProcessMessage(ctx, userID, message, messageID); err != nil {
			s.logger.Warn("learning update skipped",
				zap.Error(err),
				zap.Int64("user_id", userID))
		}
	}()
}
