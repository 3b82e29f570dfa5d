package models

import "time"

// User represents a registered account. Password-based and Google sign-in
// users share the same row; either PasswordHash or GoogleID may be empty.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	GoogleID     string    `json:"-"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
}

// ChatSession groups messages into one conversation and carries the rolling
// summary used to keep long conversations inside the model's context window.
type ChatSession struct {
	ID                   int64     `json:"id"`
	UserID               int64     `json:"user_id"`
	Title                string    `json:"title"`
	Summary              string    `json:"-"`
	SummaryUpToMessageID int64     `json:"-"`
	CreatedAt            time.Time `json:"created_at"`
}

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// ChatMessage is a single turn of a conversation.
type ChatMessage struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	SessionID int64     `json:"session_id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
