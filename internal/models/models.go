package models

import "time"

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Avatar    string    `json:"avatar"`
	Blocked   []string  `json:"blocked"`
	Secret    string    `json:"-"` // TOTP seed
	CreatedAt time.Time `json:"created_at"`
}

// HasBlocked reports whether id is on the user's block list.
func (u *User) HasBlocked(id string) bool {
	for _, b := range u.Blocked {
		if b == id {
			return true
		}
	}
	return false
}

// Message is append-only. Text holds ciphertext; empty means no text.
type Message struct {
	ID         int64     `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Text       string    `json:"text,omitempty"`
	Img        string    `json:"img,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Thread struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
}

// Peer returns the participant that is not userID.
func (t *Thread) Peer(userID string) string {
	for _, p := range t.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// ThreadSummary is the per-user denormalized view of a thread.
type ThreadSummary struct {
	UserID      string    `json:"-"`
	ChatID      string    `json:"chat_id"`
	ReceiverID  string    `json:"receiver_id"`
	LastMessage string    `json:"last_message"`
	IsSeen      bool      `json:"is_seen"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type GroupThread struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatorID    string    `json:"creator_id"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
}

// GroupSummary mirrors ThreadSummary for groups. Name is stored encrypted.
type GroupSummary struct {
	UserID       string    `json:"-"`
	ChatID       string    `json:"chat_id"`
	Name         string    `json:"name"`
	Participants []string  `json:"participants"`
	LastMessage  string    `json:"last_message"`
	IsSeen       bool      `json:"is_seen"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PasswordReset struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}
