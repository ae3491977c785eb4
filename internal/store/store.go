package store

import (
	"context"
	"errors"
	"time"

	"github.com/safechathub/safechat/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already registered")
)

type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	UsernameExists(ctx context.Context, username string) (bool, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
	UpdateAvatar(ctx context.Context, userID, avatar string) error
	UpdatePassword(ctx context.Context, userID, hash string) error
	SetBlocked(ctx context.Context, userID, targetID string, blocked bool) error

	// Thread operations
	CreateThread(ctx context.Context, a, b string, at time.Time) (*models.Thread, error)
	ThreadBetween(ctx context.Context, a, b string) (string, error)
	GetThread(ctx context.Context, chatID string) (*models.Thread, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
	// AppendMessage stores msg and updates every participant's summary in one
	// transaction. The sender's summary is marked seen, everyone else's unseen.
	AppendMessage(ctx context.Context, msg *models.Message, lastMessage string, at time.Time) error
	ListSummaries(ctx context.Context, userID string) ([]models.ThreadSummary, error)
	MarkSeen(ctx context.Context, userID, chatID string) error
	DeleteThread(ctx context.Context, chatID string) error

	// Group operations
	CreateGroup(ctx context.Context, group *models.GroupThread, encryptedName string, at time.Time) error
	GetGroup(ctx context.Context, chatID string) (*models.GroupThread, error)
	IsGroupParticipant(ctx context.Context, chatID, userID string) (bool, error)
	AddGroupParticipant(ctx context.Context, chatID, userID, encryptedName string, at time.Time) error
	RemoveGroupParticipant(ctx context.Context, chatID, userID string) error
	AppendGroupMessage(ctx context.Context, msg *models.Message, lastMessage string, at time.Time) error
	ListGroupSummaries(ctx context.Context, userID string) ([]models.GroupSummary, error)
	MarkGroupSeen(ctx context.Context, userID, chatID string) error

	// Password resets
	CreatePasswordReset(ctx context.Context, reset *models.PasswordReset) error
	// ResetPassword consumes the token and sets the user's password hash
	// atomically, returning the user ID.
	ResetPassword(ctx context.Context, token, passwordHash string, now time.Time) (string, error)
}
