package chat

import (
	"time"

	"github.com/safechathub/safechat/internal/cipher"
	"github.com/safechathub/safechat/internal/models"
)

// Views carry decrypted text. They are what the API and live subscriptions
// hand to clients.

type MessageView struct {
	ID         int64     `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Text       string    `json:"text,omitempty"`
	Img        string    `json:"img,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ThreadView struct {
	ID           string        `json:"id"`
	Participants []string      `json:"participants"`
	Messages     []MessageView `json:"messages"`
	CreatedAt    time.Time     `json:"created_at"`
}

type ChatListItem struct {
	ChatID      string       `json:"chat_id"`
	ReceiverID  string       `json:"receiver_id"`
	User        *models.User `json:"user"`
	LastMessage string       `json:"last_message"`
	IsSeen      bool         `json:"is_seen"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type GroupView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	CreatorID    string        `json:"creator_id"`
	Participants []string      `json:"participants"`
	Messages     []MessageView `json:"messages"`
	CreatedAt    time.Time     `json:"created_at"`
}

type GroupListItem struct {
	ChatID       string    `json:"chat_id"`
	Name         string    `json:"name"`
	Participants []string  `json:"participants"`
	LastMessage  string    `json:"last_message"`
	IsSeen       bool      `json:"is_seen"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func messageViews(c cipher.Cipher, msgs []models.Message) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, MessageView{
			ID:         m.ID,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Text:       cipher.Open(c, m.Text),
			Img:        m.Img,
			CreatedAt:  m.CreatedAt,
		})
	}
	return views
}

func threadView(c cipher.Cipher, t *models.Thread) *ThreadView {
	return &ThreadView{
		ID:           t.ID,
		Participants: t.Participants,
		Messages:     messageViews(c, t.Messages),
		CreatedAt:    t.CreatedAt,
	}
}

func groupView(c cipher.Cipher, g *models.GroupThread) *GroupView {
	return &GroupView{
		ID:           g.ID,
		Name:         g.Name,
		CreatorID:    g.CreatorID,
		Participants: g.Participants,
		Messages:     messageViews(c, g.Messages),
		CreatedAt:    g.CreatedAt,
	}
}
