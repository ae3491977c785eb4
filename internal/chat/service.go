// Package chat runs every user-facing operation: the send pipeline (gate,
// validate, screen, encrypt, persist, publish), contacts and blocking, group
// chats, and accounts.
package chat

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/safechathub/safechat/internal/apperr"
	"github.com/safechathub/safechat/internal/cipher"
	"github.com/safechathub/safechat/internal/models"
	"github.com/safechathub/safechat/internal/screening"
	"github.com/safechathub/safechat/internal/session"
	"github.com/safechathub/safechat/internal/store"
	"github.com/safechathub/safechat/internal/ws"
)

// Publisher pushes a snapshot to the subscribers of a topic.
type Publisher interface {
	Publish(topic string, v any) error
}

type Mailer interface {
	SendPasswordReset(to, username, link string) error
}

type ObjectStore interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
	URL(key string) string
}

type Deps struct {
	Store     store.Store
	Objects   ObjectStore
	Cipher    cipher.Cipher
	Screener  *screening.Screener
	Publisher Publisher
	Mailer    Mailer
	// PublicURL is the front-end address used in password reset links.
	PublicURL string
	Now       func() time.Time
	Log       zerolog.Logger
}

type Service struct {
	store     store.Store
	objects   ObjectStore
	cipher    cipher.Cipher
	screener  *screening.Screener
	pub       Publisher
	mailer    Mailer
	sessions  *session.Registry
	publicURL string
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		store:     d.Store,
		objects:   d.Objects,
		cipher:    d.Cipher,
		screener:  d.Screener,
		pub:       d.Publisher,
		mailer:    d.Mailer,
		publicURL: d.PublicURL,
		now:       d.Now,
		log:       d.Log.With().Str("component", "chat").Logger(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.sessions = session.NewRegistry(func(userID string, st *session.Store) {
		st.Subscribe(func(state session.State) {
			s.publish(ws.SessionTopic(userID), state)
		})
	})
	return s
}

// Session returns the live session store of userID.
func (s *Service) Session(userID string) *session.Store {
	return s.sessions.For(userID)
}

func (s *Service) publish(topic string, v any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(topic, v); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

func (s *Service) publishChats(ctx context.Context, userIDs ...string) {
	for _, id := range userIDs {
		chats, err := s.ListChats(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", id).Msg("could not load chat list")
			continue
		}
		s.publish(ws.UserChatsTopic(id), chats)
	}
}

func (s *Service) publishGroups(ctx context.Context, userIDs ...string) {
	for _, id := range userIDs {
		groups, err := s.ListGroupChats(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", id).Msg("could not load group list")
			continue
		}
		s.publish(ws.UserGroupsTopic(id), groups)
	}
}

func (s *Service) user(ctx context.Context, id string) (*models.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to load user", err)
	}
	return u, nil
}

// thread loads chatID and checks that userID takes part in it.
func (s *Service) thread(ctx context.Context, userID, chatID string) (*models.Thread, error) {
	t, err := s.store.GetThread(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Chat not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to load chat", err)
	}
	if !contains(t.Participants, userID) {
		return nil, apperr.Forbidden("You are not a participant of this chat")
	}
	return t, nil
}

func (s *Service) group(ctx context.Context, userID, chatID string) (*models.GroupThread, error) {
	g, err := s.store.GetGroup(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Group chat not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to load group chat", err)
	}
	if !contains(g.Participants, userID) {
		return nil, apperr.Forbidden("You are not a member of this group")
	}
	return g, nil
}

// CanView reports whether userID may follow the thread or group chatID.
func (s *Service) CanView(ctx context.Context, userID, chatID string, group bool) (bool, error) {
	if group {
		return s.store.IsGroupParticipant(ctx, chatID, userID)
	}
	return s.store.IsParticipant(ctx, chatID, userID)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
