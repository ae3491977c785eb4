package chat

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/safechathub/safechat/internal/apperr"
	"github.com/safechathub/safechat/internal/cipher"
	"github.com/safechathub/safechat/internal/models"
	"github.com/safechathub/safechat/internal/session"
	"github.com/safechathub/safechat/internal/store"
)

// AddContact starts a thread between currentID and the user called username.
func (s *Service) AddContact(ctx context.Context, currentID, username string) (*ThreadView, error) {
	username = strings.TrimSpace(username)
	current, err := s.user(ctx, currentID)
	if err != nil {
		return nil, err
	}
	if username == current.Username {
		return nil, apperr.InvalidArg("You cannot add yourself")
	}

	target, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "An error occurred while searching", err)
	}

	_, err = s.store.ThreadBetween(ctx, current.ID, target.ID)
	if err == nil {
		return nil, apperr.AlreadyExists("User is already in your chat list")
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Wrap(apperr.CodeInternal, "An error occurred while adding user", err)
	}

	thread, err := s.store.CreateThread(ctx, current.ID, target.ID, s.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "An error occurred while adding user", err)
	}
	s.log.Info().Str("chat_id", thread.ID).Str("user_id", current.ID).Str("peer_id", target.ID).Msg("contact added")

	s.publishChats(ctx, current.ID, target.ID)
	return threadView(s.cipher, thread), nil
}

// DeleteContact removes the thread with its messages and both summaries. Any
// session showing the thread is reset.
func (s *Service) DeleteContact(ctx context.Context, currentID, chatID string) error {
	thread, err := s.thread(ctx, currentID, chatID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteThread(ctx, chatID); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "Failed to delete friend.", err)
	}

	for _, p := range thread.Participants {
		if st := s.sessions.For(p); st.State().ChatID == chatID {
			st.Dispatch(session.Reset{})
		}
	}
	s.publishChats(ctx, thread.Participants...)
	return nil
}

// SelectChat opens chatID in the user's session and marks it seen.
func (s *Service) SelectChat(ctx context.Context, userID, chatID string) (session.State, error) {
	thread, err := s.thread(ctx, userID, chatID)
	if err != nil {
		return session.State{}, err
	}
	current, err := s.user(ctx, userID)
	if err != nil {
		return session.State{}, err
	}
	peer, err := s.user(ctx, thread.Peer(userID))
	if err != nil {
		return session.State{}, err
	}

	state := s.sessions.For(userID).Dispatch(session.Select{ChatID: chatID, Current: current, Peer: peer})

	if err := s.store.MarkSeen(ctx, userID, chatID); err != nil {
		return state, apperr.Wrap(apperr.CodeInternal, "Failed to update chat status", err)
	}
	s.publishChats(ctx, userID)
	return state, nil
}

// ToggleBlock blocks or unblocks the peer of chatID. The session flips first
// and goes back to its previous block state if the change cannot be stored.
// Toggles by the same user run one at a time.
func (s *Service) ToggleBlock(ctx context.Context, userID, chatID string) (session.State, error) {
	st := s.sessions.For(userID)
	release := st.Exclusive()
	defer release()

	state := st.State()
	if state.ChatID != chatID {
		var err error
		if state, err = s.SelectChat(ctx, userID, chatID); err != nil {
			return state, err
		}
	}
	if state.Peer == nil {
		// The peer has blocked us, so there is no profile to act on.
		return state, nil
	}

	prev := state.ReceiverBlocked
	next := st.Dispatch(session.ToggleBlock{})
	if err := s.store.SetBlocked(ctx, userID, next.PeerID, next.ReceiverBlocked); err != nil {
		reverted := st.Dispatch(session.SetReceiverBlocked{ChatID: chatID, Blocked: prev})
		return reverted, apperr.Wrap(apperr.CodeInternal, "Failed to update block status", err)
	}
	s.log.Info().Str("user_id", userID).Str("peer_id", next.PeerID).Bool("blocked", next.ReceiverBlocked).Msg("block toggled")

	s.refreshPeerSession(ctx, next.PeerID, chatID)
	s.publishChats(ctx, next.PeerID)
	return next, nil
}

// refreshPeerSession re-derives the peer's session if it is showing chatID.
func (s *Service) refreshPeerSession(ctx context.Context, peerID, chatID string) {
	st := s.sessions.For(peerID)
	if st.State().ChatID != chatID {
		return
	}
	thread, err := s.store.GetThread(ctx, chatID)
	if err != nil {
		return
	}
	peer, err := s.store.GetUserByID(ctx, peerID)
	if err != nil {
		return
	}
	other, err := s.store.GetUserByID(ctx, thread.Peer(peerID))
	if err != nil {
		return
	}
	st.Dispatch(session.Select{ChatID: chatID, Current: peer, Peer: other})
}

// ListChats returns the user's threads, newest first. Threads whose peer has
// blocked the user are left out.
func (s *Service) ListChats(ctx context.Context, userID string) ([]ChatListItem, error) {
	summaries, err := s.store.ListSummaries(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to load chats", err)
	}

	items := make([]ChatListItem, 0, len(summaries))
	for _, sum := range summaries {
		peer, err := s.store.GetUserByID(ctx, sum.ReceiverID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "failed to load chats", err)
		}
		if peer.HasBlocked(userID) {
			continue
		}
		items = append(items, ChatListItem{
			ChatID:      sum.ChatID,
			ReceiverID:  sum.ReceiverID,
			User:        peer,
			LastMessage: cipher.OpenSummary(s.cipher, sum.LastMessage),
			IsSeen:      sum.IsSeen,
			UpdatedAt:   sum.UpdatedAt,
		})
	}
	return items, nil
}

func (s *Service) GetThread(ctx context.Context, userID, chatID string) (*ThreadView, error) {
	thread, err := s.thread(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	return threadView(s.cipher, thread), nil
}

// SharedMedia lists the images exchanged in a thread, newest first.
func (s *Service) SharedMedia(ctx context.Context, userID, chatID string) ([]MessageView, error) {
	thread, err := s.thread(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	var images []models.Message
	for _, m := range thread.Messages {
		if m.Img != "" {
			images = append(images, m)
		}
	}
	views := messageViews(s.cipher, images)
	sort.SliceStable(views, func(i, j int) bool { return views[i].ID > views[j].ID })
	return views, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.User{}, nil
	}
	users, err := s.store.SearchUsers(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to search users", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}
