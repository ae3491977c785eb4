package chat

import (
	"context"
	"strings"

	"github.com/safechathub/safechat/internal/apperr"
	"github.com/safechathub/safechat/internal/models"
	"github.com/safechathub/safechat/internal/screening"
	"github.com/safechathub/safechat/internal/session"
	"github.com/safechathub/safechat/internal/ws"
)

const imageSummary = "Sent an image"

// ErrSendBlocked is returned when either side of a thread has blocked the
// other. Nothing is screened or stored.
var ErrSendBlocked = apperr.FailedPrecondition("You cannot send messages in this chat")

type SendInput struct {
	ChatID   string
	SenderID string
	Text     string
	ImageURL string
	// ConfirmSuspicious is the sender's answer to the suspicious URL prompt.
	ConfirmSuspicious bool
}

// Send delivers a direct message. The steps run strictly in order: gate,
// validate, screen, encrypt, persist, publish. Screening errors are returned
// unchanged so callers can tell unsafe, suspicious and failed checks apart.
func (s *Service) Send(ctx context.Context, in SendInput) (*MessageView, error) {
	thread, err := s.thread(ctx, in.SenderID, in.ChatID)
	if err != nil {
		return nil, err
	}

	current, err := s.user(ctx, in.SenderID)
	if err != nil {
		return nil, err
	}
	peer, err := s.user(ctx, thread.Peer(in.SenderID))
	if err != nil {
		return nil, err
	}
	if st := session.Derive(thread.ID, current, peer); !st.CanSend() {
		s.log.Debug().Str("chat_id", thread.ID).Stringer("gate", st.Gate()).Msg("send blocked")
		return nil, ErrSendBlocked
	}

	msg, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	last, err := s.lastMessage(in.Text)
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendMessage(ctx, msg, last, s.now()); err != nil {
		s.log.Error().Err(err).Str("chat_id", thread.ID).Msg("failed to store message")
		return nil, apperr.Wrap(apperr.CodeInternal, "Failed to send the message. Please try again.", err)
	}

	thread.Messages = append(thread.Messages, *msg)
	s.publish(ws.ChatTopic(thread.ID), threadView(s.cipher, thread))
	s.publishChats(ctx, thread.Participants...)

	view := messageViews(s.cipher, []models.Message{*msg})[0]
	return &view, nil
}

// SendGroup delivers a message to a group. Groups have no block gating; the
// message carries the sender's username.
func (s *Service) SendGroup(ctx context.Context, in SendInput) (*MessageView, error) {
	group, err := s.group(ctx, in.SenderID, in.ChatID)
	if err != nil {
		return nil, err
	}
	sender, err := s.user(ctx, in.SenderID)
	if err != nil {
		return nil, err
	}

	msg, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	msg.SenderName = sender.Username
	last, err := s.lastMessage(in.Text)
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendGroupMessage(ctx, msg, last, s.now()); err != nil {
		s.log.Error().Err(err).Str("group_id", group.ID).Msg("failed to store group message")
		return nil, apperr.Wrap(apperr.CodeInternal, "Failed to send message", err)
	}

	group.Messages = append(group.Messages, *msg)
	s.publish(ws.GroupTopic(group.ID), groupView(s.cipher, group))
	s.publishGroups(ctx, group.Participants...)

	view := messageViews(s.cipher, []models.Message{*msg})[0]
	return &view, nil
}

// prepare validates, screens and encrypts the input into a message ready to
// store.
func (s *Service) prepare(ctx context.Context, in SendInput) (*models.Message, error) {
	if strings.TrimSpace(in.Text) == "" && in.ImageURL == "" {
		return nil, apperr.InvalidArg("Please enter a message or upload an image.")
	}

	if _, err := s.screener.Screen(ctx, in.Text, screening.Always(in.ConfirmSuspicious)); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ChatID:    in.ChatID,
		SenderID:  in.SenderID,
		Img:       in.ImageURL,
		CreatedAt: s.now(),
	}
	if in.Text != "" {
		ct, err := s.cipher.Encrypt(in.Text)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "failed to encrypt message", err)
		}
		msg.Text = ct
	}
	return msg, nil
}

func (s *Service) lastMessage(text string) (string, error) {
	if text == "" {
		text = imageSummary
	}
	ct, err := s.cipher.Encrypt(text)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "failed to encrypt message", err)
	}
	return ct, nil
}
