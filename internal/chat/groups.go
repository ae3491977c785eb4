package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/safechathub/safechat/internal/apperr"
	"github.com/safechathub/safechat/internal/cipher"
	"github.com/safechathub/safechat/internal/models"
	"github.com/safechathub/safechat/internal/store"
	"github.com/safechathub/safechat/internal/ws"
)

// CreateGroup creates a group owned by creatorID. memberIDs must name at
// least one other existing user.
func (s *Service) CreateGroup(ctx context.Context, creatorID, name string, memberIDs []string) (*GroupView, error) {
	name = strings.TrimSpace(name)
	participants := []string{creatorID}
	for _, id := range memberIDs {
		if id != "" && !contains(participants, id) {
			participants = append(participants, id)
		}
	}
	if name == "" || len(participants) < 2 {
		return nil, apperr.InvalidArg("Group name and members are required")
	}
	for _, id := range participants {
		if _, err := s.user(ctx, id); err != nil {
			return nil, err
		}
	}

	encName, err := s.cipher.Encrypt(name)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "Failed to create group", err)
	}
	group := &models.GroupThread{
		ID:           uuid.NewString(),
		Name:         name,
		CreatorID:    creatorID,
		Participants: participants,
		Messages:     []models.Message{},
	}
	if err := s.store.CreateGroup(ctx, group, encName, s.now()); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "Failed to create group", err)
	}
	s.log.Info().Str("group_id", group.ID).Int("members", len(participants)).Msg("group created")

	s.publishGroups(ctx, participants...)
	return groupView(s.cipher, group), nil
}

func (s *Service) GetGroup(ctx context.Context, userID, chatID string) (*GroupView, error) {
	group, err := s.group(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	return groupView(s.cipher, group), nil
}

// AddGroupParticipant adds userID to the group. Any member may add others.
func (s *Service) AddGroupParticipant(ctx context.Context, actorID, chatID, userID string) (*GroupView, error) {
	group, err := s.group(ctx, actorID, chatID)
	if err != nil {
		return nil, err
	}
	if contains(group.Participants, userID) {
		return nil, apperr.AlreadyExists("Member already added")
	}
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}

	encName, err := s.cipher.Encrypt(group.Name)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "Failed to add member", err)
	}
	if err := s.store.AddGroupParticipant(ctx, chatID, userID, encName, s.now()); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "Failed to add member", err)
	}

	group.Participants = append(group.Participants, userID)
	view := groupView(s.cipher, group)
	s.publish(ws.GroupTopic(chatID), view)
	s.publishGroups(ctx, group.Participants...)
	return view, nil
}

// RemoveGroupParticipant removes userID from the group. Members may leave;
// only the creator may remove someone else.
func (s *Service) RemoveGroupParticipant(ctx context.Context, actorID, chatID, userID string) error {
	group, err := s.group(ctx, actorID, chatID)
	if err != nil {
		return err
	}
	if actorID != userID && actorID != group.CreatorID {
		return apperr.Forbidden("Only the group creator can remove members")
	}

	err = s.store.RemoveGroupParticipant(ctx, chatID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("User is not a member of this group")
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "Failed to remove member", err)
	}

	remaining := make([]string, 0, len(group.Participants))
	for _, p := range group.Participants {
		if p != userID {
			remaining = append(remaining, p)
		}
	}
	group.Participants = remaining
	s.publish(ws.GroupTopic(chatID), groupView(s.cipher, group))
	s.publishGroups(ctx, append(remaining, userID)...)
	return nil
}

// ListGroupChats returns the user's groups, newest first.
func (s *Service) ListGroupChats(ctx context.Context, userID string) ([]GroupListItem, error) {
	summaries, err := s.store.ListGroupSummaries(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to load groups", err)
	}

	items := make([]GroupListItem, 0, len(summaries))
	for _, sum := range summaries {
		items = append(items, GroupListItem{
			ChatID:       sum.ChatID,
			Name:         cipher.OpenSummary(s.cipher, sum.Name),
			Participants: sum.Participants,
			LastMessage:  cipher.OpenSummary(s.cipher, sum.LastMessage),
			IsSeen:       sum.IsSeen,
			UpdatedAt:    sum.UpdatedAt,
		})
	}
	return items, nil
}

func (s *Service) SelectGroup(ctx context.Context, userID, chatID string) (*GroupView, error) {
	group, err := s.group(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkGroupSeen(ctx, userID, chatID); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "Failed to update chat status", err)
	}
	s.publishGroups(ctx, userID)
	return groupView(s.cipher, group), nil
}
