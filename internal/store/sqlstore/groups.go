package sqlstore

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/safechathub/safechat/internal/models"
	"github.com/safechathub/safechat/internal/store"
)

// CreateGroup stores group and gives every participant a summary row carrying
// encryptedName. Only the creator's summary starts out seen. group.ID must
// already be set.
func (s *SQLStore) CreateGroup(ctx context.Context, group *models.GroupThread, encryptedName string, at time.Time) error {
	group.CreatedAt = at.UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := s.rebind("INSERT INTO group_chats (id, name, creator_id, created_at) VALUES (?, ?, ?, ?)")
		if _, err := tx.ExecContext(ctx, query, group.ID, group.Name, group.CreatorID, group.CreatedAt); err != nil {
			return errors.Wrap(err, "sqlstore.CreateGroup.InsertGroup")
		}
		for _, p := range group.Participants {
			if err := s.addGroupParticipant(ctx, tx, group.ID, p, encryptedName, p == group.CreatorID, group.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) addGroupParticipant(ctx context.Context, tx *sql.Tx, chatID, userID, encryptedName string, seen bool, at time.Time) error {
	query := s.rebind("INSERT INTO group_participants (chat_id, user_id) VALUES (?, ?)")
	if _, err := tx.ExecContext(ctx, query, chatID, userID); err != nil {
		return errors.Wrap(err, "sqlstore.addGroupParticipant.InsertParticipant")
	}
	query = s.rebind("INSERT INTO user_group_chats (user_id, chat_id, name, last_message, is_seen, updated_at) VALUES (?, ?, ?, '', ?, ?)")
	if _, err := tx.ExecContext(ctx, query, userID, chatID, encryptedName, seen, at.UTC()); err != nil {
		return errors.Wrap(err, "sqlstore.addGroupParticipant.InsertSummary")
	}
	return nil
}

func (s *SQLStore) GetGroup(ctx context.Context, chatID string) (*models.GroupThread, error) {
	group := models.GroupThread{ID: chatID}
	query := s.rebind("SELECT name, creator_id, created_at FROM group_chats WHERE id = ?")
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(&group.Name, &group.CreatorID, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.GetGroup.Scan")
	}

	if group.Participants, err = s.participants(ctx, "group_participants", chatID); err != nil {
		return nil, err
	}
	if group.Messages, err = s.messages(ctx, "group_messages", chatID); err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *SQLStore) IsGroupParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	return s.isParticipant(ctx, "group_participants", chatID, userID)
}

func (s *SQLStore) AddGroupParticipant(ctx context.Context, chatID, userID, encryptedName string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		query := s.rebind("SELECT EXISTS(SELECT 1 FROM group_chats WHERE id = ?)")
		if err := tx.QueryRowContext(ctx, query, chatID).Scan(&exists); err != nil {
			return errors.Wrap(err, "sqlstore.AddGroupParticipant.Exists")
		}
		if !exists {
			return store.ErrNotFound
		}
		return s.addGroupParticipant(ctx, tx, chatID, userID, encryptedName, true, at)
	})
}

func (s *SQLStore) RemoveGroupParticipant(ctx context.Context, chatID, userID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := s.rebind("DELETE FROM group_participants WHERE chat_id = ? AND user_id = ?")
		result, err := tx.ExecContext(ctx, query, chatID, userID)
		if err != nil {
			return errors.Wrap(err, "sqlstore.RemoveGroupParticipant.DeleteParticipant")
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		query = s.rebind("DELETE FROM user_group_chats WHERE chat_id = ? AND user_id = ?")
		if _, err := tx.ExecContext(ctx, query, chatID, userID); err != nil {
			return errors.Wrap(err, "sqlstore.RemoveGroupParticipant.DeleteSummary")
		}
		return nil
	})
}

func (s *SQLStore) AppendGroupMessage(ctx context.Context, msg *models.Message, lastMessage string, at time.Time) error {
	return s.appendMessage(ctx, "group_chats", "group_messages", "user_group_chats", msg, lastMessage, at)
}

func (s *SQLStore) ListGroupSummaries(ctx context.Context, userID string) ([]models.GroupSummary, error) {
	query := s.rebind(`
		SELECT chat_id, name, last_message, is_seen, updated_at
		FROM user_group_chats
		WHERE user_id = ?
	`)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.ListGroupSummaries.Query")
	}

	summaries := []models.GroupSummary{}
	for rows.Next() {
		sum := models.GroupSummary{UserID: userID}
		if err := rows.Scan(&sum.ChatID, &sum.Name, &sum.LastMessage, &sum.IsSeen, &sum.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	// Participants are loaded after rows is closed; sqlite runs on a single
	// connection.
	for i := range summaries {
		if summaries[i].Participants, err = s.participants(ctx, "group_participants", summaries[i].ChatID); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (s *SQLStore) MarkGroupSeen(ctx context.Context, userID, chatID string) error {
	return s.markSeen(ctx, "user_group_chats", userID, chatID)
}
