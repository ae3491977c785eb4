package sqlstore

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/safechathub/safechat/internal/models"
	"github.com/safechathub/safechat/internal/store"
)

// CreateThread creates a two-party thread and an empty summary for each side.
func (s *SQLStore) CreateThread(ctx context.Context, a, b string, at time.Time) (*models.Thread, error) {
	thread := &models.Thread{
		ID:           uuid.NewString(),
		Participants: []string{a, b},
		Messages:     []models.Message{},
		CreatedAt:    at.UTC(),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := s.rebind("INSERT INTO chats (id, created_at) VALUES (?, ?)")
		if _, err := tx.ExecContext(ctx, query, thread.ID, thread.CreatedAt); err != nil {
			return errors.Wrap(err, "sqlstore.CreateThread.InsertChat")
		}

		for _, p := range thread.Participants {
			query = s.rebind("INSERT INTO chat_participants (chat_id, user_id) VALUES (?, ?)")
			if _, err := tx.ExecContext(ctx, query, thread.ID, p); err != nil {
				return errors.Wrap(err, "sqlstore.CreateThread.InsertParticipant")
			}

			query = s.rebind("INSERT INTO user_chats (user_id, chat_id, receiver_id, last_message, is_seen, updated_at) VALUES (?, ?, ?, '', FALSE, ?)")
			if _, err := tx.ExecContext(ctx, query, p, thread.ID, thread.Peer(p), thread.CreatedAt); err != nil {
				return errors.Wrap(err, "sqlstore.CreateThread.InsertSummary")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *SQLStore) ThreadBetween(ctx context.Context, a, b string) (string, error) {
	var chatID string
	query := s.rebind(`
		SELECT p1.chat_id
		FROM chat_participants p1
		JOIN chat_participants p2 ON p1.chat_id = p2.chat_id
		WHERE p1.user_id = ? AND p2.user_id = ?
		LIMIT 1
	`)
	err := s.db.QueryRowContext(ctx, query, a, b).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return chatID, errors.Wrap(err, "sqlstore.ThreadBetween.Scan")
}

func (s *SQLStore) GetThread(ctx context.Context, chatID string) (*models.Thread, error) {
	thread := models.Thread{ID: chatID}
	query := s.rebind("SELECT created_at FROM chats WHERE id = ?")
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(&thread.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.GetThread.Scan")
	}

	if thread.Participants, err = s.participants(ctx, "chat_participants", chatID); err != nil {
		return nil, err
	}
	if thread.Messages, err = s.messages(ctx, "messages", chatID); err != nil {
		return nil, err
	}
	return &thread, nil
}

func (s *SQLStore) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	return s.isParticipant(ctx, "chat_participants", chatID, userID)
}

func (s *SQLStore) AppendMessage(ctx context.Context, msg *models.Message, lastMessage string, at time.Time) error {
	return s.appendMessage(ctx, "chats", "messages", "user_chats", msg, lastMessage, at)
}

func (s *SQLStore) ListSummaries(ctx context.Context, userID string) ([]models.ThreadSummary, error) {
	query := s.rebind(`
		SELECT chat_id, receiver_id, last_message, is_seen, updated_at
		FROM user_chats
		WHERE user_id = ?
	`)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.ListSummaries.Query")
	}
	defer rows.Close()

	summaries := []models.ThreadSummary{}
	for rows.Next() {
		sum := models.ThreadSummary{UserID: userID}
		if err := rows.Scan(&sum.ChatID, &sum.ReceiverID, &sum.LastMessage, &sum.IsSeen, &sum.UpdatedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, rows.Err()
}

func (s *SQLStore) MarkSeen(ctx context.Context, userID, chatID string) error {
	return s.markSeen(ctx, "user_chats", userID, chatID)
}

// DeleteThread removes a thread with its messages, participants and both
// summaries in one transaction.
func (s *SQLStore) DeleteThread(ctx context.Context, chatID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, s.rebind("DELETE FROM chats WHERE id = ?"), chatID)
		if err != nil {
			return errors.Wrap(err, "sqlstore.DeleteThread.DeleteChat")
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}

		for _, table := range []string{"messages", "chat_participants", "user_chats"} {
			query := s.rebind("DELETE FROM " + table + " WHERE chat_id = ?")
			if _, err := tx.ExecContext(ctx, query, chatID); err != nil {
				return errors.Wrapf(err, "sqlstore.DeleteThread.Delete %s", table)
			}
		}
		return nil
	})
}

func (s *SQLStore) participants(ctx context.Context, table, chatID string) ([]string, error) {
	query := s.rebind("SELECT user_id FROM " + table + " WHERE chat_id = ? ORDER BY user_id")
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.participants.Query")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) messages(ctx context.Context, table, chatID string) ([]models.Message, error) {
	query := s.rebind(`
		SELECT id, chat_id, sender_id, sender_name, COALESCE(text, ''), COALESCE(img, ''), created_at
		FROM ` + table + `
		WHERE chat_id = ?
		ORDER BY id ASC
	`)
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.messages.Query")
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderName, &m.Text, &m.Img, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLStore) isParticipant(ctx context.Context, table, chatID, userID string) (bool, error) {
	var exists bool
	query := s.rebind("SELECT EXISTS(SELECT 1 FROM " + table + " WHERE chat_id = ? AND user_id = ?)")
	err := s.db.QueryRowContext(ctx, query, chatID, userID).Scan(&exists)
	return exists, errors.Wrap(err, "sqlstore.isParticipant.Scan")
}

// appendMessage inserts msg and rewrites each participant's summary row. Each
// row is updated on its own, so concurrent sends to different threads of the
// same user cannot overwrite each other.
func (s *SQLStore) appendMessage(ctx context.Context, chats, messages, summaries string, msg *models.Message, lastMessage string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		query := s.rebind("SELECT EXISTS(SELECT 1 FROM " + chats + " WHERE id = ?)")
		if err := tx.QueryRowContext(ctx, query, msg.ChatID).Scan(&exists); err != nil {
			return errors.Wrap(err, "sqlstore.appendMessage.Exists")
		}
		if !exists {
			return store.ErrNotFound
		}

		query = s.rebind("INSERT INTO " + messages + " (chat_id, sender_id, sender_name, text, img, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id")
		err := tx.QueryRowContext(ctx, query, msg.ChatID, msg.SenderID, msg.SenderName, nullString(msg.Text), nullString(msg.Img), msg.CreatedAt.UTC()).Scan(&msg.ID)
		if err != nil {
			return errors.Wrap(err, "sqlstore.appendMessage.Insert")
		}

		query = s.rebind(`
			UPDATE ` + summaries + `
			SET last_message = ?, is_seen = CASE WHEN user_id = ? THEN TRUE ELSE FALSE END, updated_at = ?
			WHERE chat_id = ?
		`)
		if _, err := tx.ExecContext(ctx, query, lastMessage, msg.SenderID, at.UTC(), msg.ChatID); err != nil {
			return errors.Wrap(err, "sqlstore.appendMessage.UpdateSummaries")
		}
		return nil
	})
}

func (s *SQLStore) markSeen(ctx context.Context, table, userID, chatID string) error {
	query := s.rebind("UPDATE " + table + " SET is_seen = TRUE WHERE user_id = ? AND chat_id = ?")
	result, err := s.db.ExecContext(ctx, query, userID, chatID)
	if err != nil {
		return errors.Wrap(err, "sqlstore.markSeen.Exec")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
