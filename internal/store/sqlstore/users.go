package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/safechathub/safechat/internal/models"
	"github.com/safechathub/safechat/internal/store"
)

const userColumns = "id, username, email, password, avatar, secret, created_at"

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	query := s.rebind("INSERT INTO users (" + userColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)")
	_, err := s.db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.Password, user.Avatar, user.Secret, user.CreatedAt.UTC())
	if which, ok := uniqueViolation(err); ok {
		if strings.Contains(which, "email") {
			return store.ErrEmailTaken
		}
		return store.ErrUsernameTaken
	}
	return errors.Wrap(err, "sqlstore.CreateUser.Exec")
}

func (s *SQLStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	query := s.rebind("SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)")
	err := s.db.QueryRowContext(ctx, query, username).Scan(&exists)
	return exists, errors.Wrap(err, "sqlstore.UsernameExists.Scan")
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *SQLStore) getUser(ctx context.Context, column, value string) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE " + column + " = ?")
	err := s.db.QueryRowContext(ctx, query, value).Scan(&user.ID, &user.Username, &user.Email, &user.Password, &user.Avatar, &user.Secret, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.getUser.Scan")
	}

	user.Blocked, err = s.blockedBy(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) blockedBy(ctx context.Context, userID string) ([]string, error) {
	query := s.rebind("SELECT blocked_id FROM blocks WHERE user_id = ? ORDER BY blocked_id")
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.blockedBy.Query")
	}
	defer rows.Close()

	blocked := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		blocked = append(blocked, id)
	}
	return blocked, rows.Err()
}

func (s *SQLStore) SearchUsers(ctx context.Context, queryStr string) ([]models.User, error) {
	query := s.rebind("SELECT id, username, email, avatar FROM users WHERE username LIKE ? ORDER BY username LIMIT 10")
	rows, err := s.db.QueryContext(ctx, query, "%"+queryStr+"%")
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.SearchUsers.Query")
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.Avatar); err != nil {
			return nil, err
		}
		user.Email = maskEmail(user.Email)
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *SQLStore) UpdateAvatar(ctx context.Context, userID, avatar string) error {
	return s.updateUser(ctx, "avatar", userID, avatar)
}

func (s *SQLStore) UpdatePassword(ctx context.Context, userID, hash string) error {
	return s.updateUser(ctx, "password", userID, hash)
}

func (s *SQLStore) updateUser(ctx context.Context, column, userID, value string) error {
	query := s.rebind("UPDATE users SET " + column + " = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, query, value, userID)
	if err != nil {
		return errors.Wrap(err, "sqlstore.updateUser.Exec")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) SetBlocked(ctx context.Context, userID, targetID string, blocked bool) error {
	var query string
	if blocked {
		query = s.rebind("INSERT INTO blocks (user_id, blocked_id) VALUES (?, ?) ON CONFLICT DO NOTHING")
	} else {
		query = s.rebind("DELETE FROM blocks WHERE user_id = ? AND blocked_id = ?")
	}
	_, err := s.db.ExecContext(ctx, query, userID, targetID)
	return errors.Wrap(err, "sqlstore.SetBlocked.Exec")
}

func (s *SQLStore) CreatePasswordReset(ctx context.Context, reset *models.PasswordReset) error {
	query := s.rebind("INSERT INTO password_resets (token, user_id, expires_at) VALUES (?, ?, ?)")
	_, err := s.db.ExecContext(ctx, query, reset.Token, reset.UserID, reset.ExpiresAt.UTC())
	return errors.Wrap(err, "sqlstore.CreatePasswordReset.Exec")
}

// ResetPassword consumes token and stores passwordHash for its user in one
// transaction, returning the user ID. Expired and unknown tokens are
// ErrNotFound; expired ones are deleted all the same. If the password cannot
// be stored the token stays usable.
func (s *SQLStore) ResetPassword(ctx context.Context, token, passwordHash string, now time.Time) (string, error) {
	var (
		userID    string
		expiresAt time.Time
		expired   bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := s.rebind("SELECT user_id, expires_at FROM password_resets WHERE token = ?")
		err := tx.QueryRowContext(ctx, query, token).Scan(&userID, &expiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "sqlstore.ResetPassword.Scan")
		}

		// A concurrent reset may have read the same row; only one delete wins.
		query = s.rebind("DELETE FROM password_resets WHERE token = ?")
		result, err := tx.ExecContext(ctx, query, token)
		if err != nil {
			return errors.Wrap(err, "sqlstore.ResetPassword.Delete")
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return store.ErrNotFound
		}

		if !now.Before(expiresAt) {
			expired = true
			return nil
		}

		query = s.rebind("UPDATE users SET password = ? WHERE id = ?")
		result, err = tx.ExecContext(ctx, query, passwordHash, userID)
		if err != nil {
			return errors.Wrap(err, "sqlstore.ResetPassword.Update")
		}
		if rows, err = result.RowsAffected(); err != nil {
			return err
		}
		if rows == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if expired {
		return "", store.ErrNotFound
	}
	return userID, nil
}
