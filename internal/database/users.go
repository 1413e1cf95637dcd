package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cadence/pkg/models"

	"github.com/mattn/go-sqlite3"
)

// CreateUser stores a new account. passwordHash must already be hashed.
func (db *Database) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES (?, ?)", username, passwordHash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetUserByID(ctx, int(id))
}

// GetUserByID returns the account with the given id, including its password hash.
func (db *Database) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return db.getUser(ctx, "SELECT id, username, password_hash, created_at FROM users WHERE id = ?", id)
}

// GetUserByUsername returns the account with the given name, including its password hash.
func (db *Database) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.getUser(ctx, "SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username)
}

func (db *Database) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := db.conn.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes an account. Their playlists and likes cascade; cover
// files left behind are collected by the storage sweep.
func (db *Database) DeleteUser(ctx context.Context, id int) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
