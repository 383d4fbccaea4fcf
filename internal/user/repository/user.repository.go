package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docshare/internal/user/model"
	"docshare/pkg/logger"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is the identity store. Users are provisioned outside the document API.
type UserRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, "SELECT id, email, created_at FROM users WHERE id = $1", id).
		Scan(&u.ID, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get user %s: %v", id, err)
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, id, email string) (*model.User, error) {
	u := &model.User{ID: id, Email: email, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	_, err := r.DB.ExecContext(ctx, "INSERT INTO users (id, email, created_at) VALUES ($1, $2, $3)",
		u.ID, u.Email, u.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create user %s: %v", id, err)
		return nil, fmt.Errorf("create user %s: %w", id, err)
	}
	return u, nil
}
