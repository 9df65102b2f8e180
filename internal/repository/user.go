package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labwatch/internal/logger"
	"github.com/labwatch/internal/model"
)

const userCols = `id, username, display_name, avatar_url, role, is_online, last_seen_at, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Role, &u.IsOnline, &u.LastSeenAt, &u.CreatedAt)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

// SetPresence stores the online flag; last_seen_at is written together with it.
func (r *UserRepository) SetPresence(ctx context.Context, userID int64, online bool, at time.Time) error {
	defer logger.DeferLogDuration("user.SetPresence", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_online = $1, last_seen_at = $2 WHERE id = $3`,
		online, at, userID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.SetPresence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetPresence marks everybody offline. Run at startup: no socket survives a restart.
func (r *UserRepository) ResetPresence(ctx context.Context) error {
	defer logger.DeferLogDuration("user.ResetPresence", time.Now())()
	if _, err := r.pool.Exec(ctx, `UPDATE users SET is_online = false WHERE is_online`); err != nil {
		return fmt.Errorf("userRepo.ResetPresence: %w", err)
	}
	return nil
}
