package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labwatch/internal/logger"
	"github.com/labwatch/internal/model"
)

// SessionRepository reads the dashboard's "session" table (sid, sess, expire).
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// GetByID returns the session only while it has not expired.
func (r *SessionRepository) GetByID(ctx context.Context, sid string) (*model.Session, error) {
	defer logger.DeferLogDuration("session.GetByID", time.Now())()
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT sess::text FROM session WHERE sid = $1 AND expire > NOW()`, sid,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.GetByID: %w", err)
	}
	s := &model.Session{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("sessionRepo.GetByID decode: %w", err)
	}
	return s, nil
}
