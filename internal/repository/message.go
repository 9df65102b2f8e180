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

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create inserts m and fills in its generated id.
func (r *MessageRepository) Create(ctx context.Context, m *model.ChatMessage) error {
	defer logger.DeferLogDuration("message.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (room_id, sender_id, type, content, created_at, updated_at, edited, reply_to)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		m.RoomID, m.SenderID, m.Type, m.Content, m.CreatedAt, m.UpdatedAt, m.Edited, m.ReplyToID,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("messageRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.ChatMessage, error) {
	defer logger.DeferLogDuration("message.GetByID", time.Now())()
	m := &model.ChatMessage{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, room_id, sender_id, type, content, created_at, updated_at, edited, reply_to
		 FROM chat_messages WHERE id = $1`, id,
	).Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Type, &m.Content, &m.CreatedAt, &m.UpdatedAt, &m.Edited, &m.ReplyToID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("messageRepo.GetByID: %w", err)
	}
	return m, nil
}
