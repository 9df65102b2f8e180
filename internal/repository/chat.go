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

const roomCols = `id, name, kind, COALESCE(created_by, 0), last_message_at, created_at`

type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

func (r *ChatRepository) GetByID(ctx context.Context, id int64) (*model.ChatRoom, error) {
	defer logger.DeferLogDuration("chat.GetByID", time.Now())()
	c := &model.ChatRoom{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+roomCols+` FROM chat_rooms WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Kind, &c.CreatedBy, &c.LastMessageAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}
	return c, nil
}

// AddToPublicRoom makes userID a member of the public room. Repeated calls are no-ops.
func (r *ChatRepository) AddToPublicRoom(ctx context.Context, userID int64) error {
	defer logger.DeferLogDuration("chat.AddToPublicRoom", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_members (room_id, user_id, is_admin, last_read_at, joined_at)
		 SELECT id, $1, false, NOW(), NOW() FROM chat_rooms WHERE kind = 'public'
		 ON CONFLICT DO NOTHING`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.AddToPublicRoom: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetMember(ctx context.Context, roomID, userID int64) (*model.ChatMember, error) {
	defer logger.DeferLogDuration("chat.GetMember", time.Now())()
	m := &model.ChatMember{}
	err := r.pool.QueryRow(ctx,
		`SELECT room_id, user_id, is_admin, last_read_at, joined_at
		 FROM chat_members WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&m.RoomID, &m.UserID, &m.IsAdmin, &m.LastReadAt, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetMember: %w", err)
	}
	return m, nil
}

func (r *ChatRepository) GetMemberIDs(ctx context.Context, roomID int64) ([]int64, error) {
	defer logger.DeferLogDuration("chat.GetMemberIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM chat_members WHERE room_id = $1`, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetMemberIDs query: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetMemberIDs rows: %w", err)
	}
	return ids, nil
}

// TouchLastMessage records the time of the newest message in the room.
func (r *ChatRepository) TouchLastMessage(ctx context.Context, roomID int64, at time.Time) error {
	defer logger.DeferLogDuration("chat.TouchLastMessage", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_rooms SET last_message_at = $1 WHERE id = $2`,
		at, roomID,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.TouchLastMessage: %w", err)
	}
	return nil
}

func (r *ChatRepository) UpdateMemberLastRead(ctx context.Context, roomID, userID int64, t time.Time) error {
	defer logger.DeferLogDuration("chat.UpdateMemberLastRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_members SET last_read_at = $1 WHERE room_id = $2 AND user_id = $3`,
		t, roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.UpdateMemberLastRead: %w", err)
	}
	return nil
}
