package repository_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labwatch/internal/logger"
	"github.com/labwatch/internal/model"
	"github.com/labwatch/internal/repository"
	"github.com/labwatch/internal/startup"
	"github.com/labwatch/migrations"
)

func init() {
	logger.Init(logger.Config{Level: "error", Output: io.Discard})
}

// testPool connects to TEST_DATABASE_URL and applies the schema; the test is skipped
// when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := startup.Migrate(ctx, pool, migrations.Files); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

var userSeq atomic.Int64

// createUser inserts a user row directly; accounts belong to the dashboard, so the
// repository has no write path for them.
func createUser(t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()
	name := fmt.Sprintf("user-%d-%d", time.Now().UnixNano(), userSeq.Add(1))
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (username, role, last_seen_at, created_at) VALUES ($1, 'member', NOW(), NOW()) RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func publicRoomID(t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()
	var id int64
	if err := pool.QueryRow(context.Background(), `SELECT id FROM chat_rooms WHERE kind = 'public'`).Scan(&id); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestChatRepository_AddToPublicRoomIdempotent(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	chats := repository.NewChatRepository(pool)
	uid := createUser(t, pool)
	roomID := publicRoomID(t, pool)

	if _, err := chats.GetMember(ctx, roomID, uid); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("GetMember before join err = %v, want ErrNotFound", err)
	}
	for i := 0; i < 3; i++ {
		if err := chats.AddToPublicRoom(ctx, uid); err != nil {
			t.Fatalf("AddToPublicRoom #%d: %v", i, err)
		}
	}
	var n int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM chat_members WHERE room_id = $1 AND user_id = $2`, roomID, uid).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("membership rows = %d, want 1", n)
	}
}

func TestChatRepository_MembersAndMessages(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	chats := repository.NewChatRepository(pool)
	messages := repository.NewMessageRepository(pool)
	alice, bob := createUser(t, pool), createUser(t, pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	var roomID int64
	if err := pool.QueryRow(ctx,
		`INSERT INTO chat_rooms (name, kind, created_by, created_at) VALUES ('ops', $1, $2, $3) RETURNING id`,
		model.RoomKindPrivate, alice, now,
	).Scan(&roomID); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO chat_members (room_id, user_id, is_admin, last_read_at, joined_at) VALUES ($1, $2, false, $3, $3)`,
		roomID, alice, now,
	); err != nil {
		t.Fatal(err)
	}

	ids, err := chats.GetMemberIDs(ctx, roomID)
	if err != nil || len(ids) != 1 || ids[0] != alice {
		t.Fatalf("GetMemberIDs = %v, %v", ids, err)
	}
	if _, err := chats.GetMember(ctx, roomID, bob); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetMember(bob) err = %v, want ErrNotFound", err)
	}

	m := &model.ChatMessage{RoomID: roomID, SenderID: alice, Type: model.MessageTypeText, Content: "disk 3 is degraded", CreatedAt: now, UpdatedAt: now}
	if err := messages.Create(ctx, m); err != nil {
		t.Fatal(err)
	}
	got, err := messages.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != m.Content || got.RoomID != roomID || got.ReplyToID != nil {
		t.Errorf("GetByID = %+v", got)
	}
	if _, err := messages.GetByID(ctx, -1); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetByID(-1) err = %v, want ErrNotFound", err)
	}

	later := now.Add(time.Minute)
	if err := chats.TouchLastMessage(ctx, roomID, later); err != nil {
		t.Fatal(err)
	}
	if err := chats.UpdateMemberLastRead(ctx, roomID, alice, later); err != nil {
		t.Fatal(err)
	}
	r, err := chats.GetByID(ctx, roomID)
	if err != nil || r.LastMessageAt == nil || !r.LastMessageAt.Equal(later) {
		t.Errorf("room after touch = %+v, %v", r, err)
	}
	mem, err := chats.GetMember(ctx, roomID, alice)
	if err != nil || !mem.LastReadAt.Equal(later) {
		t.Errorf("member after read = %+v, %v", mem, err)
	}
}

func TestUserRepository_Presence(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := repository.NewUserRepository(pool)
	uid := createUser(t, pool)

	at := time.Now().UTC().Truncate(time.Microsecond)
	if err := users.SetPresence(ctx, uid, true, at); err != nil {
		t.Fatal(err)
	}
	got, err := users.GetByID(ctx, uid)
	if err != nil || !got.IsOnline || !got.LastSeenAt.Equal(at) {
		t.Fatalf("after online = %+v, %v", got, err)
	}

	if err := users.ResetPresence(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := users.GetByID(ctx, uid); got.IsOnline {
		t.Error("still online after ResetPresence")
	}
	if err := users.SetPresence(ctx, -1, true, at); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("SetPresence(unknown) err = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	sessions := repository.NewSessionRepository(pool)
	sid := fmt.Sprintf("sid-%d", time.Now().UnixNano())

	if _, err := sessions.GetByID(ctx, sid); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("GetByID(missing) err = %v, want ErrNotFound", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO session (sid, sess, expire) VALUES ($1, $2::json, $3)`,
		sid, `{"cookie":{"path":"/"},"userId":9}`, time.Now().Add(48*time.Hour),
	); err != nil {
		t.Fatal(err)
	}
	s, err := sessions.GetByID(ctx, sid)
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := s.AuthenticatedUserID(); !ok || id != 9 {
		t.Errorf("AuthenticatedUserID = %d, %t", id, ok)
	}
	if _, err := pool.Exec(ctx, `UPDATE session SET expire = NOW() - INTERVAL '1 second' WHERE sid = $1`, sid); err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.GetByID(ctx, sid); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetByID(expired) err = %v, want ErrNotFound", err)
	}
}
