package ws

import (
	"context"
	"errors"
	"fmt"

	"github.com/labwatch/internal/model"
	"github.com/labwatch/internal/repository"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrNotMember    = errors.New("not a member")
)

// Guard decides whether a user may act in a room. Every user belongs to the public
// room; the membership record is created on first use.
type Guard struct {
	rooms RoomStore
}

func NewGuard(rooms RoomStore) *Guard {
	return &Guard{rooms: rooms}
}

// IsMember reports membership. A missing room is ErrRoomNotFound, not a denial.
func (g *Guard) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	room, err := g.room(ctx, roomID)
	if err != nil {
		return false, err
	}
	return g.member(ctx, room, userID)
}

// Authorize returns the room when userID may act in it.
func (g *Guard) Authorize(ctx context.Context, roomID, userID int64) (*model.ChatRoom, error) {
	room, err := g.room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ok, err := g.member(ctx, room, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotMember
	}
	return room, nil
}

func (g *Guard) room(ctx context.Context, roomID int64) (*model.ChatRoom, error) {
	room, err := g.rooms.GetByID(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("guard room %d: %w", roomID, err)
	}
	return room, nil
}

func (g *Guard) member(ctx context.Context, room *model.ChatRoom, userID int64) (bool, error) {
	if room.IsPublic() {
		if err := g.rooms.AddToPublicRoom(ctx, userID); err != nil {
			return false, fmt.Errorf("guard join public room %d: %w", room.ID, err)
		}
		return true, nil
	}
	_, err := g.rooms.GetMember(ctx, room.ID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("guard member room=%d user=%d: %w", room.ID, userID, err)
	}
	return true, nil
}
