// Package wstest provides in-memory stand-ins for the persistence gateway used by ws.
package wstest

import (
	"context"
	"sync"
	"time"

	"github.com/labwatch/internal/model"
	"github.com/labwatch/internal/repository"
)

// Rooms implements ws.RoomStore.
type Rooms struct {
	mu       sync.Mutex
	rooms    map[int64]*model.ChatRoom
	members  map[int64]map[int64]*model.ChatMember
	lastMsg  map[int64]time.Time
	Err      error // returned by every call when set
	joinCall int
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms:   make(map[int64]*model.ChatRoom),
		members: make(map[int64]map[int64]*model.ChatMember),
		lastMsg: make(map[int64]time.Time),
	}
}

func (r *Rooms) AddRoom(id int64, kind model.RoomKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[id] = &model.ChatRoom{ID: id, Name: string(kind), Kind: kind, CreatedAt: time.Now()}
}

func (r *Rooms) AddMember(roomID int64, userIDs ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, uid := range userIDs {
		r.addLocked(roomID, uid)
	}
}

func (r *Rooms) addLocked(roomID, userID int64) {
	set, ok := r.members[roomID]
	if !ok {
		set = make(map[int64]*model.ChatMember)
		r.members[roomID] = set
	}
	if _, ok := set[userID]; ok {
		return
	}
	now := time.Now()
	set[userID] = &model.ChatMember{RoomID: roomID, UserID: userID, LastReadAt: now, JoinedAt: now}
}

func (r *Rooms) MemberCount(roomID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members[roomID])
}

func (r *Rooms) IsMember(roomID, userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[roomID][userID]
	return ok
}

func (r *Rooms) LastRead(roomID, userID int64) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[roomID][userID]; ok {
		return m.LastReadAt
	}
	return time.Time{}
}

func (r *Rooms) LastMessageAt(roomID int64) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastMsg[roomID]
}

// PublicJoins counts AddToPublicRoom calls.
func (r *Rooms) PublicJoins() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joinCall
}

func (r *Rooms) GetByID(ctx context.Context, id int64) (*model.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	room, ok := r.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *room
	return &cp, nil
}

func (r *Rooms) GetMember(ctx context.Context, roomID, userID int64) (*model.ChatMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	m, ok := r.members[roomID][userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *Rooms) GetMemberIDs(ctx context.Context, roomID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	ids := make([]int64, 0, len(r.members[roomID]))
	for uid := range r.members[roomID] {
		ids = append(ids, uid)
	}
	return ids, nil
}

func (r *Rooms) AddToPublicRoom(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.joinCall++
	for id, room := range r.rooms {
		if room.IsPublic() {
			r.addLocked(id, userID)
		}
	}
	return nil
}

func (r *Rooms) TouchLastMessage(ctx context.Context, roomID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.lastMsg[roomID] = at
	return nil
}

func (r *Rooms) UpdateMemberLastRead(ctx context.Context, roomID, userID int64, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if m, ok := r.members[roomID][userID]; ok {
		m.LastReadAt = t
	}
	return nil
}

// Messages implements ws.MessageStore.
type Messages struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.ChatMessage
	order  []int64
	Err    error // returned by Create when set
}

func NewMessages() *Messages {
	return &Messages{byID: make(map[int64]*model.ChatMessage)}
}

func (m *Messages) Create(ctx context.Context, msg *model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.nextID++
	msg.ID = m.nextID
	cp := *msg
	m.byID[msg.ID] = &cp
	m.order = append(m.order, msg.ID)
	return nil
}

func (m *Messages) GetByID(ctx context.Context, id int64) (*model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

// All returns the stored messages in insertion order.
func (m *Messages) All() []model.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ChatMessage, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.byID[id])
	}
	return out
}

// Users implements ws.UserStore and records every presence write.
type Users struct {
	mu       sync.Mutex
	users    map[int64]*model.User
	presence map[int64][]bool
}

func NewUsers() *Users {
	return &Users{users: make(map[int64]*model.User), presence: make(map[int64][]bool)}
}

func (u *Users) AddUser(id int64, username string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.users[id] = &model.User{ID: id, Username: username, DisplayName: username, Role: model.RoleMember, CreatedAt: time.Now()}
}

func (u *Users) GetByID(ctx context.Context, id int64) (*model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	usr, ok := u.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *usr
	return &cp, nil
}

func (u *Users) SetPresence(ctx context.Context, userID int64, online bool, at time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.presence[userID] = append(u.presence[userID], online)
	usr, ok := u.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	usr.IsOnline = online
	usr.LastSeenAt = at
	return nil
}

// Online is the persisted presence flag of userID.
func (u *Users) Online(userID int64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	usr, ok := u.users[userID]
	return ok && usr.IsOnline
}

// PresenceWrites lists every online flag written for userID, oldest first.
func (u *Users) PresenceWrites(userID int64) []bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]bool(nil), u.presence[userID]...)
}
